package connector

import (
	"context"
	"fmt"

	"corpora/apps/ingest/internal/webcrawl"
)

// WebConnector wraps the crawl fetcher as a connector: one URL in, one
// fragment out. Crawl workers use it for their per-page fetch so single-page
// ingestion and distributed crawling share extraction behavior.
type WebConnector struct {
	fetcher webcrawl.PageFetcher
}

func NewWebConnector(fetcher webcrawl.PageFetcher) *WebConnector {
	return &WebConnector{fetcher: fetcher}
}

func (c *WebConnector) Ingest(ctx context.Context, cfg Config) ([]Fragment, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("web connector requires a url")
	}

	page, err := c.fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	return []Fragment{{
		Title:     page.Title,
		Content:   page.Content,
		SourceURL: page.URL,
		Metadata: map[string]any{
			"links": page.Links,
		},
	}}, nil
}
