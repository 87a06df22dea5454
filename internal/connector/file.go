package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"corpora/apps/ingest/internal/resilience"
	"corpora/apps/ingest/internal/staging"
)

// FileConnector parses already-staged bytes into one fragment. Plain text
// and markdown are read inline; binary formats go through the external
// conversion service.
type FileConnector struct {
	store     staging.Store
	parserURL string
	client    *http.Client
	retry     resilience.Policy
	breaker   *resilience.Breaker
}

func NewFileConnector(store staging.Store, parserURL string) *FileConnector {
	return &FileConnector{
		store:     store,
		parserURL: parserURL,
		client:    &http.Client{Timeout: 2 * time.Minute},
		retry:     resilience.DefaultPolicy(),
		breaker:   resilience.NewBreaker("doc-parser", 5),
	}
}

func (c *FileConnector) Ingest(ctx context.Context, cfg Config) ([]Fragment, error) {
	if cfg.BlobPath == "" {
		return nil, fmt.Errorf("file connector requires a staged blob path")
	}

	data, err := c.store.Download(ctx, cfg.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("download staged blob %s: %w", cfg.BlobPath, err)
	}

	name := path.Base(cfg.BlobPath)
	content, err := c.extract(ctx, name, data)
	if err != nil {
		return nil, err
	}

	return []Fragment{{
		Title:     name,
		Content:   content,
		SourceURL: "staging://" + cfg.BlobPath,
		Metadata: map[string]any{
			"filename":   name,
			"size_bytes": len(data),
		},
	}}, nil
}

func (c *FileConnector) extract(ctx context.Context, name string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".md", ".markdown", ".csv":
		return string(data), nil
	}
	return c.convert(ctx, name, data)
}

// convert sends binary formats to the conversion service. The service is one
// named dependency hit in a tight loop during bulk uploads, so calls share a
// breaker on top of the usual retry.
func (c *FileConnector) convert(ctx context.Context, name string, data []byte) (string, error) {
	var content string
	err := c.breaker.Do(func() error {
		return c.retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				c.parserURL+"/v1/convert?filename="+name, bytes.NewReader(data))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/octet-stream")

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return &resilience.HTTPError{Status: resp.StatusCode, URL: c.parserURL}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
			if err != nil {
				return err
			}

			var parsed struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return fmt.Errorf("decode parser response: %w", err)
			}
			content = parsed.Content
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", name, err)
	}
	return content, nil
}
