package webcrawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaxCrawlDepth bounds recursive crawls regardless of the submitted config.
const MaxCrawlDepth = 10

type CrawlType string

const (
	CrawlSingle    CrawlType = "single"
	CrawlRecursive CrawlType = "recursive"
	CrawlSitemap   CrawlType = "sitemap"
)

// Spec is the discovery input derived from a crawl config row.
type Spec struct {
	UserID     string
	RootURL    string
	CrawlType  CrawlType
	MaxDepth   int
	Exclusions []string
}

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type SitemapExpander interface {
	ExpandSitemap(ctx context.Context, seedURL string) ([]string, error)
}

// IngestedIndex answers which URLs already have a persisted document, so
// discovery can skip pages a previous crawl ingested.
type IngestedIndex interface {
	ExistingSourceURLs(ctx context.Context, userID string, urls []string) (map[string]bool, error)
}

// Discoverer expands one crawl seed into the candidate URL set. It only
// enumerates; fetching-for-ingestion happens in independent per-URL workers.
type Discoverer struct {
	fetcher  PageFetcher
	sitemaps SitemapExpander
	index    IngestedIndex
}

func NewDiscoverer(fetcher PageFetcher, sitemaps SitemapExpander, index IngestedIndex) *Discoverer {
	return &Discoverer{fetcher: fetcher, sitemaps: sitemaps, index: index}
}

func (d *Discoverer) Discover(ctx context.Context, spec Spec) ([]string, error) {
	seed, err := normalizeURL(spec.RootURL)
	if err != nil {
		return nil, fmt.Errorf("invalid root url %q: %w", spec.RootURL, err)
	}

	switch spec.CrawlType {
	case CrawlSingle:
		return []string{seed}, nil
	case CrawlSitemap:
		urls, err := d.sitemaps.ExpandSitemap(ctx, seed)
		if err != nil {
			return nil, err
		}
		return d.dropIngested(ctx, spec.UserID, urls)
	case CrawlRecursive:
		urls, err := d.recursive(ctx, spec, seed)
		if err != nil {
			return nil, err
		}
		return d.dropIngested(ctx, spec.UserID, urls)
	default:
		return nil, fmt.Errorf("unknown crawl type %q", spec.CrawlType)
	}
}

type frontierItem struct {
	url   string
	depth int
}

// recursive walks same-origin links breadth-first up to the depth cap. The
// visited set and explicit queue bound the walk and make cycles harmless.
func (d *Discoverer) recursive(ctx context.Context, spec Spec, seed string) ([]string, error) {
	maxDepth := spec.MaxDepth
	if maxDepth <= 0 || maxDepth > MaxCrawlDepth {
		maxDepth = MaxCrawlDepth
	}

	exclusions, err := compileExclusions(spec.Exclusions)
	if err != nil {
		return nil, err
	}

	origin, _ := url.Parse(seed)

	var (
		found   []string
		queue   = []frontierItem{{url: seed, depth: 0}}
		visited = map[string]bool{seed: true}
	)

	for len(queue) > 0 && len(found) < MaxSitemapURLs {
		item := queue[0]
		queue = queue[1:]

		found = append(found, item.url)
		if item.depth >= maxDepth {
			continue
		}

		page, err := d.fetcher.Fetch(ctx, item.url)
		if err != nil {
			// A single unreachable page must not abort discovery; the worker
			// retries the URL independently anyway.
			slog.WarnContext(ctx, "discovery fetch failed, not expanding", "url", item.url, "error", err)
			continue
		}

		for _, link := range page.Links {
			normalized, err := normalizeURL(link)
			if err != nil {
				continue
			}
			linkURL, _ := url.Parse(normalized)
			if linkURL.Host != origin.Host {
				continue
			}
			if visited[normalized] || excluded(exclusions, normalized) {
				continue
			}
			visited[normalized] = true
			queue = append(queue, frontierItem{url: normalized, depth: item.depth + 1})
		}
	}

	return found, nil
}

func (d *Discoverer) dropIngested(ctx context.Context, userID string, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return urls, nil
	}

	existing, err := d.index.ExistingSourceURLs(ctx, userID, urls)
	if err != nil {
		// Losing the dedup check degrades to re-ingesting, which the writer's
		// replace semantics make safe.
		slog.WarnContext(ctx, "ingested-url lookup failed, keeping all candidates", "error", err)
		return urls, nil
	}

	out := urls[:0]
	for _, u := range urls {
		if !existing[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func compileExclusions(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func excluded(patterns []*regexp.Regexp, u string) bool {
	for _, re := range patterns {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Fragment = ""
	return u.String(), nil
}
