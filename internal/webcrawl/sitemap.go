package webcrawl

import (
	"context"
	"encoding/xml"
	"log/slog"
)

// MaxSitemapURLs caps discovery from sitemap expansion.
const MaxSitemapURLs = 10_000

type sitemapDoc struct {
	XMLName xml.Name     `xml:""`
	URLs    []sitemapLoc `xml:"url"`
	Maps    []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// ExpandSitemap resolves a sitemap URL into page URLs, following nested
// sitemapindex entries with an explicit worklist. Expansion stops at
// MaxSitemapURLs discovered pages; a child sitemap that fails to fetch is
// logged and skipped.
func (f *Fetcher) ExpandSitemap(ctx context.Context, seedURL string) ([]string, error) {
	var (
		pages    []string
		worklist = []string{seedURL}
		visited  = map[string]bool{}
	)

	for len(worklist) > 0 && len(pages) < MaxSitemapURLs {
		current := worklist[0]
		worklist = worklist[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		var body []byte
		err := f.retry.Do(ctx, func() error {
			var fetchErr error
			body, fetchErr = f.get(ctx, current)
			return fetchErr
		})
		if err != nil {
			if current == seedURL {
				return nil, err
			}
			slog.WarnContext(ctx, "skipping unreachable child sitemap", "url", current, "error", err)
			continue
		}

		var doc sitemapDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			if current == seedURL {
				return nil, err
			}
			slog.WarnContext(ctx, "skipping malformed child sitemap", "url", current, "error", err)
			continue
		}

		for _, m := range doc.Maps {
			if m.Loc != "" && !visited[m.Loc] {
				worklist = append(worklist, m.Loc)
			}
		}
		for _, u := range doc.URLs {
			if u.Loc == "" {
				continue
			}
			pages = append(pages, u.Loc)
			if len(pages) >= MaxSitemapURLs {
				break
			}
		}
	}

	return pages, nil
}
