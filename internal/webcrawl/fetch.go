package webcrawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"corpora/apps/ingest/internal/resilience"
)

const maxBodyBytes = 10 << 20 // 10 MB

// Page is one fetched and extracted web page.
type Page struct {
	URL     string
	Title   string
	Content string
	Links   []string
}

// Fetcher downloads pages and extracts main content and same-page links.
// Recognized video-host URLs get a transcript fetch instead of HTML.
type Fetcher struct {
	client    *http.Client
	userAgent string
	retry     resilience.Policy
}

func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
		retry:     resilience.DefaultPolicy(),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if videoID := extractVideoID(rawURL); videoID != "" {
		return f.fetchTranscript(ctx, rawURL, videoID)
	}

	var body []byte
	err := f.retry.Do(ctx, func() error {
		var fetchErr error
		body, fetchErr = f.get(ctx, rawURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	return extractPage(rawURL, body)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.HTTPError{Status: resp.StatusCode, URL: rawURL}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func extractPage(rawURL string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{URL: rawURL}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if page.Title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			page.Title = strings.TrimSpace(og)
		}
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Remove()

	// Prefer semantic containers; fall back to body.
	container := doc.Find("article, main").First()
	if container.Length() == 0 {
		container = doc.Find("body")
	}
	page.Content = normalizeWhitespace(container.Text())

	base, _ := url.Parse(rawURL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs := resolveLink(base, href)
		if abs != "" {
			page.Links = append(page.Links, abs)
		}
	})

	return page, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// extractVideoID returns a video id for recognized video-host URLs, else "".
func extractVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			return strings.TrimPrefix(u.Path, "/shorts/")
		}
	case "youtu.be":
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

type transcriptXML struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// fetchTranscript pulls the caption track for a video instead of its HTML
// player page, which carries no indexable text.
func (f *Fetcher) fetchTranscript(ctx context.Context, rawURL, videoID string) (*Page, error) {
	transcriptURL := fmt.Sprintf("https://video.google.com/timedtext?lang=en&v=%s", url.QueryEscape(videoID))

	var body []byte
	err := f.retry.Do(ctx, func() error {
		var fetchErr error
		body, fetchErr = f.get(ctx, transcriptURL)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transcript for %s: %w", videoID, err)
	}

	var parsed transcriptXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	var b strings.Builder
	for _, t := range parsed.Texts {
		line := strings.TrimSpace(html.UnescapeString(t.Value))
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}

	return &Page{
		URL:     rawURL,
		Title:   fmt.Sprintf("Video transcript %s", videoID),
		Content: b.String(),
	}, nil
}
