package webcrawl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	robotsCacheTTL     = 24 * time.Hour
	maxRobotsBodyBytes = 512 * 1024
)

// RobotsChecker fetches and caches robots.txt per host. A missing or
// unreachable robots.txt permits the fetch: crawling fails open, matching the
// de facto standard.
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

func NewRobotsChecker(userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		cache:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether the URL may be fetched under its host's robots.txt.
// Unparseable URLs are refused; robots fetch failures allow.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	entry := r.entryFor(ctx, parsed)
	if entry.allowAll {
		return true
	}
	return entry.data.TestAgent(parsed.Path, r.userAgent)
}

func (r *RobotsChecker) entryFor(ctx context.Context, u *url.URL) *robotsEntry {
	host := strings.ToLower(u.Host)

	r.mu.RLock()
	entry, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return entry
	}

	entry = r.fetch(ctx, u.Scheme, host)

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}

func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) *robotsEntry {
	allowAll := &robotsEntry{fetchedAt: time.Now(), allowAll: true}

	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return allowAll
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "robots.txt unreachable, allowing", "host", host, "error", err)
		return allowAll
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return allowAll
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return allowAll
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		slog.DebugContext(ctx, "robots.txt unparseable, allowing", "host", host, "error", err)
		return allowAll
	}

	return &robotsEntry{data: data, fetchedAt: time.Now()}
}
