// Package crawl persists web crawl submissions and their progress counters.
// One config row is created per submission; discovery sets total_pages and
// page workers converge on pages_ingested/pages_failed via atomic increments.
package crawl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCrawling  = "crawling"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	TypeSingle    = "single"
	TypeRecursive = "recursive"
	TypeSitemap   = "sitemap"
)

type Config struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	RootURL         string        `json:"root_url"`
	CrawlType       string        `json:"crawl_type"`
	MaxDepth        int           `json:"max_depth"`
	RespectRobots   bool          `json:"respect_robots_txt"`
	Exclusions      []string      `json:"exclusions"`
	Status          string        `json:"status"`
	PagesIngested   int           `json:"pages_ingested"`
	PagesFailed     int           `json:"pages_failed"`
	TotalPages      int           `json:"total_pages"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	LastCrawledAt   *time.Time    `json:"last_crawled_at,omitempty"`
	ContentHash     string        `json:"content_hash"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Hash identifies a submission by what it crawls, so resubmitting the same
// URL with the same shape is detected as a duplicate.
func (c *Config) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", c.UserID, c.RootURL, c.CrawlType, c.MaxDepth)))
	return hex.EncodeToString(sum[:])
}

// Done reports whether every dispatched page reached an outcome.
func (c *Config) Done() bool {
	return c.TotalPages > 0 && c.PagesIngested+c.PagesFailed >= c.TotalPages
}
