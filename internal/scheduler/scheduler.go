// Package scheduler re-enqueues crawls whose refresh interval has elapsed.
// It is a periodic scan over the crawl configs, not a scheduler service: the
// actual re-crawl runs through the same discovery topic as a fresh
// submission.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/worker"
)

type Scheduler struct {
	crawls crawl.Repository
	pub    worker.Publisher
	cron   *cron.Cron
	spec   string
}

func New(crawls crawl.Repository, pub worker.Publisher, spec string) *Scheduler {
	return &Scheduler{
		crawls: crawls,
		pub:    pub,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start registers the scan and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.scan); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// scan resets and re-enqueues every due crawl. Failures on one config never
// stop the rest of the scan.
func (s *Scheduler) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()
	due, err := s.crawls.ListDueForRefresh(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "listing crawls due for refresh", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	for _, cfg := range due {
		if err := s.crawls.MarkRefreshed(ctx, cfg.ID, now); err != nil {
			slog.WarnContext(ctx, "resetting crawl for refresh", "crawl_id", cfg.ID, "error", err)
			continue
		}

		body, err := json.Marshal(worker.CrawlDiscoverPayload{CrawlID: cfg.ID})
		if err != nil {
			continue
		}
		if err := s.pub.Publish(config.TopicCrawlDiscover, body); err != nil {
			slog.WarnContext(ctx, "re-enqueueing crawl", "crawl_id", cfg.ID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "scheduled re-crawl", "crawl_id", cfg.ID, "root_url", cfg.RootURL)
	}
}
