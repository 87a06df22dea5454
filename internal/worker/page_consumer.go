package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/webcrawl"
)

// throttleRequeueDelay spaces out retries for rate-limited domains.
const throttleRequeueDelay = 30 * time.Second

// RobotsPolicy answers whether a URL may be fetched. Implementations fail
// open: an unreachable robots.txt permits the fetch.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// DomainLimiter shares a per-domain request budget across worker processes.
type DomainLimiter interface {
	Allow(ctx context.Context, domain string) bool
}

// PageConsumer ingests one crawled page per message. Pages of one crawl run
// concurrently in any order; the crawl converges on its counters.
type PageConsumer struct {
	crawls   crawl.Repository
	robots   RobotsPolicy
	limiter  DomainLimiter
	fetcher  webcrawl.PageFetcher
	pipeline FragmentProcessor
	pub      Publisher
}

func NewPageConsumer(crawls crawl.Repository, robots RobotsPolicy, limiter DomainLimiter, fetcher webcrawl.PageFetcher, pipeline FragmentProcessor, pub Publisher) *PageConsumer {
	return &PageConsumer{
		crawls:   crawls,
		robots:   robots,
		limiter:  limiter,
		fetcher:  fetcher,
		pipeline: pipeline,
		pub:      pub,
	}
}

func (h *PageConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload CrawlPagePayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid page task, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.CrawlID == "" || payload.URL == "" {
		slog.ErrorContext(ctx, "page task missing crawl_id or url, dropping")
		return nil
	}

	if payload.RespectRobots && !h.robots.Allowed(ctx, payload.URL) {
		slog.InfoContext(ctx, "robots.txt disallows page", "url", payload.URL)
		h.recordFailure(ctx, payload)
		return nil
	}

	// Throttled pages go back on the queue instead of burning an attempt.
	if domain := domainOf(payload.URL); domain != "" && !h.limiter.Allow(ctx, domain) {
		slog.InfoContext(ctx, "domain throttled, requeueing", "url", payload.URL)
		m.RequeueWithoutBackoff(throttleRequeueDelay)
		return nil
	}

	page, err := h.fetcher.Fetch(ctx, payload.URL)
	if err != nil {
		slog.WarnContext(ctx, "page fetch failed", "url", payload.URL, "error", err)
		h.recordFailure(ctx, payload)
		return nil
	}

	_, err = h.pipeline.ProcessFragment(ctx, payload.UserID, "web", priorityOf(payload.Priority), connector.Fragment{
		Title:     page.Title,
		Content:   page.Content,
		SourceURL: page.URL,
	})
	if errors.Is(err, connector.ErrEmptyFragment) {
		// Empty pages are skipped, not failed.
		slog.InfoContext(ctx, "page has no content, skipping", "url", payload.URL)
		h.recordSuccess(ctx, payload)
		return nil
	}
	if err != nil {
		slog.WarnContext(ctx, "page ingestion failed", "url", payload.URL, "error", err)
		h.recordFailure(ctx, payload)
		return nil
	}

	h.recordSuccess(ctx, payload)
	return nil
}

func (h *PageConsumer) recordSuccess(ctx context.Context, payload CrawlPagePayload) {
	cfg, err := h.crawls.IncrementIngested(ctx, payload.CrawlID)
	if err != nil {
		slog.ErrorContext(ctx, "incrementing ingested pages", "crawl_id", payload.CrawlID, "error", err)
		return
	}
	h.maybeComplete(ctx, payload.UserID, cfg)
}

func (h *PageConsumer) recordFailure(ctx context.Context, payload CrawlPagePayload) {
	cfg, err := h.crawls.IncrementFailed(ctx, payload.CrawlID)
	if err != nil {
		slog.ErrorContext(ctx, "incrementing failed pages", "crawl_id", payload.CrawlID, "error", err)
		return
	}
	h.maybeComplete(ctx, payload.UserID, cfg)
}

// maybeComplete closes the crawl when the counters account for every
// dispatched page. Partial success still completes; the counters tell the
// real story.
func (h *PageConsumer) maybeComplete(ctx context.Context, userID string, cfg *crawl.Config) {
	if cfg == nil || !cfg.Done() || cfg.Status == crawl.StatusCompleted {
		return
	}

	if err := h.crawls.UpdateStatus(ctx, cfg.ID, crawl.StatusCompleted); err != nil {
		slog.ErrorContext(ctx, "completing crawl", "crawl_id", cfg.ID, "error", err)
		return
	}

	kind := notification.TypeSuccess
	if cfg.PagesIngested == 0 {
		kind = notification.TypeWarning
	}
	body, err := json.Marshal(OutcomePayload{
		UserID:        userID,
		Title:         "Crawl complete",
		Message:       fmt.Sprintf("%d of %d pages ingested", cfg.PagesIngested, cfg.TotalPages),
		Type:          kind,
		CrawlID:       cfg.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return
	}
	if err := h.pub.Publish(config.TopicIngestOutcome, body); err != nil {
		slog.WarnContext(ctx, "publishing crawl outcome", "error", err)
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
