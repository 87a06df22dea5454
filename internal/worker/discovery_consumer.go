package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/webcrawl"
)

// URLDiscoverer expands one crawl seed into candidate page URLs.
type URLDiscoverer interface {
	Discover(ctx context.Context, spec webcrawl.Spec) ([]string, error)
}

// DiscoveryConsumer resolves one crawl submission into independent page
// tasks. It only enumerates and fans out; page fetching happens in
// PageConsumer instances, possibly on other processes.
type DiscoveryConsumer struct {
	crawls     crawl.Repository
	discoverer URLDiscoverer
	pub        Publisher
}

func NewDiscoveryConsumer(crawls crawl.Repository, discoverer URLDiscoverer, pub Publisher) *DiscoveryConsumer {
	return &DiscoveryConsumer{crawls: crawls, discoverer: discoverer, pub: pub}
}

func (h *DiscoveryConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload CrawlDiscoverPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid discovery task, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	cfg, err := h.crawls.Get(ctx, payload.CrawlID)
	if err != nil {
		slog.ErrorContext(ctx, "loading crawl config", "crawl_id", payload.CrawlID, "error", err)
		return err
	}

	if err := h.crawls.UpdateStatus(ctx, cfg.ID, crawl.StatusCrawling); err != nil {
		slog.WarnContext(ctx, "marking crawl started", "crawl_id", cfg.ID, "error", err)
	}

	urls, err := h.discoverer.Discover(ctx, webcrawl.Spec{
		UserID:     cfg.UserID,
		RootURL:    cfg.RootURL,
		CrawlType:  webcrawl.CrawlType(cfg.CrawlType),
		MaxDepth:   cfg.MaxDepth,
		Exclusions: cfg.Exclusions,
	})
	if err != nil {
		h.failCrawl(ctx, cfg, err.Error())
		return nil
	}

	if len(urls) == 0 {
		slog.InfoContext(ctx, "nothing to crawl", "crawl_id", cfg.ID, "root_url", cfg.RootURL)
		if err := h.crawls.UpdateStatus(ctx, cfg.ID, crawl.StatusCompleted); err != nil {
			slog.WarnContext(ctx, "completing empty crawl", "crawl_id", cfg.ID, "error", err)
		}
		return nil
	}

	// total_pages is set before fan-out so workers can detect completion from
	// the counters alone.
	if err := h.crawls.SetTotalPages(ctx, cfg.ID, len(urls)); err != nil {
		slog.ErrorContext(ctx, "setting total pages", "crawl_id", cfg.ID, "error", err)
		return err
	}

	for _, u := range urls {
		body, err := json.Marshal(CrawlPagePayload{
			CrawlID:       cfg.ID,
			UserID:        cfg.UserID,
			URL:           u,
			RespectRobots: cfg.RespectRobots,
			CorrelationID: correlationID,
		})
		if err != nil {
			continue
		}
		if err := h.pub.Publish(config.TopicCrawlPage, body); err != nil {
			slog.ErrorContext(ctx, "enqueueing page task", "url", u, "error", err)
			return err
		}
	}

	slog.InfoContext(ctx, "crawl dispatched", "crawl_id", cfg.ID, "pages", len(urls))
	return nil
}

func (h *DiscoveryConsumer) failCrawl(ctx context.Context, cfg *crawl.Config, msg string) {
	slog.ErrorContext(ctx, "crawl discovery failed", "crawl_id", cfg.ID, "error", msg)
	if err := h.crawls.UpdateStatus(ctx, cfg.ID, crawl.StatusFailed); err != nil {
		slog.ErrorContext(ctx, "recording crawl failure", "crawl_id", cfg.ID, "error", err)
	}

	body, err := json.Marshal(OutcomePayload{
		UserID:        cfg.UserID,
		Title:         "Crawl failed",
		Message:       msg,
		Type:          notification.TypeError,
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
