package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/job"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/webcrawl"
	"corpora/apps/ingest/internal/worker"
)

const (
	StatusQueued  = "queued"
	StatusSkipped = "skipped"
)

// SubmitResult is returned to the caller immediately; all heavy work happens
// in background tasks.
type SubmitResult struct {
	Status string `json:"status"`
	JobRef string `json:"job_ref,omitempty"`
}

// FileRequest ingests one already-staged blob.
type FileRequest struct {
	UserID   string `json:"user_id"`
	BlobPath string `json:"blob_path"`
	Priority string `json:"priority,omitempty"`
}

// ProviderRequest ingests items from a connected provider.
type ProviderRequest struct {
	UserID   string   `json:"user_id"`
	Provider string   `json:"provider"`
	ItemIDs  []string `json:"item_ids"`
	Priority string   `json:"priority,omitempty"`
}

// SyncRequest triggers an incremental provider sync.
type SyncRequest struct {
	UserID      string `json:"user_id"`
	Provider    string `json:"provider"`
	FolderScope string `json:"folder_scope,omitempty"`
}

// CrawlRequest submits a web crawl.
type CrawlRequest struct {
	UserID          string   `json:"user_id"`
	RootURL         string   `json:"root_url"`
	CrawlType       string   `json:"crawl_type"`
	MaxDepth        int      `json:"max_depth"`
	RespectRobots   bool     `json:"respect_robots_txt"`
	Exclusions      []string `json:"exclusions,omitempty"`
	RefreshInterval int      `json:"refresh_interval_secs,omitempty"`
}

// Service validates submissions, creates the bookkeeping rows, and enqueues
// the background task. It never parses, embeds, or writes documents itself.
type Service struct {
	jobs   job.Repository
	crawls crawl.Repository
	pub    worker.Publisher
}

func NewService(jobs job.Repository, crawls crawl.Repository, pub worker.Publisher) *Service {
	return &Service{jobs: jobs, crawls: crawls, pub: pub}
}

func (s *Service) SubmitFile(ctx context.Context, req FileRequest) (*SubmitResult, error) {
	if req.UserID == "" || req.BlobPath == "" {
		return nil, fmt.Errorf("file submission requires user_id and blob_path")
	}

	j := &job.Job{UserID: req.UserID, Provider: string(connector.KindFile), TotalItems: 1}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publishTask(ctx, worker.IngestTaskPayload{
		JobID:    j.ID,
		UserID:   req.UserID,
		Provider: string(connector.KindFile),
		Kind:     string(connector.KindFile),
		BlobPath: req.BlobPath,
		Priority: req.Priority,
	}); err != nil {
		return nil, err
	}

	return &SubmitResult{Status: StatusQueued, JobRef: j.ID}, nil
}

func (s *Service) SubmitProvider(ctx context.Context, req ProviderRequest) (*SubmitResult, error) {
	if req.UserID == "" || req.Provider == "" || len(req.ItemIDs) == 0 {
		return nil, fmt.Errorf("provider submission requires user_id, provider and item_ids")
	}

	j := &job.Job{UserID: req.UserID, Provider: req.Provider, TotalItems: len(req.ItemIDs)}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publishTask(ctx, worker.IngestTaskPayload{
		JobID:    j.ID,
		UserID:   req.UserID,
		Provider: req.Provider,
		Kind:     string(connector.KindProvider),
		ItemIDs:  req.ItemIDs,
		Priority: req.Priority,
	}); err != nil {
		return nil, err
	}

	return &SubmitResult{Status: StatusQueued, JobRef: j.ID}, nil
}

// SubmitSync enqueues an incremental sync task. Progress lives in the sync
// state row; the job only tracks that the run reached a terminal status.
func (s *Service) SubmitSync(ctx context.Context, req SyncRequest) (*SubmitResult, error) {
	if req.UserID == "" || req.Provider == "" {
		return nil, fmt.Errorf("sync submission requires user_id and provider")
	}

	j := &job.Job{UserID: req.UserID, Provider: req.Provider}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publishTask(ctx, worker.IngestTaskPayload{
		JobID:       j.ID,
		UserID:      req.UserID,
		Provider:    req.Provider,
		Kind:        worker.KindSync,
		FolderScope: req.FolderScope,
	}); err != nil {
		return nil, err
	}

	return &SubmitResult{Status: StatusQueued, JobRef: j.ID}, nil
}

// SubmitCrawl dedupes by content hash: resubmitting the same URL with the
// same shape is skipped rather than crawled twice.
func (s *Service) SubmitCrawl(ctx context.Context, req CrawlRequest) (*SubmitResult, error) {
	if req.UserID == "" || req.RootURL == "" {
		return nil, fmt.Errorf("crawl submission requires user_id and root_url")
	}
	switch req.CrawlType {
	case crawl.TypeSingle, crawl.TypeRecursive, crawl.TypeSitemap:
	default:
		return nil, fmt.Errorf("unknown crawl type %q", req.CrawlType)
	}
	if req.MaxDepth > webcrawl.MaxCrawlDepth {
		req.MaxDepth = webcrawl.MaxCrawlDepth
	}

	cfg := &crawl.Config{
		UserID:        req.UserID,
		RootURL:       req.RootURL,
		CrawlType:     req.CrawlType,
		MaxDepth:      req.MaxDepth,
		RespectRobots: req.RespectRobots,
		Exclusions:    req.Exclusions,
	}
	if req.RefreshInterval > 0 {
		cfg.RefreshInterval = time.Duration(req.RefreshInterval) * time.Second
	}

	exists, err := s.crawls.ExistsByHash(ctx, cfg.Hash())
	if err != nil {
		return nil, fmt.Errorf("check duplicate crawl: %w", err)
	}
	if exists {
		slog.InfoContext(ctx, "duplicate crawl skipped", "root_url", req.RootURL)
		return &SubmitResult{Status: StatusSkipped}, nil
	}

	if err := s.crawls.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create crawl config: %w", err)
	}

	body, err := json.Marshal(worker.CrawlDiscoverPayload{
		CrawlID:       cfg.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(config.TopicCrawlDiscover, body); err != nil {
		return nil, fmt.Errorf("enqueue discovery: %w", err)
	}

	return &SubmitResult{Status: StatusQueued, JobRef: cfg.ID}, nil
}

func (s *Service) Job(ctx context.Context, id string) (*job.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *Service) Crawl(ctx context.Context, id string) (*crawl.Config, error) {
	return s.crawls.Get(ctx, id)
}

func (s *Service) publishTask(ctx context.Context, payload worker.IngestTaskPayload) error {
	payload.CorrelationID = middleware.GetCorrelationID(ctx)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicIngestTask, body); err != nil {
		return fmt.Errorf("enqueue ingest task: %w", err)
	}
	return nil
}
