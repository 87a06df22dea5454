package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"corpora/apps/ingest/features/job"
	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/features/syncstate"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/embedding"
	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/staging"
)

// FragmentProcessor is the chunk-embed-write pipeline.
type FragmentProcessor interface {
	ProcessFragment(ctx context.Context, userID, sourceType string, priority embedding.Priority, frag connector.Fragment) (string, error)
}

// Syncer runs one incremental provider sync to its terminal state.
type Syncer interface {
	IncrementalSync(ctx context.Context, key syncstate.Key, cfg connector.Config) error
}

// IngestConsumer executes queued ingestion jobs. It is the single place that
// translates pipeline failures into job status mutations and outcome events.
type IngestConsumer struct {
	connectors *connector.Registry
	pipeline   FragmentProcessor
	jobs       job.Repository
	store      staging.Store
	syncer     Syncer
	pub        Publisher
}

func NewIngestConsumer(connectors *connector.Registry, pipeline FragmentProcessor, jobs job.Repository, store staging.Store, syncer Syncer, pub Publisher) *IngestConsumer {
	return &IngestConsumer{
		connectors: connectors,
		pipeline:   pipeline,
		jobs:       jobs,
		store:      store,
		syncer:     syncer,
		pub:        pub,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid ingest task, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.JobID == "" || payload.UserID == "" {
		slog.ErrorContext(ctx, "ingest task missing job_id or user_id, dropping")
		return nil
	}

	if err := h.jobs.Start(ctx, payload.JobID); err != nil {
		slog.ErrorContext(ctx, "starting job", "job_id", payload.JobID, "error", err)
		return err
	}

	// Staged blobs follow store-forward-process-delete: the cleanup runs on
	// success and failure alike.
	if payload.BlobPath != "" {
		defer func() {
			if err := h.store.Delete(ctx, payload.BlobPath); err != nil {
				slog.WarnContext(ctx, "deleting staged blob", "path", payload.BlobPath, "error", err)
			}
		}()
	}

	if payload.Kind == KindSync {
		return h.runSync(ctx, payload)
	}
	return h.runIngest(ctx, payload)
}

func (h *IngestConsumer) runIngest(ctx context.Context, payload IngestTaskPayload) error {
	conn, err := h.connectors.ForKind(connector.Kind(payload.Kind))
	if err != nil {
		h.failJob(ctx, payload, fmt.Sprintf("unknown source kind %q", payload.Kind))
		return nil
	}

	frags, err := conn.Ingest(ctx, connector.Config{
		UserID:      payload.UserID,
		ItemIDs:     payload.ItemIDs,
		BlobPath:    payload.BlobPath,
		AccessToken: payload.AccessToken,
	})
	if err != nil {
		// Missing credentials and exhausted retries both end the job here;
		// neither gets a queue-level redelivery.
		if errors.Is(err, connector.ErrMissingCredentials) {
			h.failJob(ctx, payload, "provider not connected, re-authorization required")
			return nil
		}
		h.failJob(ctx, payload, err.Error())
		return nil
	}

	processed, failed := 0, 0
	for _, frag := range frags {
		_, procErr := h.pipeline.ProcessFragment(ctx, payload.UserID, payload.Provider, priorityOf(payload.Priority), frag)
		if errors.Is(procErr, connector.ErrEmptyFragment) {
			slog.DebugContext(ctx, "skipping empty fragment", "source_url", frag.SourceURL)
			continue
		}
		if procErr != nil {
			slog.WarnContext(ctx, "fragment failed, continuing batch", "source_url", frag.SourceURL, "error", procErr)
			failed++
			continue
		}
		processed++
		if err := h.jobs.IncrementProcessed(ctx, payload.JobID); err != nil {
			slog.WarnContext(ctx, "incrementing processed count", "job_id", payload.JobID, "error", err)
		}
	}

	// The job completes as long as something wrote; it fails only when every
	// non-empty fragment failed.
	if processed == 0 && failed > 0 {
		h.failJob(ctx, payload, "no items could be ingested")
		return nil
	}

	if err := h.jobs.Complete(ctx, payload.JobID); err != nil {
		slog.ErrorContext(ctx, "completing job", "job_id", payload.JobID, "error", err)
		return err
	}

	h.notify(ctx, OutcomePayload{
		UserID:  payload.UserID,
		Title:   "Ingestion complete",
		Message: fmt.Sprintf("%d of %d items processed", processed, len(frags)),
		Type:    notification.TypeSuccess,
		JobID:   payload.JobID,
	})
	return nil
}

func (h *IngestConsumer) runSync(ctx context.Context, payload IngestTaskPayload) error {
	key := syncstate.Key{
		UserID:      payload.UserID,
		Provider:    payload.Provider,
		FolderScope: payload.FolderScope,
	}
	err := h.syncer.IncrementalSync(ctx, key, connector.Config{
		UserID:      payload.UserID,
		AccessToken: payload.AccessToken,
	})
	if err != nil {
		h.failJob(ctx, payload, err.Error())
		return nil
	}

	if err := h.jobs.Complete(ctx, payload.JobID); err != nil {
		slog.ErrorContext(ctx, "completing sync job", "job_id", payload.JobID, "error", err)
		return err
	}

	h.notify(ctx, OutcomePayload{
		UserID:  payload.UserID,
		Title:   "Sync complete",
		Message: fmt.Sprintf("%s is up to date", payload.Provider),
		Type:    notification.TypeSuccess,
		JobID:   payload.JobID,
	})
	return nil
}

func (h *IngestConsumer) failJob(ctx context.Context, payload IngestTaskPayload, msg string) {
	slog.ErrorContext(ctx, "job failed", "job_id", payload.JobID, "error", msg)
	if err := h.jobs.Fail(ctx, payload.JobID, msg); err != nil {
		slog.ErrorContext(ctx, "recording job failure", "job_id", payload.JobID, "error", err)
	}
	h.notify(ctx, OutcomePayload{
		UserID:  payload.UserID,
		Title:   "Ingestion failed",
		Message: msg,
		Type:    notification.TypeError,
		JobID:   payload.JobID,
	})
}

func (h *IngestConsumer) notify(ctx context.Context, outcome OutcomePayload) {
	outcome.CorrelationID = middleware.GetCorrelationID(ctx)
	if err := PublishOutcome(h.pub, outcome); err != nil {
		slog.WarnContext(ctx, "publishing outcome", "error", err)
	}
}

func priorityOf(p string) embedding.Priority {
	if p == "" {
		return embedding.PriorityNormal
	}
	return embedding.Priority(p)
}
