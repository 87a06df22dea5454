package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/internal/middleware"
)

// OutcomeConsumer turns pipeline outcomes into notification rows. It never
// propagates an error back to the queue: a lost notification is acceptable, a
// redelivery loop blocking the outcome topic is not.
type OutcomeConsumer struct {
	notifications notification.Repository
}

func NewOutcomeConsumer(notifications notification.Repository) *OutcomeConsumer {
	return &OutcomeConsumer{notifications: notifications}
}

func (h *OutcomeConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload OutcomePayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid outcome event, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.UserID == "" {
		slog.ErrorContext(ctx, "outcome event missing user_id, dropping")
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{
		"job_id":   payload.JobID,
		"crawl_id": payload.CrawlID,
	})

	n := &notification.Notification{
		UserID:   payload.UserID,
		Title:    payload.Title,
		Message:  payload.Message,
		Type:     payload.Type,
		Metadata: metadata,
	}
	if err := h.notifications.Create(ctx, n); err != nil {
		slog.ErrorContext(ctx, "writing notification", "error", err)
	}
	return nil
}
