package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"corpora/apps/ingest/internal/middleware"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "user_id is required", http.StatusBadRequest)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, err := h.repo.ListByUser(ctx, userID, unreadOnly)
	if err != nil {
		slog.ErrorContext(ctx, "listing notifications", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.MarkRead(ctx, r.PathValue("id"), userID); err != nil {
		slog.ErrorContext(ctx, "marking notification read", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"data": "marked read"}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
