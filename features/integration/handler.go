package integration

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

type connectRequest struct {
	UserID      string `json:"user_id"`
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
}

// Connect stores a provider credential. The token is sealed before it ever
// touches a table; the response never echoes it back.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Provider == "" || req.AccessToken == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "user_id, provider and access_token are required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Upsert(ctx, req.UserID, req.Provider, req.AccessToken); err != nil {
		slog.ErrorContext(ctx, "storing integration", "provider", req.Provider, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "could not store credential", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"data": "connected"}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	provider := r.PathValue("provider")
	if userID == "" || provider == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "user_id and provider are required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Disconnect(ctx, userID, provider); err != nil {
		slog.ErrorContext(ctx, "disconnecting integration", "provider", provider, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"data": "disconnected"}); err != nil {
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
