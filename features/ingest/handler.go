package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/staging"
)

type Handler struct {
	service       *Service
	store         staging.Store
	maxUploadSize int64
}

func NewHandler(s *Service, store staging.Store, maxUploadMB int) *Handler {
	return &Handler{
		service:       s,
		store:         store,
		maxUploadSize: int64(maxUploadMB) << 20,
	}
}

// Upload stages raw bytes and immediately submits a file job. The upload is
// capped; anything past the limit is rejected before it is read.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeError(ctx, w, "PAYLOAD_TOO_LARGE", "upload exceeds size limit", http.StatusRequestEntityTooLarge)
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	blobPath := fmt.Sprintf("%s/%s-%s", userID, uuid.NewString(), filepath.Base(header.Filename))
	if err := h.store.Upload(ctx, blobPath, data); err != nil {
		slog.ErrorContext(ctx, "staging upload", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "could not stage upload", http.StatusInternalServerError)
		return
	}

	result, err := h.service.SubmitFile(ctx, FileRequest{
		UserID:   userID,
		BlobPath: blobPath,
		Priority: r.FormValue("priority"),
	})
	if err != nil {
		slog.ErrorContext(ctx, "file submission", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) SubmitProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SubmitProvider(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "provider submission", "error", err)
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) SubmitSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SubmitSync(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "sync submission", "error", err)
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) SubmitCrawl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SubmitCrawl(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "crawl submission", "error", err)
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusAccepted
	if result.Status == StatusSkipped {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

// GetJob is the polling endpoint: read-only view of one job's progress.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	j, err := h.service.Job(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "job not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"data": j})
}

func (h *Handler) GetCrawl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.service.Crawl(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "crawl not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"data": c})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
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
