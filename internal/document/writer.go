package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// Writer persists one parent document plus its chunks as a single
// transaction. A failure anywhere rolls the whole write back, so no orphaned
// parent or partial chunk set ever survives.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Write replaces any prior document for (user_id, source_url), inserts the
// parent, then inserts every chunk with a dense 0..N-1 index, all in one
// transaction. Returns the new document id.
func (w *Writer) Write(ctx context.Context, doc *Document, chunks []ChunkInput) (string, error) {
	if doc.UserID == "" || doc.SourceURL == "" {
		return "", fmt.Errorf("document requires user_id and source_url")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin write: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	// Re-ingesting the same source replaces, never duplicates. Chunks go with
	// the parent via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = $1 AND source_url = $2`,
		doc.UserID, doc.SourceURL); err != nil {
		return "", fmt.Errorf("replace prior document: %w", err)
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO documents (user_id, title, source_type, source_url, metadata)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		doc.UserID, doc.Title, doc.SourceType, doc.SourceURL, metadata).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (document_id, content, embedding, chunk_index)
			 VALUES ($1, $2, $3, $4)`,
			id, c.Content, Vector(c.Embedding), i); err != nil {
			return "", fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit write: %w", err)
	}

	doc.ID = id
	slog.InfoContext(ctx, "document written", "document_id", id, "source_url", doc.SourceURL, "chunks", len(chunks))
	return id, nil
}

// DeleteBySourceURL removes a document (and via cascade its chunks) when a
// provider reports the source item deleted.
func (w *Writer) DeleteBySourceURL(ctx context.Context, userID, sourceURL string) error {
	_, err := w.db.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = $1 AND source_url = $2`,
		userID, sourceURL)
	return err
}

// ExistingSourceURLs reports which of the candidate URLs already have a
// document for this user, so crawl discovery can skip re-ingested pages.
func (w *Writer) ExistingSourceURLs(ctx context.Context, userID string, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT source_url FROM documents WHERE user_id = $1 AND source_url = ANY($2)`,
		userID, pq.Array(urls))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		existing[u] = true
	}
	return existing, rows.Err()
}
