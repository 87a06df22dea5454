package document

import "time"

// Document is the parent row for one logical source item (one file, one web
// page, one provider page). It is never updated in place: a re-sync replaces
// it wholesale, and chunks are cascade-deleted with it.
type Document struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Title      string         `json:"title"`
	SourceType string         `json:"source_type"`
	SourceURL  string         `json:"source_url"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Chunk is the embedded unit. chunk_index is dense 0..N-1 per document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Embedding  Vector    `json:"embedding"`
	ChunkIndex int       `json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkInput is what the pipeline hands the writer: ordered content with its
// vector. The writer assigns the final dense index.
type ChunkInput struct {
	Content   string
	Embedding []float32
}
