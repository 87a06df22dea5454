// Package ingest is the core pipeline: fragments in, embedded documents out.
// It also owns submission, turning API requests into queued background tasks.
package ingest

import (
	"context"
	"errors"
	"sync"

	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/document"
	"corpora/apps/ingest/internal/embedding"
	"corpora/apps/ingest/internal/text"
)

// ErrEmptyContent marks a fragment with nothing to index. Callers skip these
// without counting them as failures.
var ErrEmptyContent = connector.ErrEmptyFragment

// DocumentWriter is the atomic persistence half of the pipeline.
type DocumentWriter interface {
	Write(ctx context.Context, doc *document.Document, chunks []document.ChunkInput) (string, error)
	DeleteBySourceURL(ctx context.Context, userID, sourceURL string) error
}

// Pipeline chunks a fragment, embeds the chunks on an auto-selected tier, and
// writes the document atomically. One instance is shared by every consumer.
type Pipeline struct {
	registry   *embedding.Registry
	writer     DocumentWriter
	forceLocal bool
	embedRPS   float64

	mu       sync.Mutex
	batchers map[string]*embedding.Batcher
}

func NewPipeline(registry *embedding.Registry, writer DocumentWriter, forceLocal bool, embedRPS float64) *Pipeline {
	return &Pipeline{
		registry:   registry,
		writer:     writer,
		forceLocal: forceLocal,
		embedRPS:   embedRPS,
		batchers:   make(map[string]*embedding.Batcher),
	}
}

// ProcessFragment runs the full chunk-embed-write path for one fragment and
// returns the written document id.
func (p *Pipeline) ProcessFragment(ctx context.Context, userID, sourceType string, priority embedding.Priority, frag connector.Fragment) (string, error) {
	chunks := text.Split(frag.Content)
	if len(chunks) == 0 {
		return "", ErrEmptyContent
	}

	tier := embedding.AutoSelect(len(chunks), priority, p.forceLocal)
	batcher, err := p.batcherFor(tier)
	if err != nil {
		return "", err
	}

	vectors, err := batcher.EmbedAll(ctx, chunks)
	if err != nil {
		return "", err
	}

	inputs := make([]document.ChunkInput, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		inputs = append(inputs, document.ChunkInput{Content: c, Embedding: vectors[i]})
	}
	if len(inputs) == 0 {
		return "", ErrEmptyContent
	}

	metadata := map[string]any{"embedding_tier": tier.Name, "embedding_model": tier.Model}
	for k, v := range frag.Metadata {
		metadata[k] = v
	}

	return p.writer.Write(ctx, &document.Document{
		UserID:     userID,
		Title:      frag.Title,
		SourceType: sourceType,
		SourceURL:  frag.SourceURL,
		Metadata:   metadata,
	}, inputs)
}

// Process adapts ProcessFragment to the incremental sync sink.
func (p *Pipeline) Process(ctx context.Context, userID, provider string, frag connector.Fragment) error {
	_, err := p.ProcessFragment(ctx, userID, provider, embedding.PriorityNormal, frag)
	if errors.Is(err, ErrEmptyContent) {
		return nil
	}
	return err
}

// Remove drops the document for a source the provider reports deleted.
func (p *Pipeline) Remove(ctx context.Context, userID, sourceURL string) error {
	return p.writer.DeleteBySourceURL(ctx, userID, sourceURL)
}

// batcherFor lazily builds one paced batcher per tier so all consumers share
// a tier's throughput budget.
func (p *Pipeline) batcherFor(tier embedding.Tier) (*embedding.Batcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.batchers[tier.Name]; ok {
		return b, nil
	}
	e, err := p.registry.For(tier)
	if err != nil {
		return nil, err
	}
	b := embedding.NewBatcher(e, p.embedRPS)
	p.batchers[tier.Name] = b
	return b, nil
}
