package embedding

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"corpora/apps/ingest/internal/resilience"
)

// Embedder is the per-tier provider capability. Implementations must return
// exactly one vector per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Registry resolves a tier to its embedder. Constructed once per process and
// passed into the pipeline, so there is no hidden model singleton and tests
// can swap in fakes.
type Registry struct {
	byTier map[string]Embedder
}

func NewRegistry() *Registry {
	return &Registry{byTier: make(map[string]Embedder)}
}

func (r *Registry) Register(tier Tier, e Embedder) {
	r.byTier[tier.Name] = e
}

func (r *Registry) For(tier Tier) (Embedder, error) {
	e, ok := r.byTier[tier.Name]
	if !ok {
		return nil, fmt.Errorf("no embedder registered for tier %q", tier.Name)
	}
	return e, nil
}

const (
	// defaultMaxBatchTexts caps texts per provider request.
	defaultMaxBatchTexts = 100

	// defaultMaxBatchChars approximates the provider's per-request token
	// ceiling (~4 chars per token, ~20k tokens).
	defaultMaxBatchChars = 80_000
)

// Batcher embeds large text lists within provider request limits. Sub-batches
// are paced by a rate limiter so bursts stay under throughput ceilings, and
// each sub-batch call is retried on transient failures.
type Batcher struct {
	embedder Embedder
	maxTexts int
	maxChars int
	pacer    *rate.Limiter
	retry    resilience.Policy
}

func NewBatcher(e Embedder, requestsPerSecond float64) *Batcher {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Batcher{
		embedder: e,
		maxTexts: defaultMaxBatchTexts,
		maxChars: defaultMaxBatchChars,
		pacer:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		retry:    resilience.DefaultPolicy(),
	}
}

// EmbedAll returns one vector per input, in input order. Blank inputs are
// filtered before the provider call and come back as nil vectors, so output
// positions always align 1:1 with the input list.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		pending    []string
		pendingIdx []int
		chars      int
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := b.pacer.Wait(ctx); err != nil {
			return err
		}

		var vectors [][]float32
		err := b.retry.Do(ctx, func() error {
			var embedErr error
			vectors, embedErr = b.embedder.EmbedBatch(ctx, pending)
			return embedErr
		})
		if err != nil {
			return err
		}
		if len(vectors) != len(pending) {
			return fmt.Errorf("embedding count mismatch: sent %d, received %d", len(pending), len(vectors))
		}

		for i, idx := range pendingIdx {
			out[idx] = vectors[i]
		}
		pending = pending[:0]
		pendingIdx = pendingIdx[:0]
		chars = 0
		return nil
	}

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if len(pending) >= b.maxTexts || (chars+len(t) > b.maxChars && len(pending) > 0) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		pending = append(pending, t)
		pendingIdx = append(pendingIdx, i)
		chars += len(t)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
