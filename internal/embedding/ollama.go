package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder serves the local/free tier against a self-hosted node.
type OllamaEmbedder struct {
	llm *ollama.LLM
}

func NewOllamaEmbedder(host, model string) (*OllamaEmbedder, error) {
	llm, err := ollama.New(ollama.WithServerURL(host), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &OllamaEmbedder{llm: llm}, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, received %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
