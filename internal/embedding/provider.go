package embedding

import (
	"context"
	"fmt"
)

// TextEmbedder is the embedText capability of a chat provider.
type TextEmbedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderEmbedder adapts the turn's resolved chat provider into an
// Embedder, so semantic search runs against the same backend the
// conversation uses.
type ProviderEmbedder struct {
	backend TextEmbedder
	name    string
}

// NewProviderEmbedder wraps an embedText-capable backend.
func NewProviderEmbedder(backend TextEmbedder, name string) *ProviderEmbedder {
	return &ProviderEmbedder{backend: backend, name: name}
}

// Embed generates an embedding for a single text.
func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.backend.EmbedText(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for multiple texts, in input order.
func (e *ProviderEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.backend.EmbedText(ctx, texts)
}

// Name returns the backend name.
func (e *ProviderEmbedder) Name() string {
	return fmt.Sprintf("provider:%s", e.name)
}
