// Package semantic ranks text passages against a query by embedding
// similarity. Three pipeline stages consume it: documentContext,
// relevantPassages and webSearch's query classification.
package semantic

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/compass-ai-chat/compass-sub000/internal/embedding"
)

// Options bounds a relevance search.
type Options struct {
	MaxChunkSize  int
	MinSimilarity float64
	MaxResults    int
}

// Passage is one ranked search hit.
type Passage struct {
	Text       string
	Similarity float64
}

// maxConcurrentEmbeds bounds parallel chunk embedding. The pipeline
// stages themselves stay strictly sequential; only the fan-out over
// chunks inside one stage is parallel.
const maxConcurrentEmbeds = 4

// SearchRelevantPassages chunks the corpus, embeds query and chunks, and
// returns passages above the similarity floor, best first.
func SearchRelevantPassages(ctx context.Context, query, corpus string, embedder embedding.Embedder, opts Options) ([]Passage, error) {
	chunks := embedding.ChunkText(corpus, opts.MaxChunkSize)
	return SearchChunks(ctx, query, chunks, nil, embedder, opts)
}

// SearchChunks ranks pre-chunked text. vectors, when non-nil, supplies
// precomputed embeddings aligned with chunks; chunks without a stored
// vector are embedded on demand.
func SearchChunks(ctx context.Context, query string, chunks []string, vectors [][]float32, embedder embedding.Embedder, opts Options) ([]Passage, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 3
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	corpus := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEmbeds)
	for i, chunk := range chunks {
		if vectors != nil && i < len(vectors) && len(vectors[i]) > 0 {
			corpus[i] = vectors[i]
			continue
		}
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			corpus[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	top := embedding.FindTopK(queryVec, corpus, opts.MaxResults)
	passages := make([]Passage, 0, len(top))
	for _, r := range top {
		if r.Similarity < opts.MinSimilarity {
			continue
		}
		passages = append(passages, Passage{Text: chunks[r.Index], Similarity: r.Similarity})
	}
	return passages, nil
}
