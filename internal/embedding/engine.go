// Package embedding provides vector embedding generation and similarity
// scoring for the semantic-search stages. Backends: Ollama (local),
// Google GenAI (cloud), or any ChatProvider's embedText capability.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the backend name.
	Name() string
}

// Config holds embedding backend configuration.
type Config struct {
	// Backend: "ollama", "genai" or "provider"
	Backend string `yaml:"backend"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        "provider",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
	}
}

// NewEmbedder creates an embedding backend from configuration. The
// "provider" backend cannot be built here; it wraps the turn's resolved
// ChatProvider via NewProviderEmbedder.
func NewEmbedder(cfg Config) (Embedder, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEmbedder(cfg.GenAIAPIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding backend: %s (use 'ollama' or 'genai')", cfg.Backend)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}
	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// SimilarityResult pairs a corpus index with its similarity score.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the top K corpus vectors by cosine similarity to the
// query, descending. Vectors with mismatched dimensions are skipped.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ChunkText splits text into chunks of at most maxChunkSize runes,
// preferring to break on whitespace. Empty chunks are dropped.
func ChunkText(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = 512
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= maxChunkSize {
			if c := trimChunk(string(runes)); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		cut := maxChunkSize
		for i := maxChunkSize; i > maxChunkSize/2; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' || runes[i-1] == '\t' {
				cut = i
				break
			}
		}
		if c := trimChunk(string(runes[:cut])); c != "" {
			chunks = append(chunks, c)
		}
		runes = runes[cut:]
	}
	return chunks
}

func trimChunk(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
