package semantic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// keywordEmbedder maps texts onto a fixed two-axis space so similarity
// is fully deterministic: axis 0 for "paris", axis 1 for everything
// else.
type keywordEmbedder struct {
	calls int
	err   error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if strings.Contains(strings.ToLower(text), "paris") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }

func TestSearchChunks_RanksAndFilters(t *testing.T) {
	chunks := []string{
		"Paris is the capital of France",
		"bananas are yellow",
		"the Paris metro opened in 1900",
	}

	passages, err := SearchChunks(context.Background(), "tell me about paris",
		chunks, nil, &keywordEmbedder{}, Options{MaxChunkSize: 512, MinSimilarity: 0.3, MaxResults: 3})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("got %d passages, want the 2 above the floor", len(passages))
	}
	for _, p := range passages {
		if !strings.Contains(strings.ToLower(p.Text), "paris") {
			t.Fatalf("passage %q below floor leaked through", p.Text)
		}
		if p.Similarity < 0.3 {
			t.Fatalf("similarity %v below floor", p.Similarity)
		}
	}
}

func TestSearchChunks_MaxResults(t *testing.T) {
	chunks := []string{"paris one", "paris two", "paris three", "paris four"}
	passages, err := SearchChunks(context.Background(), "paris",
		chunks, nil, &keywordEmbedder{}, Options{MinSimilarity: 0.3, MaxResults: 3})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("got %d passages, want capped at 3", len(passages))
	}
}

func TestSearchChunks_ReusesStoredVectors(t *testing.T) {
	embedder := &keywordEmbedder{}
	chunks := []string{"paris stored", "fresh chunk"}
	vectors := [][]float32{{1, 0}, nil}

	_, err := SearchChunks(context.Background(), "paris", chunks, vectors, embedder,
		Options{MinSimilarity: 0, MaxResults: 2})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	// Query plus the one chunk without a stored vector.
	if embedder.calls != 2 {
		t.Fatalf("embedder called %d times, want 2", embedder.calls)
	}
}

func TestSearchChunks_EmbedError(t *testing.T) {
	embedder := &keywordEmbedder{err: errors.New("backend down")}
	_, err := SearchChunks(context.Background(), "q", []string{"a"}, nil, embedder,
		Options{MaxResults: 1})
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

func TestSearchRelevantPassages_EmptyCorpus(t *testing.T) {
	passages, err := SearchRelevantPassages(context.Background(), "q", "   ",
		&keywordEmbedder{}, Options{MaxChunkSize: 512, MaxResults: 3})
	if err != nil {
		t.Fatalf("SearchRelevantPassages() error = %v", err)
	}
	if passages != nil {
		t.Fatalf("passages = %v, want nil for empty corpus", passages)
	}
}

type fakeJSONMessenger struct {
	response map[string]any
	err      error
}

func (f *fakeJSONMessenger) SendJSONMessage(context.Context, string, *chat.Model, string) (map[string]any, error) {
	return f.response, f.err
}

func TestIsSearchRequired(t *testing.T) {
	model := &chat.Model{ID: "m"}

	t.Run("positive", func(t *testing.T) {
		m := &fakeJSONMessenger{response: map[string]any{"searchRequired": true, "query": "weather paris"}}
		d := IsSearchRequired(context.Background(), "msg", m, model)
		if !d.SearchRequired || d.Query != "weather paris" {
			t.Fatalf("decision = %+v", d)
		}
	})

	t.Run("provider failure resolves to no search", func(t *testing.T) {
		m := &fakeJSONMessenger{err: errors.New("boom")}
		if d := IsSearchRequired(context.Background(), "msg", m, model); d.SearchRequired {
			t.Fatalf("decision = %+v, want no search on failure", d)
		}
	})

	t.Run("empty query forces no search", func(t *testing.T) {
		m := &fakeJSONMessenger{response: map[string]any{"searchRequired": true, "query": ""}}
		if d := IsSearchRequired(context.Background(), "msg", m, model); d.SearchRequired {
			t.Fatalf("decision = %+v, want empty query to disable search", d)
		}
	})

	t.Run("malformed fields ignored", func(t *testing.T) {
		m := &fakeJSONMessenger{response: map[string]any{"searchRequired": "yes", "query": 42}}
		if d := IsSearchRequired(context.Background(), "msg", m, model); d.SearchRequired || d.Query != "" {
			t.Fatalf("decision = %+v, want zero value", d)
		}
	})
}
