package embedding

import (
	"math"
	"strings"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},       // 0.0
		{1, 0},       // 1.0
		{1, 1},       // ~0.707
		{1, 2, 3},    // mismatched, skipped
		{-1, 0},      // -1.0
	}

	top := FindTopK(query, corpus, 2)
	if len(top) != 2 {
		t.Fatalf("FindTopK returned %d results, want 2", len(top))
	}
	if top[0].Index != 1 || top[1].Index != 2 {
		t.Fatalf("top indices = %d,%d, want 1,2", top[0].Index, top[1].Index)
	}
	if top[0].Similarity < top[1].Similarity {
		t.Fatal("results not in descending similarity order")
	}
}

func TestChunkText_PrefersWhitespaceBreak(t *testing.T) {
	text := strings.Repeat("word ", 30) // 150 chars
	chunks := ChunkText(text, 64)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want the text split", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 64 {
			t.Fatalf("chunk %d exceeds max size: %d runes", i, len([]rune(c)))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %d not trimmed: %q", i, c)
		}
		if c != strings.TrimSpace(c) || !strings.HasPrefix(c, "word") {
			t.Fatalf("chunk %d broke mid-run: %q", i, c)
		}
	}
}

func TestChunkText_ShortInput(t *testing.T) {
	chunks := ChunkText("  hello  ", 512)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v, want [hello]", chunks)
	}
	if got := ChunkText("   \n\t ", 512); got != nil {
		t.Fatalf("whitespace-only input produced chunks: %v", got)
	}
}
