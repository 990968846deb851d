package vector

import (
	"context"
	"testing"
)

func populated(t *testing.T) *MemoryStore {
	t.Helper()

	s := NewMemoryStore()
	err := s.Populate(context.Background(), "doc-1", []Chunk{
		{Index: 0, Text: "alpha", Embedding: []float32{1, 0, 0}},
		{Index: 1, Text: "beta", Embedding: []float32{0, 1, 0}},
		{Index: 2, Text: "gamma", Embedding: []float32{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	return s
}

func TestNamespaceExists(t *testing.T) {
	s := populated(t)
	ctx := context.Background()

	exists, err := s.NamespaceExists(ctx, "doc-1")
	if err != nil || !exists {
		t.Fatalf("expected namespace to exist, got %v, %v", exists, err)
	}

	exists, err = s.NamespaceExists(ctx, "doc-2")
	if err != nil || exists {
		t.Fatalf("expected namespace to be absent, got %v, %v", exists, err)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s := populated(t)

	matches, err := s.Search(context.Background(), "doc-1", []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Text != "alpha" {
		t.Errorf("expected alpha first, got %q", matches[0].Text)
	}
	if matches[1].Text != "beta" {
		t.Errorf("expected beta second, got %q", matches[1].Text)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("matches not sorted by score: %v", matches)
	}
}

func TestSearchTieBreaksOnChunkOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Identical embeddings make every score equal; document order decides.
	err := s.Populate(ctx, "doc-1", []Chunk{
		{Index: 2, Text: "third", Embedding: []float32{1, 1}},
		{Index: 0, Text: "first", Embedding: []float32{1, 1}},
		{Index: 1, Text: "second", Embedding: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	matches, err := s.Search(ctx, "doc-1", []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []string{"first", "second", "third"}
	for i := range want {
		if matches[i].Text != want[i] {
			t.Errorf("match %d: got %q, want %q", i, matches[i].Text, want[i])
		}
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	s := populated(t)
	query := []float32{0.5, 0.5, 0.1}

	first, err := s.Search(context.Background(), "doc-1", query, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := s.Search(context.Background(), "doc-1", query, 3)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("result count changed between runs")
		}
		for j := range first {
			if again[j].ChunkIndex != first[j].ChunkIndex {
				t.Fatalf("run %d: result order changed at position %d", i, j)
			}
		}
	}
}

func TestSearchUnknownNamespace(t *testing.T) {
	s := NewMemoryStore()

	matches, err := s.Search(context.Background(), "missing", []float32{1}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestDeleteNamespaceIdempotent(t *testing.T) {
	s := populated(t)
	ctx := context.Background()

	if err := s.DeleteNamespace(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteNamespace(ctx, "doc-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	exists, _ := s.NamespaceExists(ctx, "doc-1")
	if exists {
		t.Fatal("namespace still exists after delete")
	}
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors: got %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths: got %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector: got %v, want 0", got)
	}
}
