package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used in tests and single-node dev
// setups. Namespaces are plain per-document chunk slices searched with
// cosine similarity.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string][]Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string][]Chunk),
	}
}

func (s *MemoryStore) NamespaceExists(ctx context.Context, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.namespaces[documentID]) > 0, nil
}

func (s *MemoryStore) Populate(ctx context.Context, documentID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]Chunk, len(chunks))
	copy(stored, chunks)
	s.namespaces[documentID] = append(s.namespaces[documentID], stored...)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, documentID string, queryEmbedding []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.namespaces[documentID]

	matches := make([]Match, 0, len(chunks))
	for _, chunk := range chunks {
		matches = append(matches, Match{
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Score:      cosineSimilarity(queryEmbedding, chunk.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

func (s *MemoryStore) DeleteNamespace(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, documentID)
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
