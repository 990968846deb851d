package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/internal/vector"
)

type fakeDocStore struct {
	docs map[string]*models.Document
}

func (f *fakeDocStore) GetDocument(id string) (*models.Document, error) {
	return f.docs[id], nil
}

type fakeObjectStore struct {
	blobs map[string][]byte
}

func (f *fakeObjectStore) Download(path string) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return data, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) ExtractText(data []byte, contentType string) (string, error) {
	return string(data), nil
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func newTestPipeline(embedder Embedder) (*Pipeline, *vector.MemoryStore) {
	db := &fakeDocStore{docs: map[string]*models.Document{
		"doc-1": {
			ID:          "doc-1",
			UserID:      "alice",
			StoragePath: "users/alice/files/doc-1",
			ContentType: "text/plain",
		},
	}}
	objects := &fakeObjectStore{blobs: map[string][]byte{
		"users/alice/files/doc-1": []byte(strings.Repeat("the quick brown fox ", 50)),
	}}

	vectors := vector.NewMemoryStore()
	p := NewPipeline(db, objects, passthroughExtractor{}, embedder, vectors, NewChunker(100, 10), nil)
	return p, vectors
}

func TestEnsureIndexedPopulatesNamespace(t *testing.T) {
	embedder := &countingEmbedder{}
	p, vectors := newTestPipeline(embedder)

	if err := p.EnsureIndexed(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ensure indexed: %v", err)
	}

	exists, _ := vectors.NamespaceExists(context.Background(), "doc-1")
	if !exists {
		t.Fatal("namespace not populated")
	}
	if got := embedder.calls.Load(); got != 1 {
		t.Fatalf("expected 1 embed call, got %d", got)
	}
}

func TestEnsureIndexedIsIdempotent(t *testing.T) {
	embedder := &countingEmbedder{}
	p, _ := newTestPipeline(embedder)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.EnsureIndexed(ctx, "doc-1"); err != nil {
			t.Fatalf("ensure indexed (run %d): %v", i, err)
		}
	}

	if got := embedder.calls.Load(); got != 1 {
		t.Fatalf("document embedded %d times, want 1", got)
	}
}

func TestEnsureIndexedConcurrentSingleIngest(t *testing.T) {
	embedder := &countingEmbedder{}
	p, vectors := newTestPipeline(embedder)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.EnsureIndexed(context.Background(), "doc-1"); err != nil {
				t.Errorf("ensure indexed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := embedder.calls.Load(); got != 1 {
		t.Fatalf("concurrent callers embedded %d times, want 1", got)
	}

	// No duplicate chunks from racing ingests.
	matches, err := vectors.Search(context.Background(), "doc-1", []float32{0, 1}, 1000)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	seen := make(map[int]bool)
	for _, m := range matches {
		if seen[m.ChunkIndex] {
			t.Fatalf("duplicate chunk index %d in namespace", m.ChunkIndex)
		}
		seen[m.ChunkIndex] = true
	}
}

func TestEnsureIndexedUnknownDocument(t *testing.T) {
	p, _ := newTestPipeline(&countingEmbedder{})

	err := p.EnsureIndexed(context.Background(), "missing")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestEnsureIndexedEmptyDocument(t *testing.T) {
	db := &fakeDocStore{docs: map[string]*models.Document{
		"doc-1": {ID: "doc-1", UserID: "alice", StoragePath: "p", ContentType: "text/plain"},
	}}
	objects := &fakeObjectStore{blobs: map[string][]byte{"p": []byte("   \n  ")}}
	p := NewPipeline(db, objects, passthroughExtractor{}, &countingEmbedder{}, vector.NewMemoryStore(), NewChunker(100, 10), nil)

	err := p.EnsureIndexed(context.Background(), "doc-1")
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("expected ErrIngestionFailed, got %v", err)
	}
}

func TestEnsureIndexedEmbedderFailure(t *testing.T) {
	embedder := &countingEmbedder{err: errors.New("embedding service down")}
	p, vectors := newTestPipeline(embedder)

	err := p.EnsureIndexed(context.Background(), "doc-1")
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("expected ErrIngestionFailed, got %v", err)
	}

	// A failed ingest must not leave a namespace that would mask a retry.
	exists, _ := vectors.NamespaceExists(context.Background(), "doc-1")
	if exists {
		t.Fatal("failed ingest left the namespace populated")
	}

	// A later call retries the full ingest.
	embedder.err = nil
	if err := p.EnsureIndexed(context.Background(), "doc-1"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}
