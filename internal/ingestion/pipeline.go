package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/metrics"
	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/internal/vector"
	"github.com/docchat/backend/pkg/logger"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrIngestionFailed  = errors.New("ingestion failed")
)

type DocumentStore interface {
	GetDocument(id string) (*models.Document, error)
}

type ObjectStore interface {
	Download(path string) ([]byte, error)
}

type TextExtractor interface {
	ExtractText(data []byte, contentType string) (string, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline indexes a document into its vector namespace exactly once.
// EnsureIndexed is called before every question, so the populated path must
// cost no more than one existence check.
type Pipeline struct {
	db       DocumentStore
	objects  ObjectStore
	loader   TextExtractor
	embedder Embedder
	vectors  vector.Store
	chunker  *Chunker
	hub      *events.Hub

	mu     sync.Mutex
	claims map[string]*sync.Mutex
}

func NewPipeline(db DocumentStore, objects ObjectStore, loader TextExtractor, embedder Embedder, vectors vector.Store, chunker *Chunker, hub *events.Hub) *Pipeline {
	return &Pipeline{
		db:       db,
		objects:  objects,
		loader:   loader,
		embedder: embedder,
		vectors:  vectors,
		chunker:  chunker,
		hub:      hub,
		claims:   make(map[string]*sync.Mutex),
	}
}

// EnsureIndexed makes the document's namespace ready to query. A per-document
// claim serializes concurrent first-time ingestions: the loser of the race
// waits, re-checks, and finds the namespace already populated.
func (p *Pipeline) EnsureIndexed(ctx context.Context, documentID string) error {
	exists, err := p.vectors.NamespaceExists(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: namespace check: %v", ErrIngestionFailed, err)
	}
	if exists {
		return nil
	}

	claim := p.claim(documentID)
	claim.Lock()
	defer claim.Unlock()

	exists, err = p.vectors.NamespaceExists(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: namespace check: %v", ErrIngestionFailed, err)
	}
	if exists {
		return nil
	}

	return p.ingest(ctx, documentID)
}

func (p *Pipeline) ingest(ctx context.Context, documentID string) error {
	start := time.Now()
	logger.Info("Indexing document", zap.String("document_id", documentID))

	doc, err := p.db.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	data, err := p.objects.Download(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}

	text, err := p.loader.ExtractText(data, doc.ContentType)
	if err != nil {
		return fmt.Errorf("%w: extract text: %v", ErrIngestionFailed, err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: document has no indexable text", ErrIngestionFailed)
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: embedding count mismatch: got %d, expected %d", ErrIngestionFailed, len(embeddings), len(chunks))
	}

	vectorChunks := make([]vector.Chunk, len(chunks))
	for i, chunkText := range chunks {
		vectorChunks[i] = vector.Chunk{
			Index:     i,
			Text:      chunkText,
			Embedding: embeddings[i],
		}
	}

	err = p.vectors.Populate(ctx, documentID, vectorChunks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}

	if p.hub != nil {
		p.hub.Publish(events.Event{
			Type:       events.TypeDocumentIndexed,
			UserID:     doc.UserID,
			DocumentID: documentID,
		})
	}

	metrics.DocumentsIndexed.Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	logger.Info("Document indexed",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

func (p *Pipeline) claim(documentID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.claims[documentID]
	if !ok {
		m = &sync.Mutex{}
		p.claims[documentID] = m
	}
	return m
}
