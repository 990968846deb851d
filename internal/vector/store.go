// Package vector defines the namespaced vector store used for retrieval.
// Each document owns one namespace; once populated it is never repopulated.
package vector

import "context"

// Chunk is one embedded passage of a document.
type Chunk struct {
	Index     int
	Text      string
	Embedding []float32
}

// Match is a retrieval hit, most similar first.
type Match struct {
	ChunkIndex int
	Text       string
	Score      float32
}

type Store interface {
	// NamespaceExists reports whether the document's namespace holds any
	// vectors. An empty or missing namespace is not ready to query.
	NamespaceExists(ctx context.Context, documentID string) (bool, error)

	// Populate bulk-inserts the document's chunks. Callers only invoke it
	// after NamespaceExists returned false.
	Populate(ctx context.Context, documentID string, chunks []Chunk) error

	// Search returns the topK most similar chunks within the document's
	// namespace. Ties are broken by original chunk order.
	Search(ctx context.Context, documentID string, queryEmbedding []float32, topK int) ([]Match, error)

	// DeleteNamespace removes all vectors for the document. Deleting a
	// missing namespace is not an error.
	DeleteNamespace(ctx context.Context, documentID string) error
}
