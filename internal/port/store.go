package port

import (
	"context"

	"github.com/tracelify/tracelify/internal/domain"
)

// VectorRecord is a chunk together with the embedding of its text.
type VectorRecord struct {
	Chunk  domain.Chunk
	Vector []float32
}

// VectorMatch is a search hit as reported by the store.
type VectorMatch struct {
	Chunk domain.Chunk
	Score float64
}

// VectorStore abstracts the similarity index.
// Implementations: in-memory, Postgres/pgvector, SQLite, Qdrant.
type VectorStore interface {
	// ReplaceDocument removes every stored chunk of docID and writes records in
	// order. It returns the number of chunks that were removed.
	ReplaceDocument(ctx context.Context, docID string, records []VectorRecord) (int, error)

	// Search returns at most topK matches, most similar first. Ties keep the
	// store's native order.
	Search(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error)

	// DeleteDocument removes all chunks of docID and returns how many were removed.
	DeleteDocument(ctx context.Context, docID string) (int, error)

	// DocumentChunks returns the chunks of docID ordered by chunk index.
	DocumentChunks(ctx context.Context, docID string) ([]domain.Chunk, error)

	Close() error
}

// DocumentLoader reads source documents from a file system.
type DocumentLoader interface {
	// Load reads one document. A missing file is a not-found error.
	Load(ctx context.Context, path string) (domain.Document, error)

	// Discover lists loadable files under dir in lexical order.
	Discover(ctx context.Context, dir string) ([]string, error)
}
