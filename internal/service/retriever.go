package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

// DefaultTopK is the number of chunks retrieved when the caller does not ask for more.
const DefaultTopK = 3

// Retriever embeds a query and asks the vector store for its nearest chunks.
type Retriever struct {
	embedder  port.Embedder
	store     port.VectorStore
	telemetry port.Telemetry
}

// NewRetriever creates a retriever. A nil telemetry discards events.
func NewRetriever(embedder port.Embedder, store port.VectorStore, telemetry port.Telemetry) *Retriever {
	if telemetry == nil {
		telemetry = port.NopTelemetry{}
	}
	return &Retriever{embedder: embedder, store: store, telemetry: telemetry}
}

// Retrieve returns up to topK chunks for query. Results keep the order the
// store returned them in and are ranked from 1. An empty store yields an empty
// result; collaborator failures are returned as errors, never as empty results.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		return nil, domain.ConfigError("retrieve", domain.CodeInvalidTopK,
			"top_k must be greater than zero, got %d", topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.InvalidInput("retrieve", domain.CodeEmptyQuery, "query must not be empty")
	}

	start := time.Now()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.telemetry.CollaboratorFailed("embedder")
		return nil, domain.CollaboratorError("retrieve: embed query", "embedder", err)
	}

	matches, err := r.store.Search(ctx, vector, topK)
	if err != nil {
		r.telemetry.CollaboratorFailed("vector_store")
		return nil, domain.CollaboratorError("retrieve: search", "vector store", err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}

	results := make([]domain.RetrievalResult, len(matches))
	for i, m := range matches {
		results[i] = domain.RetrievalResult{Chunk: m.Chunk, Score: m.Score, Rank: i + 1}
	}

	elapsed := time.Since(start)
	r.telemetry.RetrievalCompleted(len(results), elapsed)
	slog.DebugContext(ctx, "retrieval complete",
		"top_k", topK,
		"results", len(results),
		"duration_ms", elapsed.Milliseconds(),
	)
	return results, nil
}
