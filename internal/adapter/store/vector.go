package store

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

// VectorStore handles pgvector-specific operations for chunk embeddings.
type VectorStore struct {
	store     *PostgresStore
	dimension int
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore, dimension int) *VectorStore {
	return &VectorStore{store: store, dimension: dimension}
}

func (v *VectorStore) checkDimension(vec []float32) error {
	if v.dimension > 0 && len(vec) != v.dimension {
		return fmt.Errorf("%w: got %d, want %d", port.ErrDimensionMismatch, len(vec), v.dimension)
	}
	return nil
}

// ReplaceDocument swaps the chunks of docID inside one transaction.
func (v *VectorStore) ReplaceDocument(ctx context.Context, docID string, records []port.VectorRecord) (int, error) {
	for _, r := range records {
		if err := v.checkDimension(r.Vector); err != nil {
			return 0, fmt.Errorf("chunk %s: %w", r.Chunk.ID, err)
		}
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, doc_id, chunk_index, content, start_offset, end_offset, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := marshalMetadata(r.Chunk.Metadata)
		if err != nil {
			return 0, err
		}
		c := r.Chunk
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocID, c.Index, c.Text, c.Start, c.End, meta, pgvector.NewVector(r.Vector),
		); err != nil {
			return 0, fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(removed), nil
}

// Search performs a cosine similarity search. Equal distances fall back to
// insertion order.
func (v *VectorStore) Search(ctx context.Context, vector []float32, topK int) ([]port.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := v.checkDimension(vector); err != nil {
		return nil, err
	}

	query := `SELECT id, doc_id, chunk_index, content, start_offset, end_offset, metadata::text,
	                 1 - (embedding <=> $1) AS similarity
	          FROM chunks
	          ORDER BY embedding <=> $1, seq
	          LIMIT $2`

	rows, err := v.store.db.QueryContext(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var matches []port.VectorMatch
	for rows.Next() {
		var (
			c     domain.Chunk
			meta  string
			score float64
		)
		if err := rows.Scan(&c.ID, &c.DocID, &c.Index, &c.Text, &c.Start, &c.End, &meta, &score); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		if c.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		matches = append(matches, port.VectorMatch{Chunk: c, Score: score})
	}
	return matches, rows.Err()
}

// DeleteDocument deletes all chunks of a document.
func (v *VectorStore) DeleteDocument(ctx context.Context, docID string) (int, error) {
	res, err := v.store.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DocumentChunks lists a document's chunks by index.
func (v *VectorStore) DocumentChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	rows, err := v.store.db.QueryContext(ctx,
		`SELECT id, doc_id, chunk_index, content, start_offset, end_offset, metadata::text
		 FROM chunks WHERE doc_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c    domain.Chunk
			meta string
		)
		if err := rows.Scan(&c.ID, &c.DocID, &c.Index, &c.Text, &c.Start, &c.End, &meta); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if c.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Close closes the underlying Postgres pool.
func (v *VectorStore) Close() error {
	return v.store.Close()
}
