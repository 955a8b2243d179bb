package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

var (
	_ port.VectorStore = (*MemoryStore)(nil)
	_ port.VectorStore = (*SQLiteStore)(nil)
	_ port.VectorStore = (*VectorStore)(nil)
	_ port.VectorStore = (*QdrantStore)(nil)
)

func record(docID string, idx int, vec ...float32) port.VectorRecord {
	return port.VectorRecord{
		Chunk: domain.Chunk{
			ID:       domain.ChunkID(docID, idx),
			DocID:    docID,
			Index:    idx,
			Text:     "chunk text",
			Start:    idx * 10,
			End:      idx*10 + 15,
			Metadata: domain.Metadata{domain.MetaFilename: docID + ".txt"},
		},
		Vector: vec,
	}
}

func matchIDs(ms []port.VectorMatch) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Chunk.ID
	}
	return out
}

// runStoreContract exercises behaviour every port.VectorStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) port.VectorStore) {
	ctx := context.Background()

	t.Run("Should rank by similarity and honour top_k", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReplaceDocument(ctx, "a", []port.VectorRecord{
			record("a", 0, 1, 0, 0),
			record("a", 1, 0.8, 0.6, 0),
			record("a", 2, 0, 0, 1),
		})
		require.NoError(t, err)

		got, err := s.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"a::0", "a::1"}, matchIDs(got))
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		assert.InDelta(t, 0.8, got[1].Score, 1e-6)
		assert.Equal(t, "a.txt", got[0].Chunk.Metadata[domain.MetaFilename])
		assert.Equal(t, 15, got[0].Chunk.End)
	})

	t.Run("Should return everything when top_k exceeds the store size", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReplaceDocument(ctx, "a", []port.VectorRecord{record("a", 0, 1, 0), record("a", 1, 0, 1)})
		require.NoError(t, err)

		got, err := s.Search(ctx, []float32{1, 1}, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Should keep insertion order for ties", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReplaceDocument(ctx, "z", []port.VectorRecord{record("z", 0, 1, 0)})
		require.NoError(t, err)
		_, err = s.ReplaceDocument(ctx, "a", []port.VectorRecord{record("a", 0, 2, 0)})
		require.NoError(t, err)

		got, err := s.Search(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"z::0", "a::0"}, matchIDs(got))
	})

	t.Run("Should return nothing from an empty store", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should replace previous chunks of a document", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReplaceDocument(ctx, "a", []port.VectorRecord{record("a", 0, 1, 0), record("a", 1, 1, 0), record("a", 2, 1, 0)})
		require.NoError(t, err)
		_, err = s.ReplaceDocument(ctx, "b", []port.VectorRecord{record("b", 0, 0, 1)})
		require.NoError(t, err)

		removed, err := s.ReplaceDocument(ctx, "a", []port.VectorRecord{record("a", 0, 0, 1)})
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		chunks, err := s.DocumentChunks(ctx, "a")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "a::0", chunks[0].ID)

		chunks, err = s.DocumentChunks(ctx, "b")
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("Should list chunks by index and delete them", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReplaceDocument(ctx, "doc", []port.VectorRecord{record("doc", 0, 1, 0), record("doc", 1, 0, 1)})
		require.NoError(t, err)

		chunks, err := s.DocumentChunks(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, 1, chunks[1].Index)
		assert.Equal(t, "doc.txt", chunks[1].Metadata[domain.MetaFilename])

		n, err := s.DeleteDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.DeleteDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Zero(t, n)

		chunks, err = s.DocumentChunks(ctx, "doc")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.VectorStore {
		return NewMemoryStore()
	})

	t.Run("Should reject mismatched dimensions", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.ReplaceDocument(context.Background(), "a", []port.VectorRecord{record("a", 0, 1, 0)})
		require.NoError(t, err)

		_, err = s.Search(context.Background(), []float32{1, 0, 0}, 1)
		assert.ErrorIs(t, err, port.ErrDimensionMismatch)
	})

	t.Run("Should refuse work after close", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Close())
		_, err := s.Search(context.Background(), []float32{1}, 1)
		assert.ErrorIs(t, err, port.ErrStoreClosed)
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.VectorStore {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "db", "chunks.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})

	t.Run("Should persist across reopen", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "chunks.db")

		s, err := NewSQLiteStore(ctx, path)
		require.NoError(t, err)
		_, err = s.ReplaceDocument(ctx, "a", []port.VectorRecord{record("a", 0, 0.25, -0.5)})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = NewSQLiteStore(ctx, path)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, path, s.Path())

		got, err := s.Search(ctx, []float32{0.25, -0.5}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	})
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

func TestCosine(t *testing.T) {
	s, err := cosine([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Zero(t, s)

	s, err = cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, s, 1e-9)
}
