package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

func scores(results []domain.RetrievalResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

func TestRetriever_Retrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the top_k best matches with 1-based ranks", func(t *testing.T) {
		store := newFakeStore()
		store.matches = []port.VectorMatch{match("a::0", 0.9), match("a::1", 0.7), match("b::0", 0.5)}
		emb := &fakeEmbedder{}
		r := NewRetriever(emb, store, nil)

		results, err := r.Retrieve(ctx, "what is a?", 2)
		require.NoError(t, err)

		assert.Equal(t, []float64{0.9, 0.7}, scores(results))
		assert.Equal(t, 1, results[0].Rank)
		assert.Equal(t, 2, results[1].Rank)
		assert.Equal(t, "a::0", results[0].Chunk.ID)
		assert.Equal(t, 1, emb.calls)
		assert.Equal(t, 1, store.searchCalls)
		assert.Equal(t, 2, store.lastTopK)
	})

	t.Run("Should return everything when fewer chunks than top_k exist", func(t *testing.T) {
		store := newFakeStore()
		store.honorTopK = true
		store.matches = []port.VectorMatch{match("a::0", 0.4), match("a::1", 0.3), match("a::2", 0.1)}
		r := NewRetriever(&fakeEmbedder{}, store, nil)

		results, err := r.Retrieve(ctx, "q", 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("Should keep the store order for ties", func(t *testing.T) {
		store := newFakeStore()
		store.matches = []port.VectorMatch{match("z::0", 0.5), match("a::0", 0.5), match("m::0", 0.5)}
		r := NewRetriever(&fakeEmbedder{}, store, nil)

		results, err := r.Retrieve(ctx, "q", 3)
		require.NoError(t, err)
		ids := []string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID}
		assert.Equal(t, []string{"z::0", "a::0", "m::0"}, ids)
	})

	t.Run("Should return an empty result for an empty store", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{}, newFakeStore(), nil)

		results, err := r.Retrieve(ctx, "q", 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Should reject a non-positive top_k before embedding", func(t *testing.T) {
		emb := &fakeEmbedder{}
		r := NewRetriever(emb, newFakeStore(), nil)

		for _, k := range []int{0, -1} {
			_, err := r.Retrieve(ctx, "q", k)
			assert.ErrorIs(t, err, domain.ErrConfig)
		}
		assert.Zero(t, emb.calls)
	})

	t.Run("Should reject a blank query", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{}, newFakeStore(), nil)

		_, err := r.Retrieve(ctx, "  \n", 3)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Should surface embedding failures as collaborator errors", func(t *testing.T) {
		tel := newRecordingTelemetry()
		store := newFakeStore()
		r := NewRetriever(&fakeEmbedder{err: errBoom}, store, tel)

		results, err := r.Retrieve(ctx, "q", 3)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, store.searchCalls)
		assert.Equal(t, []string{"embedder"}, tel.failures)
	})

	t.Run("Should surface store failures as collaborator errors", func(t *testing.T) {
		store := newFakeStore()
		store.searchErr = errBoom
		r := NewRetriever(&fakeEmbedder{}, store, nil)

		_, err := r.Retrieve(ctx, "q", 3)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("Should report completed retrievals", func(t *testing.T) {
		tel := newRecordingTelemetry()
		store := newFakeStore()
		store.matches = []port.VectorMatch{match("a::0", 0.9)}
		r := NewRetriever(&fakeEmbedder{}, store, tel)

		_, err := r.Retrieve(ctx, "q", 3)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, tel.results)
	})
}
