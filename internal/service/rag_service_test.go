package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

type ragFixture struct {
	svc   *RAGService
	emb   *fakeEmbedder
	chat  *fakeChat
	store *fakeStore
	load  *fakeLoader
	tel   *recordingTelemetry
}

func newRAGFixture(t *testing.T, mutate func(*RAGOptions)) *ragFixture {
	t.Helper()
	f := &ragFixture{
		emb:   &fakeEmbedder{},
		chat:  &fakeChat{answer: "grounded answer"},
		store: newFakeStore(),
		load:  &fakeLoader{files: map[string]string{}},
		tel:   newRecordingTelemetry(),
	}
	opts := DefaultRAGOptions()
	opts.ChunkSize = 15
	opts.ChunkOverlap = 5
	opts.Telemetry = f.tel
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := NewRAGService(f.emb, f.chat, f.store, f.load, opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewRAGService_RejectsInvalidWindow(t *testing.T) {
	opts := DefaultRAGOptions()
	opts.ChunkOverlap = opts.ChunkSize

	_, err := NewRAGService(&fakeEmbedder{}, &fakeChat{}, newFakeStore(), &fakeLoader{}, opts)
	assert.ErrorIs(t, err, domain.ErrConfig)

	opts = DefaultRAGOptions()
	opts.TopK = -2
	_, err = NewRAGService(&fakeEmbedder{}, &fakeChat{}, newFakeStore(), &fakeLoader{}, opts)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestRAGService_IngestText(t *testing.T) {
	ctx := context.Background()

	t.Run("Should embed once and write chunks in index order", func(t *testing.T) {
		f := newRAGFixture(t, nil)

		res, err := f.svc.IngestText(ctx, "hello", "Hello world. This is a test.", domain.Metadata{domain.MetaFilename: "hello.txt"})
		require.NoError(t, err)

		assert.Equal(t, "hello", res.DocID)
		assert.Equal(t, 3, res.Chunks)
		assert.Zero(t, res.Replaced)
		assert.Equal(t, []string{"hello::0", "hello::1", "hello::2"}, res.ChunkIDs)
		assert.Equal(t, 1, f.emb.batchCalls)
		assert.Equal(t, []string{"Hello world. Th", "d. This is a te", "a test."}, f.emb.lastBatch)

		recs := f.store.docs["hello"]
		require.Len(t, recs, 3)
		for i, r := range recs {
			assert.Equal(t, i, r.Chunk.Index)
			assert.NotEmpty(t, r.Vector)
			assert.Equal(t, "hello.txt", r.Chunk.Metadata[domain.MetaFilename])
		}
		assert.Equal(t, 3, f.tel.indexed["hello"])
	})

	t.Run("Should supersede the previous version of a document", func(t *testing.T) {
		f := newRAGFixture(t, nil)

		_, err := f.svc.IngestText(ctx, "doc", strings.Repeat("x", 45), nil)
		require.NoError(t, err)
		res, err := f.svc.IngestText(ctx, "doc", "short", nil)
		require.NoError(t, err)

		assert.Equal(t, 4, res.Replaced)
		assert.Len(t, f.store.docs["doc"], 1)
	})

	t.Run("Should clear a document re-ingested with blank text", func(t *testing.T) {
		f := newRAGFixture(t, nil)

		_, err := f.svc.IngestText(ctx, "doc", "some content", nil)
		require.NoError(t, err)
		res, err := f.svc.IngestText(ctx, "doc", "   ", nil)
		require.NoError(t, err)

		assert.Zero(t, res.Chunks)
		assert.Equal(t, 1, res.Replaced)
		assert.NotContains(t, f.store.docs, "doc")
		assert.Equal(t, 1, f.emb.batchCalls)
	})

	t.Run("Should write nothing when embedding fails", func(t *testing.T) {
		f := newRAGFixture(t, nil)
		f.emb.err = errBoom

		_, err := f.svc.IngestText(ctx, "doc", "some content", nil)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, f.store.replaceCall)
		assert.Equal(t, []string{"embedder"}, f.tel.failures)
	})

	t.Run("Should reject a short embedding batch", func(t *testing.T) {
		f := newRAGFixture(t, nil)
		f.emb.short = true

		_, err := f.svc.IngestText(ctx, "doc", "some content that spans windows", nil)
		assert.ErrorIs(t, err, port.ErrBatchSize)
		assert.Zero(t, f.store.replaceCall)
	})

	t.Run("Should surface store failures", func(t *testing.T) {
		f := newRAGFixture(t, nil)
		f.store.writeErr = errBoom

		_, err := f.svc.IngestText(ctx, "doc", "some content", nil)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
	})

	t.Run("Should require a document id", func(t *testing.T) {
		f := newRAGFixture(t, nil)

		_, err := f.svc.IngestText(ctx, "  ", "text", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestRAGService_IngestFile(t *testing.T) {
	ctx := context.Background()
	f := newRAGFixture(t, nil)
	f.load.files["guide"] = "A guide to the system."

	res, err := f.svc.IngestFile(ctx, "guide")
	require.NoError(t, err)
	assert.Equal(t, "guide", res.DocID)
	assert.Equal(t, "guide.txt", f.store.docs["guide"][0].Chunk.Metadata[domain.MetaFilename])

	_, err = f.svc.IngestFile(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRAGService_IngestDirectory(t *testing.T) {
	f := newRAGFixture(t, nil)
	f.load.files["a"] = "first document"
	f.load.files["c"] = "third document"
	f.load.order = []string{"a", "b", "c"}

	var seen []string
	results, err := f.svc.IngestDirectory(context.Background(), "dir", func(path string, done, total int, err error) {
		assert.Equal(t, 3, total)
		seen = append(seen, path)
		if path == "b" {
			assert.Error(t, err)
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "b:")
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].DocID)
	assert.Equal(t, "c", results[1].DocID)
}

func TestRAGService_IngestDirectory_DuplicateDocID(t *testing.T) {
	f := newRAGFixture(t, nil)
	f.load.files["a/readme.md"] = "alpha document about apples"
	f.load.files["b/readme.md"] = "beta document about bananas"
	f.load.files["notes.txt"] = "plain notes"
	f.load.order = []string{"a/readme.md", "b/readme.md", "notes.txt"}

	results, err := f.svc.IngestDirectory(context.Background(), "dir", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.CodeDuplicateDocumentID, de.Code)
	assert.Contains(t, err.Error(), "b/readme.md")
	assert.Contains(t, err.Error(), "a/readme.md")

	require.Len(t, results, 2)
	assert.Equal(t, "readme", results[0].DocID)
	assert.Equal(t, "notes", results[1].DocID)
	require.Len(t, f.store.docs["readme"], 1)
	assert.Equal(t, "alpha document about apples", f.store.docs["readme"][0].Chunk.Text)
}

func TestRAGService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("Should answer with citations in rank order", func(t *testing.T) {
		f := newRAGFixture(t, nil)
		f.store.matches = []port.VectorMatch{match("a::1", 0.9), match("b::0", 0.8), match("a::0", 0.7), match("c::0", 0.6)}

		got, err := f.svc.Ask(ctx, "what?", 0)
		require.NoError(t, err)

		assert.Equal(t, "grounded answer", got.Answer)
		assert.Equal(t, []string{"a::1", "b::0", "a::0"}, got.Citations)
		assert.Equal(t, "what?", f.chat.prompt)
		require.Len(t, f.chat.context, 3)
		assert.Contains(t, f.chat.context[0], "[a::1]")
		assert.Contains(t, f.chat.context[0], "text of a::1")
		assert.Equal(t, DefaultTopK, f.store.lastTopK)
	})

	t.Run("Should still ask the chat model when nothing is retrieved", func(t *testing.T) {
		f := newRAGFixture(t, nil)

		got, err := f.svc.Ask(ctx, "unknown topic", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, f.chat.calls)
		assert.Empty(t, f.chat.context)
		assert.Empty(t, got.Citations)
		assert.NotNil(t, got.Citations)
	})

	t.Run("Should surface chat failures", func(t *testing.T) {
		f := newRAGFixture(t, nil)
		f.chat.err = errBoom

		_, err := f.svc.Ask(ctx, "q", 1)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
		assert.Contains(t, f.tel.failures, "chat")
	})

	t.Run("Should bound top_k", func(t *testing.T) {
		f := newRAGFixture(t, func(o *RAGOptions) { o.MaxTopK = 5 })

		_, err := f.svc.Ask(ctx, "q", 6)
		assert.ErrorIs(t, err, domain.ErrConfig)
		_, err = f.svc.Ask(ctx, "q", -1)
		assert.ErrorIs(t, err, domain.ErrConfig)
		assert.Zero(t, f.emb.calls)
	})
}

func TestRAGService_Search(t *testing.T) {
	f := newRAGFixture(t, func(o *RAGOptions) { o.TopK = 2 })
	f.store.honorTopK = true
	f.store.matches = []port.VectorMatch{match("a::0", 0.9), match("a::1", 0.8), match("a::2", 0.7)}

	results, err := f.svc.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, f.svc.DefaultTopK())

	results, err = f.svc.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRAGService_Timeout(t *testing.T) {
	f := newRAGFixture(t, func(o *RAGOptions) { o.Timeout = 20 * time.Millisecond })
	f.emb.block = true

	_, err := f.svc.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRAGService_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newRAGFixture(t, nil)

	_, err := f.svc.IngestText(ctx, "doc", "Hello world. This is a test.", nil)
	require.NoError(t, err)

	chunks, err := f.svc.DocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	n, err := f.svc.DeleteDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.svc.DeleteDocument(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.DocumentChunks(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
