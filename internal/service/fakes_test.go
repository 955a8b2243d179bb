package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

var errBoom = errors.New("boom")

type fakeEmbedder struct {
	mu         sync.Mutex
	err        error
	block      bool
	short      bool
	calls      int
	batchCalls int
	lastBatch  []string
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.lastBatch = append([]string(nil), texts...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeChat struct {
	answer  string
	err     error
	calls   int
	prompt  string
	context []string
}

func (f *fakeChat) ModelName() string { return "fake-chat" }

func (f *fakeChat) Chat(_ context.Context, _ string, userPrompt string, contextChunks []string) (string, error) {
	f.calls++
	f.prompt = userPrompt
	f.context = contextChunks
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeStore returns canned matches and records writes.
type fakeStore struct {
	matches     []port.VectorMatch
	honorTopK   bool
	searchErr   error
	writeErr    error
	searchCalls int
	lastTopK    int
	docs        map[string][]port.VectorRecord
	replaceCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]port.VectorRecord)}
}

func (f *fakeStore) ReplaceDocument(_ context.Context, docID string, records []port.VectorRecord) (int, error) {
	f.replaceCall++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	old := len(f.docs[docID])
	if len(records) == 0 {
		delete(f.docs, docID)
	} else {
		f.docs[docID] = records
	}
	return old, nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int) ([]port.VectorMatch, error) {
	f.searchCalls++
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.honorTopK && len(f.matches) > topK {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, docID string) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(f.docs[docID])
	delete(f.docs, docID)
	return n, nil
}

func (f *fakeStore) DocumentChunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	recs := f.docs[docID]
	out := make([]domain.Chunk, len(recs))
	for i, r := range recs {
		out[i] = r.Chunk
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeLoader struct {
	files map[string]string
	order []string
}

func (f *fakeLoader) Load(_ context.Context, path string) (domain.Document, error) {
	content, ok := f.files[path]
	if !ok {
		return domain.Document{}, domain.NotFound("load", domain.CodeDocumentNotFound, "file %q does not exist", path)
	}
	name := filepath.Base(path)
	if filepath.Ext(name) == "" {
		name += ".txt"
	}
	return domain.Document{
		ID:       strings.TrimSuffix(name, filepath.Ext(name)),
		Content:  content,
		Metadata: domain.Metadata{domain.MetaFilename: name},
	}, nil
}

func (f *fakeLoader) Discover(_ context.Context, _ string) ([]string, error) {
	return f.order, nil
}

func match(id string, score float64) port.VectorMatch {
	doc, idx, _ := domain.ParseChunkID(id)
	return port.VectorMatch{
		Chunk: domain.Chunk{ID: id, DocID: doc, Index: idx, Text: "text of " + id,
			Metadata: domain.Metadata{domain.MetaFilename: doc + ".txt"}},
		Score: score,
	}
}

type recordingTelemetry struct {
	indexed  map[string]int
	failures []string
	results  []int
}

func newRecordingTelemetry() *recordingTelemetry {
	return &recordingTelemetry{indexed: make(map[string]int)}
}

func (r *recordingTelemetry) ChunksIndexed(docID string, n int) { r.indexed[docID] += n }

func (r *recordingTelemetry) RetrievalCompleted(results int, _ time.Duration) {
	r.results = append(r.results, results)
}

func (r *recordingTelemetry) CollaboratorFailed(c string) { r.failures = append(r.failures, c) }
