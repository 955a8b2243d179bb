package store

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

type memoryRecord struct {
	seq    uint64
	chunk  domain.Chunk
	vector []float32
}

// MemoryStore is a brute-force cosine index held in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string][]memoryRecord
	seq    uint64
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]memoryRecord)}
}

func (m *MemoryStore) ReplaceDocument(_ context.Context, docID string, records []port.VectorRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, port.ErrStoreClosed
	}

	old := len(m.docs[docID])
	if len(records) == 0 {
		delete(m.docs, docID)
		return old, nil
	}

	recs := make([]memoryRecord, len(records))
	for i, r := range records {
		m.seq++
		recs[i] = memoryRecord{seq: m.seq, chunk: r.Chunk, vector: slices.Clone(r.Vector)}
	}
	m.docs[docID] = recs
	return old, nil
}

// Search scores every stored chunk. Ties keep insertion order.
func (m *MemoryStore) Search(_ context.Context, vector []float32, topK int) ([]port.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, port.ErrStoreClosed
	}
	if topK <= 0 {
		return nil, nil
	}

	type scored struct {
		rec   *memoryRecord
		score float64
	}
	var hits []scored
	for docID := range m.docs {
		recs := m.docs[docID]
		for i := range recs {
			s, err := cosine(vector, recs[i].vector)
			if err != nil {
				return nil, err
			}
			hits = append(hits, scored{rec: &recs[i], score: s})
		}
	}

	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.seq, b.rec.seq)
	})

	n := min(topK, len(hits))
	out := make([]port.VectorMatch, n)
	for i := 0; i < n; i++ {
		out[i] = port.VectorMatch{Chunk: hits[i].rec.chunk, Score: hits[i].score}
	}
	return out, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, docID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, port.ErrStoreClosed
	}
	n := len(m.docs[docID])
	delete(m.docs, docID)
	return n, nil
}

func (m *MemoryStore) DocumentChunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, port.ErrStoreClosed
	}
	recs := m.docs[docID]
	out := make([]domain.Chunk, len(recs))
	for i, r := range recs {
		out[i] = r.chunk
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.docs = nil
	return nil
}

// cosine returns the cosine similarity of a and b, 0 when either is the zero vector.
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: query has %d dimensions, stored vector %d", port.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
