package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
	RetryCount int
}

// QdrantStore keeps chunks as points of one Qdrant collection with cosine distance.
type QdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
}

// NewQdrantStore creates the client and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: invalid dimension %d", cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, dimension: cfg.Dimension}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) path(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get(s.path(""))
	if err != nil {
		return fmt.Errorf("qdrant get collection: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": s.dimension, "distance": "Cosine"},
	}
	return s.do(ctx, "PUT", s.path(""), body, nil)
}

func (s *QdrantStore) do(ctx context.Context, method, url string, body, out any) error {
	req := s.client.R().SetContext(ctx).SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("qdrant %s %s failed (%d): %s", method, url, resp.StatusCode(), resp.String())
	}
	return nil
}

// pointID derives a stable UUID from the chunk id; Qdrant only accepts UUIDs
// or unsigned integers as point ids.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("tracelify:"+chunkID)).String()
}

func docFilter(docID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": docID}},
		},
	}
}

// staleFilter matches the chunks of docID at or past index from.
func staleFilter(docID string, from int) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": docID}},
			{"key": "chunk_index", "range": map[string]any{"gte": from}},
		},
	}
}

func (s *QdrantStore) count(ctx context.Context, filter map[string]any) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"filter": filter, "exact": true}
	if err := s.do(ctx, "POST", s.path("/points/count"), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// ReplaceDocument upserts the new points first and only then drops the stale
// tail, so a rejected write leaves the previous version in place.
func (s *QdrantStore) ReplaceDocument(ctx context.Context, docID string, records []port.VectorRecord) (int, error) {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != s.dimension {
			return 0, fmt.Errorf("chunk %s: %w: got %d, want %d", r.Chunk.ID, port.ErrDimensionMismatch, len(r.Vector), s.dimension)
		}
		points[i] = map[string]any{
			"id":      pointID(r.Chunk.ID),
			"vector":  r.Vector,
			"payload": chunkPayload(r.Chunk),
		}
	}

	removed, err := s.count(ctx, docFilter(docID))
	if err != nil {
		return 0, err
	}
	if len(points) > 0 {
		if err := s.do(ctx, "PUT", s.path("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
			return 0, err
		}
	}
	if removed > 0 {
		body := map[string]any{"filter": staleFilter(docID, len(records))}
		if err := s.do(ctx, "POST", s.path("/points/delete?wait=true"), body, nil); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

type qdrantPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]port.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	body := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	if err := s.do(ctx, "POST", s.path("/points/search"), body, &resp); err != nil {
		return nil, err
	}

	matches := make([]port.VectorMatch, 0, len(resp.Result))
	for _, p := range resp.Result {
		matches = append(matches, port.VectorMatch{Chunk: payloadChunk(p.Payload), Score: p.Score})
	}
	return matches, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := s.count(ctx, docFilter(docID))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	body := map[string]any{"filter": docFilter(docID)}
	if err := s.do(ctx, "POST", s.path("/points/delete?wait=true"), body, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *QdrantStore) DocumentChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	var offset any
	for {
		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		body := map[string]any{
			"filter":       docFilter(docID),
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		if err := s.do(ctx, "POST", s.path("/points/scroll"), body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			chunks = append(chunks, payloadChunk(p.Payload))
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	slices.SortFunc(chunks, func(a, b domain.Chunk) int { return cmp.Compare(a.Index, b.Index) })
	return chunks, nil
}

// Close is a no-op; the REST client holds no resources worth releasing.
func (s *QdrantStore) Close() error { return nil }

func chunkPayload(c domain.Chunk) map[string]any {
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"chunk_id":    c.ID,
		"doc_id":      c.DocID,
		"chunk_index": c.Index,
		"text":        c.Text,
		"start":       c.Start,
		"end":         c.End,
		"metadata":    meta,
	}
}

func payloadChunk(p map[string]any) domain.Chunk {
	c := domain.Chunk{Metadata: domain.Metadata{}}
	c.ID, _ = p["chunk_id"].(string)
	c.DocID, _ = p["doc_id"].(string)
	c.Text, _ = p["text"].(string)
	c.Index = payloadInt(p["chunk_index"])
	c.Start = payloadInt(p["start"])
	c.End = payloadInt(p["end"])
	if meta, ok := p["metadata"].(map[string]any); ok {
		for k, v := range meta {
			if s, ok := v.(string); ok {
				c.Metadata[k] = s
			}
		}
	}
	return c
}

func payloadInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
