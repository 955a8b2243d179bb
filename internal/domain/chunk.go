package domain

import (
	"strconv"
	"strings"
)

// ChunkIDSeparator joins a document id and a chunk index.
const ChunkIDSeparator = "::"

// ChunkID composes the stable identifier of the chunk at index idx of docID.
func ChunkID(docID string, idx int) string {
	return docID + ChunkIDSeparator + strconv.Itoa(idx)
}

// ParseChunkID splits a chunk id back into its document id and index. The
// split happens at the last separator so document ids may contain "::".
func ParseChunkID(id string) (string, int, bool) {
	i := strings.LastIndex(id, ChunkIDSeparator)
	if i < 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(id[i+len(ChunkIDSeparator):])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return id[:i], idx, true
}

// Chunk is one addressable window of a document.
//
// Start and End delimit the untrimmed window in rune offsets of the source
// text; Text is that window with surrounding whitespace removed.
type Chunk struct {
	ID       string   `json:"id"`
	DocID    string   `json:"doc_id"`
	Index    int      `json:"chunk_index"`
	Text     string   `json:"text"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Metadata Metadata `json:"metadata"`
}

// RetrievalResult is a chunk returned for a query together with the score the
// vector store reported for it. Rank is 1-based.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Citation describes one chunk that was offered to the chat model as context.
type Citation struct {
	ChunkID  string  `json:"chunk_id"`
	DocID    string  `json:"doc_id"`
	Index    int     `json:"chunk_index"`
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename,omitempty"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
}

// CitedAnswer pairs generated text with the ids of the chunks it was grounded on,
// in rank order.
type CitedAnswer struct {
	Answer    string     `json:"answer"`
	Citations []string   `json:"citations"`
	Sources   []Citation `json:"sources"`
}
