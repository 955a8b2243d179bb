package service

import (
	"strconv"
	"strings"

	"github.com/tracelify/tracelify/internal/domain"
)

// Default window parameters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunker splits documents into fixed-size overlapping windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window parameters. Invalid values are rejected,
// never clamped.
func NewChunker(size, overlap int) (*Chunker, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks a loaded document.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	return splitWindows(doc.Content, doc.ID, c.size, c.overlap, doc.Metadata)
}

// Chunk splits text into windows of size characters that share overlap
// characters with their predecessor. Characters are Unicode code points.
//
// Whitespace-only text yields no chunks. Each window is trimmed, and a window
// that trims to the empty string is still emitted so chunk indices stay dense.
func Chunk(text, docID string, size, overlap int, metadata domain.Metadata) ([]domain.Chunk, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return splitWindows(text, docID, size, overlap, metadata), nil
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return domain.ConfigError("chunk", domain.CodeInvalidChunkSize,
			"chunk_size must be greater than zero, got %d", size)
	}
	if overlap < 0 {
		return domain.ConfigError("chunk", domain.CodeInvalidChunkOverlap,
			"chunk_overlap cannot be negative, got %d", overlap)
	}
	if overlap >= size {
		return domain.ConfigError("chunk", domain.CodeInvalidChunkOverlap,
			"chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size)
	}
	return nil
}

func splitWindows(text, docID string, size, overlap int, metadata domain.Metadata) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	stride := size - overlap

	chunks := make([]domain.Chunk, 0, n/stride+1)
	for pos := 0; ; pos += stride {
		end := min(pos+size, n)
		idx := len(chunks)

		meta := metadata.Clone()
		meta[domain.MetaDocID] = docID
		meta[domain.MetaChunkIndex] = strconv.Itoa(idx)

		chunks = append(chunks, domain.Chunk{
			ID:       domain.ChunkID(docID, idx),
			DocID:    docID,
			Index:    idx,
			Text:     strings.TrimSpace(string(runes[pos:end])),
			Start:    pos,
			End:      end,
			Metadata: meta,
		})

		if end == n {
			break
		}
	}
	return chunks
}
