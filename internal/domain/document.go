package domain

// Metadata is the flat string map attached to documents and chunks.
type Metadata map[string]string

// Metadata keys set by the loader and the chunker.
const (
	MetaFilename   = "filename"
	MetaPath       = "path"
	MetaExtension  = "extension"
	MetaDocID      = "doc_id"
	MetaChunkIndex = "chunk_index"
)

// Clone returns an independent copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is a source text ready to be chunked. Re-ingesting the same ID
// supersedes every chunk previously stored for it.
type Document struct {
	ID       string   `json:"doc_id"`
	Content  string   `json:"-"`
	Metadata Metadata `json:"metadata"`
}

// IngestResult summarises one document write.
type IngestResult struct {
	DocID    string   `json:"doc_id"`
	Chunks   int      `json:"chunks"`
	Replaced int      `json:"replaced"`
	ChunkIDs []string `json:"chunk_ids"`
}
