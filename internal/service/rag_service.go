package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
)

const defaultSystemPrompt = `You are Tracelify, an assistant that answers questions using only the provided document context.
Cite the context chunks you rely on. If the context does not contain the answer, say so plainly.`

// RAGOptions tunes the pipeline. Zero values fall back to the package defaults,
// except ChunkOverlap which is taken as given.
type RAGOptions struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MaxTopK      int
	Timeout      time.Duration
	SystemPrompt string
	Telemetry    port.Telemetry
}

// DefaultRAGOptions returns the stock window and retrieval settings.
func DefaultRAGOptions() RAGOptions {
	return RAGOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		TopK:         DefaultTopK,
		MaxTopK:      50,
		Timeout:      30 * time.Second,
	}
}

// RAGService handles ingestion and retrieval-augmented generation over documents.
type RAGService struct {
	embedder  port.Embedder
	chat      port.ChatCompleter
	store     port.VectorStore
	loader    port.DocumentLoader
	chunker   *Chunker
	retriever *Retriever
	telemetry port.Telemetry
	opts      RAGOptions
}

// NewRAGService validates opts and wires the pipeline.
func NewRAGService(embedder port.Embedder, chat port.ChatCompleter, store port.VectorStore, loader port.DocumentLoader, opts RAGOptions) (*RAGService, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK < 0 {
		return nil, domain.ConfigError("rag", domain.CodeInvalidTopK, "top_k must be greater than zero, got %d", opts.TopK)
	}
	if opts.MaxTopK < opts.TopK {
		opts.MaxTopK = opts.TopK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.Telemetry == nil {
		opts.Telemetry = port.NopTelemetry{}
	}

	chunker, err := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &RAGService{
		embedder:  embedder,
		chat:      chat,
		store:     store,
		loader:    loader,
		chunker:   chunker,
		retriever: NewRetriever(embedder, store, opts.Telemetry),
		telemetry: opts.Telemetry,
		opts:      opts,
	}, nil
}

// DefaultTopK returns the configured number of chunks retrieved per query.
func (s *RAGService) DefaultTopK() int { return s.opts.TopK }

func (s *RAGService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// resolveTopK maps 0 to the configured default and bounds the rest.
func (s *RAGService) resolveTopK(topK int) (int, error) {
	if topK == 0 {
		return s.opts.TopK, nil
	}
	if topK < 0 {
		return 0, domain.ConfigError("retrieve", domain.CodeInvalidTopK, "top_k must be greater than zero, got %d", topK)
	}
	if topK > s.opts.MaxTopK {
		return 0, domain.ConfigError("retrieve", domain.CodeInvalidTopK, "top_k must not exceed %d, got %d", s.opts.MaxTopK, topK)
	}
	return topK, nil
}

// IngestText chunks text under docID, embeds every chunk and replaces whatever
// was stored for docID before. Nothing is written when embedding fails.
func (s *RAGService) IngestText(ctx context.Context, docID, text string, metadata domain.Metadata) (*domain.IngestResult, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, domain.InvalidInput("ingest", domain.CodeEmptyDocumentID, "doc_id must not be empty")
	}
	return s.ingest(ctx, domain.Document{ID: docID, Content: text, Metadata: metadata})
}

// IngestFile loads a .txt or .md file and ingests it under its filename stem.
func (s *RAGService) IngestFile(ctx context.Context, path string) (*domain.IngestResult, error) {
	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, doc)
}

// IngestProgress is called after each file of a directory ingestion.
type IngestProgress func(path string, done, total int, err error)

// IngestDirectory ingests every loadable file under dir. A failing file does
// not stop the others; all failures are joined into the returned error.
// Files whose doc_id was already taken earlier in the run are rejected rather
// than overwriting the first one.
func (s *RAGService) IngestDirectory(ctx context.Context, dir string, progress IngestProgress) ([]domain.IngestResult, error) {
	paths, err := s.loader.Discover(ctx, dir)
	if err != nil {
		return nil, err
	}

	slog.Info("ingesting directory", "dir", dir, "files", len(paths))

	var (
		results []domain.IngestResult
		errs    []error
		seen    = make(map[string]string, len(paths))
	)
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.ingestUnique(ctx, p, seen)
		if err != nil {
			slog.Error("ingest file failed", "path", p, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		} else {
			results = append(results, *res)
		}
		if progress != nil {
			progress(p, i+1, len(paths), err)
		}
	}
	return results, errors.Join(errs...)
}

// ingestUnique loads path and ingests it unless seen already maps its doc_id
// to another file.
func (s *RAGService) ingestUnique(ctx context.Context, path string, seen map[string]string) (*domain.IngestResult, error) {
	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if first, ok := seen[doc.ID]; ok {
		return nil, domain.InvalidInput("ingest", domain.CodeDuplicateDocumentID,
			"doc_id %q of %s is already used by %s", doc.ID, path, first)
	}
	seen[doc.ID] = path
	return s.ingest(ctx, doc)
}

func (s *RAGService) ingest(ctx context.Context, doc domain.Document) (*domain.IngestResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chunks := s.chunker.Split(doc)

	records := make([]port.VectorRecord, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.telemetry.CollaboratorFailed("embedder")
			return nil, domain.CollaboratorError("ingest "+doc.ID+": embed chunks", "embedder", err)
		}
		if len(vectors) != len(chunks) {
			s.telemetry.CollaboratorFailed("embedder")
			return nil, domain.CollaboratorError("ingest "+doc.ID+": embed chunks", "embedder",
				fmt.Errorf("%w: got %d, want %d", port.ErrBatchSize, len(vectors), len(chunks)))
		}
		for i, c := range chunks {
			records[i] = port.VectorRecord{Chunk: c, Vector: vectors[i]}
		}
	}

	replaced, err := s.store.ReplaceDocument(ctx, doc.ID, records)
	if err != nil {
		s.telemetry.CollaboratorFailed("vector_store")
		return nil, domain.CollaboratorError("ingest "+doc.ID+": write chunks", "vector store", err)
	}
	s.telemetry.ChunksIndexed(doc.ID, len(chunks))

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	slog.Info("document indexed", "doc_id", doc.ID, "chunks", len(chunks), "replaced", replaced)
	return &domain.IngestResult{DocID: doc.ID, Chunks: len(chunks), Replaced: replaced, ChunkIDs: ids}, nil
}

// Search retrieves the chunks most similar to query. topK 0 selects the default.
func (s *RAGService) Search(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	k, err := s.resolveTopK(topK)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.retriever.Retrieve(ctx, query, k)
}

// Ask retrieves context for question, asks the chat model and returns the
// answer with citations. The chat model is consulted even when nothing was
// retrieved so it can say that the documents do not cover the question.
func (s *RAGService) Ask(ctx context.Context, question string, topK int) (*domain.CitedAnswer, error) {
	k, err := s.resolveTopK(topK)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slog.InfoContext(ctx, "RAG query", "question_len", len(question), "top_k", k)

	results, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	contextParts := make([]string, len(results))
	for i, r := range results {
		contextParts[i] = fmt.Sprintf("[%s] (score: %.3f)\n%s", r.Chunk.ID, r.Score, r.Chunk.Text)
	}

	answer, err := s.chat.Chat(ctx, s.opts.SystemPrompt, question, contextParts)
	if err != nil {
		s.telemetry.CollaboratorFailed("chat")
		return nil, domain.CollaboratorError("ask: chat", "chat model", err)
	}

	cited := Assemble(results, answer)
	return &cited, nil
}

// DeleteDocument removes every chunk of docID.
func (s *RAGService) DeleteDocument(ctx context.Context, docID string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.store.DeleteDocument(ctx, docID)
	if err != nil {
		s.telemetry.CollaboratorFailed("vector_store")
		return 0, domain.CollaboratorError("delete "+docID, "vector store", err)
	}
	if n == 0 {
		return 0, domain.NotFound("delete", domain.CodeDocumentNotFound, "document %q not found", docID)
	}
	slog.Info("document deleted", "doc_id", docID, "chunks", n)
	return n, nil
}

// DocumentChunks lists the stored chunks of docID in chunk index order.
func (s *RAGService) DocumentChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chunks, err := s.store.DocumentChunks(ctx, docID)
	if err != nil {
		s.telemetry.CollaboratorFailed("vector_store")
		return nil, domain.CollaboratorError("chunks "+docID, "vector store", err)
	}
	if len(chunks) == 0 {
		return nil, domain.NotFound("chunks", domain.CodeDocumentNotFound, "document %q not found", docID)
	}
	return chunks, nil
}
