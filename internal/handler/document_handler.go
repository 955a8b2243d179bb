package handler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v3"

	"github.com/tracelify/tracelify/internal/adapter/loader"
	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/service"
)

// DocumentHandler handles document ingestion and inspection endpoints.
type DocumentHandler struct {
	ragService *service.RAGService
	uploadDir  string
}

// NewDocumentHandler creates a document handler. Uploaded files are kept
// under uploadDir.
func NewDocumentHandler(ragService *service.RAGService, uploadDir string) *DocumentHandler {
	return &DocumentHandler{ragService: ragService, uploadDir: uploadDir}
}

// Register sets up document routes.
func (h *DocumentHandler) Register(router fiber.Router) {
	docs := router.Group("/documents")
	docs.Post("/", h.Ingest)
	docs.Post("/upload", h.Upload)
	docs.Get("/:id/chunks", h.Chunks)
	docs.Delete("/:id", h.Delete)
}

type ingestRequest struct {
	DocID    string `json:"doc_id" validate:"required,max=256"`
	Text     string `json:"text"`
	Filename string `json:"filename" validate:"omitempty,max=256"`
}

// Ingest chunks and indexes raw text under the given doc_id.
func (h *DocumentHandler) Ingest(c fiber.Ctx) error {
	var body ingestRequest
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	var meta domain.Metadata
	if body.Filename != "" {
		meta = domain.Metadata{domain.MetaFilename: body.Filename}
	}

	res, err := h.ragService.IngestText(c.Context(), body.DocID, body.Text, meta)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Upload stores a .txt or .md file from the multipart field "file" and
// ingests it under its filename stem.
func (h *DocumentHandler) Upload(c fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return domain.InvalidInput("upload", domain.CodeInvalidRequest, "multipart field \"file\" is required")
	}

	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		return domain.InvalidInput("upload", domain.CodeInvalidRequest, "invalid file name %q", fh.Filename)
	}
	if !loader.Supported(name) {
		return domain.InvalidInput("upload", domain.CodeUnsupportedFormat,
			"unsupported file type %q, expected .txt or .md", filepath.Ext(name))
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(h.uploadDir, name)
	if err := c.SaveFile(fh, dst); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}

	res, err := h.ragService.IngestFile(c.Context(), dst)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Chunks lists the stored chunks of a document in index order.
func (h *DocumentHandler) Chunks(c fiber.Ctx) error {
	id := c.Params("id")
	chunks, err := h.ragService.DocumentChunks(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"doc_id": id,
		"count":  len(chunks),
		"chunks": chunks,
	})
}

// Delete removes every chunk of a document.
func (h *DocumentHandler) Delete(c fiber.Ctx) error {
	id := c.Params("id")
	n, err := h.ragService.DeleteDocument(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"doc_id":  id,
		"deleted": n,
	})
}
