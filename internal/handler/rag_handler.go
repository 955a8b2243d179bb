package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/service"
)

// RAGHandler handles retrieval and question answering endpoints.
type RAGHandler struct {
	ragService *service.RAGService
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(ragService *service.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

// Register sets up RAG routes.
func (h *RAGHandler) Register(router fiber.Router) {
	router.Post("/search", h.Search)
	router.Post("/ask", h.Ask)
}

type searchRequest struct {
	Query string `json:"query" validate:"required,max=8192"`
	TopK  int    `json:"top_k"`
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=8192"`
	TopK     int    `json:"top_k"`
}

// Search returns the chunks most similar to the query, best first.
func (h *RAGHandler) Search(c fiber.Ctx) error {
	var body searchRequest
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	results, err := h.ragService.Search(c.Context(), body.Query, body.TopK)
	if err != nil {
		return err
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}

	topK := body.TopK
	if topK == 0 {
		topK = h.ragService.DefaultTopK()
	}
	return c.JSON(fiber.Map{
		"query":   body.Query,
		"top_k":   topK,
		"results": results,
	})
}

// Ask answers a question from the indexed documents and cites its sources.
func (h *RAGHandler) Ask(c fiber.Ctx) error {
	var body askRequest
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	answer, err := h.ragService.Ask(c.Context(), body.Question, body.TopK)
	if err != nil {
		return err
	}
	return c.JSON(answer)
}
