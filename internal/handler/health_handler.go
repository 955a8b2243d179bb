package handler

import "github.com/gofiber/fiber/v3"

// HealthHandler reports liveness.
type HealthHandler struct {
	service string
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(service, version string) *HealthHandler {
	return &HealthHandler{service: service, version: version}
}

// Register sets up the health route.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Health returns the service name and version.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": h.service,
		"version": h.version,
	})
}
