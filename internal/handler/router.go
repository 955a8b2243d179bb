package handler

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/tracelify/tracelify/internal/metrics"
	"github.com/tracelify/tracelify/internal/middleware"
	"github.com/tracelify/tracelify/internal/service"
)

// ServerConfig carries what the HTTP layer needs besides the RAG service.
type ServerConfig struct {
	AppName     string
	Version     string
	DataDir     string
	FrontendURL string
	BodyLimit   int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Server is the assembled fiber app together with handlers that own
// background work.
type Server struct {
	App  *fiber.App
	Jobs *JobsHandler
}

// NewServer builds the fiber app with global middleware and every /v1 route.
func NewServer(ragService *service.RAGService, cfg ServerConfig) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 16 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	// Global middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(cfg.Logger, StatusOf))
	app.Use(recover.New())
	if cfg.FrontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:  []string{cfg.FrontendURL},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			ExposeHeaders: []string{middleware.RequestIDHeader},
		}))
	}
	if cfg.Metrics != nil {
		app.Use(cfg.Metrics.Middleware(StatusOf))
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	api := app.Group("/v1")

	NewHealthHandler(cfg.AppName, cfg.Version).Register(api)
	NewDocumentHandler(ragService, filepath.Join(cfg.DataDir, "uploads")).Register(api)
	NewRAGHandler(ragService).Register(api)

	jobs := NewJobsHandler(NewJobTracker(), ragService, cfg.DataDir)
	jobs.Register(api)

	return &Server{App: app, Jobs: jobs}
}
