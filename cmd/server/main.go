package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tracelify/tracelify/internal/app"
	"github.com/tracelify/tracelify/internal/handler"
	"github.com/tracelify/tracelify/internal/mcp"
	"github.com/tracelify/tracelify/internal/metrics"
	"github.com/tracelify/tracelify/pkg/config"
	"github.com/tracelify/tracelify/pkg/logger"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Info("Starting Tracelify",
		"port", cfg.Port,
		"embed_provider", cfg.EmbedProvider,
		"chat_provider", cfg.ChatProvider,
		"vector_store", cfg.VectorStore,
		"mcp_enabled", cfg.MCPEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Pipeline ─────────────────────────────────────────────────────────
	m := metrics.New()
	pipeline, err := app.Bootstrap(ctx, cfg, m)
	if err != nil {
		log.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	// ── Fiber App ────────────────────────────────────────────────────────
	srv := handler.NewServer(pipeline.RAG, handler.ServerConfig{
		AppName:     cfg.AppName,
		Version:     cfg.Version,
		DataDir:     cfg.DataDir,
		FrontendURL: cfg.FrontendURL,
		Logger:      log,
		Metrics:     m,
	})

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(pipeline.RAG, cfg.MCPPort, cfg.AppName, cfg.Version)
		go func() {
			if err := mcpServer.Start(ctx); err != nil {
				log.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := srv.App.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	log.Info("Fiber listening", "port", cfg.Port)
	if err := srv.App.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	srv.Jobs.Wait()
}
