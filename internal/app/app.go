// Package app wires configuration into adapters and the RAG service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tracelify/tracelify/internal/adapter/ai"
	"github.com/tracelify/tracelify/internal/adapter/loader"
	"github.com/tracelify/tracelify/internal/adapter/store"
	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/port"
	"github.com/tracelify/tracelify/internal/service"
	"github.com/tracelify/tracelify/pkg/config"
)

// NewEmbedder builds the embedder selected by EMBED_PROVIDER.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOpenAI:
		return ai.NewOpenAIEmbedder(ai.OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.EmbeddingModel,
			MaxRetries: 2,
			Timeout:    cfg.CollaboratorTimeout,
		}), nil
	case config.ProviderOllama:
		return ai.NewOllamaProvider(ollamaEmbed(cfg), ollamaChat(cfg)), nil
	case config.ProviderLocal:
		return ai.NewLocalProvider(cfg.EmbeddingDimension), nil
	}
	return nil, domain.ConfigError("app", domain.CodeInvalidConfiguration, "unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
}

// NewChat builds the chat model selected by CHAT_PROVIDER.
func NewChat(cfg *config.Config) (port.ChatCompleter, error) {
	switch cfg.ChatProvider {
	case config.ProviderDeepSeek:
		// DeepSeek speaks the OpenAI chat completions protocol
		return ai.NewOpenAIChat(ai.OpenAIConfig{
			BaseURL:    cfg.DeepSeekBaseURL,
			APIKey:     cfg.DeepSeekAPIKey,
			Model:      cfg.ChatModel,
			MaxRetries: 2,
			Timeout:    cfg.CollaboratorTimeout,
		}), nil
	case config.ProviderOpenAI:
		return ai.NewOpenAIChat(ai.OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.ChatModel,
			MaxRetries: 2,
			Timeout:    cfg.CollaboratorTimeout,
		}), nil
	case config.ProviderOllama:
		return ai.NewOllamaProvider(ollamaEmbed(cfg), ollamaChat(cfg)), nil
	case config.ProviderLocal:
		return ai.NewLocalProvider(cfg.EmbeddingDimension), nil
	}
	return nil, domain.ConfigError("app", domain.CodeInvalidConfiguration, "unknown CHAT_PROVIDER %q", cfg.ChatProvider)
}

func ollamaEmbed(cfg *config.Config) ai.OllamaEndpointConfig {
	return ai.OllamaEndpointConfig{
		BaseURL: cfg.OllamaEmbedURL,
		Model:   cfg.OllamaEmbedModel,
		Token:   cfg.OllamaEmbedToken,
	}
}

func ollamaChat(cfg *config.Config) ai.OllamaEndpointConfig {
	return ai.OllamaEndpointConfig{
		BaseURL: cfg.OllamaChatURL,
		Model:   cfg.OllamaChatModel,
		Token:   cfg.OllamaChatToken,
	}
}

// NewStore opens the vector store selected by VECTOR_STORE.
func NewStore(ctx context.Context, cfg *config.Config) (port.VectorStore, error) {
	switch cfg.VectorStore {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, cfg.EmbeddingDimension); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return store.NewVectorStore(pg, cfg.EmbeddingDimension), nil
	case config.StoreQdrant:
		return store.NewQdrantStore(ctx, store.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.EmbeddingDimension,
			Timeout:    cfg.CollaboratorTimeout,
		})
	}
	return nil, domain.ConfigError("app", domain.CodeInvalidConfiguration, "unknown VECTOR_STORE %q", cfg.VectorStore)
}

// App holds the wired pipeline and the resources it owns.
type App struct {
	RAG   *service.RAGService
	Store port.VectorStore
}

// Close releases the vector store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// Bootstrap validates cfg and assembles the pipeline. telemetry may be nil.
func Bootstrap(ctx context.Context, cfg *config.Config, telemetry port.Telemetry) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	chat, err := NewChat(cfg)
	if err != nil {
		return nil, err
	}
	vs, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s vector store: %w", cfg.VectorStore, err)
	}

	rag, err := service.NewRAGService(embedder, chat, vs, loader.NewFileLoader(), service.RAGOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
		MaxTopK:      cfg.MaxTopK,
		Timeout:      cfg.CollaboratorTimeout,
		Telemetry:    telemetry,
	})
	if err != nil {
		return nil, errors.Join(err, vs.Close())
	}

	slog.Info("pipeline ready",
		"embedder", embedder.ModelName(),
		"chat", chat.ModelName(),
		"store", cfg.VectorStore,
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap,
		"top_k", cfg.TopK,
	)
	return &App{RAG: rag, Store: vs}, nil
}
