package port

import "context"

// Embedder turns text into vectors.
// Implementations can target OpenAI, Ollama, or the local hashing embedder.
type Embedder interface {
	// ModelName returns the identifier of the embedding model.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatCompleter produces an answer to a prompt grounded on context chunks.
type ChatCompleter interface {
	// ModelName returns the identifier of the chat model.
	ModelName() string

	// Chat sends a prompt with optional context chunks and returns the complete response.
	Chat(ctx context.Context, systemPrompt string, userPrompt string, contextChunks []string) (string, error)
}

// AIProvider is a backend that serves both embeddings and chat.
type AIProvider interface {
	Embedder
	ChatCompleter
}
