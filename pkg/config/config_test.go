package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelify/tracelify/internal/domain"
)

func localConfig() *Config {
	cfg := Default()
	cfg.EmbedProvider = ProviderLocal
	cfg.ChatProvider = ProviderLocal
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("CHUNK_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.VectorStore)
	assert.Equal(t, 30*time.Second, cfg.CollaboratorTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("CHUNK_OVERLAP", "20")
	t.Setenv("TOP_K", "not-a-number")
	t.Setenv("MCP_ENABLED", "true")
	t.Setenv("COLLABORATOR_TIMEOUT", "5s")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.ChunkSize)
	assert.Equal(t, 20, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK, "unparsable values keep the default")
	assert.True(t, cfg.MCPEnabled)
	assert.Equal(t, 5*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaEmbedURL)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaChatURL)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracelify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunk_size: 300
top_k: 5
vector_store: sqlite
collaborator_timeout: 10s
`), 0o644))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("TOP_K", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.ChunkSize)
	assert.Equal(t, 7, cfg.TopK, "environment wins over the file")
	assert.Equal(t, StoreSQLite, cfg.VectorStore)
	assert.Equal(t, 10*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, 50, cfg.ChunkOverlap)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: [oops"), 0o644))
	t.Setenv(ConfigFileEnv, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("Should accept the local profile", func(t *testing.T) {
		assert.NoError(t, localConfig().Validate())
	})

	cases := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, domain.CodeInvalidChunkSize},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, domain.CodeInvalidChunkOverlap},
		{"overlap equals size", func(c *Config) { c.ChunkSize, c.ChunkOverlap = 50, 50 }, domain.CodeInvalidChunkOverlap},
		{"zero top k", func(c *Config) { c.TopK = 0 }, domain.CodeInvalidTopK},
		{"max below default", func(c *Config) { c.MaxTopK = 2 }, domain.CodeInvalidTopK},
		{"unknown store", func(c *Config) { c.VectorStore = "redis" }, domain.CodeInvalidConfiguration},
		{"unknown embedder", func(c *Config) { c.EmbedProvider = "cohere" }, domain.CodeInvalidConfiguration},
		{"missing openai key", func(c *Config) { c.EmbedProvider = ProviderOpenAI }, domain.CodeInvalidConfiguration},
		{"missing deepseek key", func(c *Config) { c.ChatProvider = ProviderDeepSeek }, domain.CodeInvalidConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := localConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, domain.ErrConfig)

			var de *domain.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.code, de.Code)
		})
	}
}
