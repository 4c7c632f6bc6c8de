package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDER", "OPENAI_MODEL", "OPENAI_BASE_URL", "OLLAMA_URL", "OLLAMA_MODEL",
		"GEMINI_MODEL", "MAX_PARAGRAPHS", "LOG_LEVEL", "LOG_FILE",
	} {
		// envconfig rejects set-but-empty numeric values, so unset instead.
		t.Setenv(EnvPrefix+"_"+k, "")
		require.NoError(t, os.Unsetenv(EnvPrefix+"_"+k))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.Ollama)
	assert.Equal(t, "all-minilm", cfg.Embedder.Ollama.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.Ollama.BaseURL)
	assert.True(t, cfg.Embedder.Ollama.Pull)
	assert.True(t, cfg.Embedder.ShouldNormalize())
	assert.Equal(t, 10, cfg.Session.MaxParagraphs)
	assert.Equal(t, []string{"Source", "Text to compare"}, cfg.Session.Titles)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Log.File)
}

func TestLoad_FileWithDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: OpenAI
  normalize: false
  openai:
    model: text-embedding-3-large
session:
  max_paragraphs: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.False(t, cfg.Embedder.ShouldNormalize())
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, 5, cfg.Embedder.OpenAI.MaxRetries)
	assert.Equal(t, 4, cfg.Session.MaxParagraphs)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARASIM_EMBEDDER", "ollama")
	t.Setenv("PARASIM_OLLAMA_MODEL", "nomic-embed-text")
	t.Setenv("PARASIM_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.Ollama)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Ollama.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.Ollama.BaseURL)
	assert.True(t, cfg.Embedder.Ollama.Pull)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("embedder: [unclosed"), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("embedder:\n  type: word2vec\n"), 0o644))
	_, err = Load(unknown)
	assert.ErrorContains(t, err, "unknown embedder")

	tooFew := filepath.Join(dir, "few.yaml")
	require.NoError(t, os.WriteFile(tooFew, []byte("session:\n  max_paragraphs: 1\n"), 0o644))
	_, err = Load(tooFew)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(path, defaultConfig()))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbedder, cfg.Embedder.Type)
}

func TestLoad_TFIDFFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARASIM_EMBEDDER", "tfidf")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
}

func TestOverrideEmbedder(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.NoError(t, cfg.OverrideEmbedder("gemini"))
	require.NotNil(t, cfg.Embedder.Gemini)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Embedder.Gemini.APIKeyEnv)

	assert.Error(t, cfg.OverrideEmbedder("bogus"))
	assert.NoError(t, cfg.OverrideEmbedder(""))
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "parasim", "config.yaml"), path)
	assert.Equal(t, "ollama", cfg.Embedder.Type)
	assert.FileExists(t, path)
}
