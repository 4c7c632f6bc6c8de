package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PARASIM_EMBEDDER.
const EnvPrefix = "PARASIM"

// DefaultEmbedder is a local Ollama server running the all-minilm sentence model.
// tfidf stays available as an offline fallback.
const DefaultEmbedder = "ollama"

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	// MaxRetries defaults to 5; a negative value disables retries.
	MaxRetries int `yaml:"max_retries"`
}

// OllamaEmbedderConfig holds configuration for a local Ollama server.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// Pull downloads the model while the UI shows the loading screen.
	Pull bool `yaml:"pull"`
}

// GeminiEmbedderConfig holds configuration for the Gemini API embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Normalize *bool                 `yaml:"normalize,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama    *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	Gemini    *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// ShouldNormalize reports whether provider output is L2-normalized client-side.
func (c EmbedderConfig) ShouldNormalize() bool {
	return c.Normalize == nil || *c.Normalize
}

// SessionConfig configures paragraph handling.
type SessionConfig struct {
	MaxParagraphs      int      `yaml:"max_paragraphs"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs"`
	Titles             []string `yaml:"titles"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// File receives logs while the terminal UI owns the screen.
	File string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder EmbedderConfig `yaml:"embedder"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

// envOverrides are read from PARASIM_* variables and win over the file.
type envOverrides struct {
	Embedder      string `envconfig:"EMBEDDER"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OllamaURL     string `envconfig:"OLLAMA_URL"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL"`
	GeminiModel   string `envconfig:"GEMINI_MODEL"`
	MaxParagraphs int    `envconfig:"MAX_PARAGRAPHS"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogFile       string `envconfig:"LOG_FILE"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		cfg = &AppConfig{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/parasim/config.yaml.
// If neither exists, it writes defaults to ~/.config/parasim/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the application cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "tfidf", "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	if c.Session.MaxParagraphs < 2 {
		return fmt.Errorf("session.max_paragraphs must be at least 2, got %d", c.Session.MaxParagraphs)
	}
	if c.Session.RequestTimeoutSecs < 0 {
		return errors.New("session.request_timeout_secs must not be negative")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "parasim", "config.yaml"), nil
}

func defaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "parasim", "parasim.log")
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{Type: DefaultEmbedder},
		Session: SessionConfig{
			MaxParagraphs: 10,
			Titles:        []string{"Source", "Text to compare"},
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	if env.Embedder != "" {
		cfg.Embedder.Type = env.Embedder
	}
	if env.OpenAIModel != "" || env.OpenAIBaseURL != "" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if env.OpenAIModel != "" {
			cfg.Embedder.OpenAI.Model = env.OpenAIModel
		}
		if env.OpenAIBaseURL != "" {
			cfg.Embedder.OpenAI.BaseURL = env.OpenAIBaseURL
		}
	}
	if env.OllamaURL != "" || env.OllamaModel != "" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{Pull: true}
		}
		if env.OllamaURL != "" {
			cfg.Embedder.Ollama.BaseURL = env.OllamaURL
		}
		if env.OllamaModel != "" {
			cfg.Embedder.Ollama.Model = env.OllamaModel
		}
	}
	if env.GeminiModel != "" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		cfg.Embedder.Gemini.Model = env.GeminiModel
	}
	if env.MaxParagraphs != 0 {
		cfg.Session.MaxParagraphs = env.MaxParagraphs
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFile != "" {
		cfg.Log.File = env.LogFile
	}
	return nil
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.Embedder.Type = strings.ToLower(strings.TrimSpace(cfg.Embedder.Type))
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = DefaultEmbedder
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{Pull: true}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "all-minilm"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 300
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}
	if cfg.Session.MaxParagraphs == 0 {
		cfg.Session.MaxParagraphs = 10
	}
	if len(cfg.Session.Titles) == 0 {
		cfg.Session.Titles = []string{"Source", "Text to compare"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogPath()
	}
}

// OverrideEmbedder switches the embedder type and fills in its defaults.
func (c *AppConfig) OverrideEmbedder(kind string) error {
	if kind == "" {
		return nil
	}
	c.Embedder.Type = kind
	applyConfigDefaults(c)
	return c.Validate()
}
