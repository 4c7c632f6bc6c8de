package embedding

import (
	"context"
	"fmt"
	"time"

	"parasim/internal/config"
	"parasim/internal/domain"
	"parasim/internal/embedding/gemini"
	"parasim/internal/embedding/ollama"
	"parasim/internal/embedding/openai"
	"parasim/internal/embedding/tfidf"
)

// New builds the embedder selected by cfg.Type, normalized when cfg asks for it.
func New(ctx context.Context, cfg config.EmbedderConfig) (Embedder, error) {
	var emb Embedder
	kind := cfg.Type
	if kind == "" {
		kind = config.DefaultEmbedder
	}
	switch kind {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "ollama":
		oc := cfg.Ollama
		if oc == nil {
			oc = &config.OllamaEmbedderConfig{Pull: true}
		}
		p := ollama.New(ollama.Config{
			BaseURL: oc.BaseURL,
			Model:   oc.Model,
			Timeout: time.Duration(oc.TimeoutSecs) * time.Second,
		})
		if oc.Pull {
			emb = p
		} else {
			emb = noWarm{p}
		}
	case "gemini":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini embedder config missing")
		}
		e, err := gemini.New(ctx, gemini.Config{APIKeyEnv: cfg.Gemini.APIKeyEnv, Model: cfg.Gemini.Model})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		emb = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if cfg.ShouldNormalize() {
		emb = Normalize(emb)
	}
	return emb, nil
}

// noWarm hides a provider's Warm method.
type noWarm struct {
	inner domain.Embedder
}

func (n noWarm) Name() string { return n.inner.Name() }

func (n noWarm) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	return n.inner.Embed(ctx, texts)
}
