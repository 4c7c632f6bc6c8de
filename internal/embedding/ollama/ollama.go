// Package ollama calls a local Ollama server for embeddings.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"parasim/internal/domain"
)

// Config configures the Ollama provider.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider embeds texts through the Ollama /api/embed endpoint.
type Provider struct {
	client *resty.Client
	model  string
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// New creates a Provider. An empty BaseURL falls back to http://localhost:11434.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "all-minilm"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Provider{client: c, model: cfg.Model}
}

// Name returns the identifier of this embedder implementation.
func (p *Provider) Name() string { return "ollama" }

// Warm pulls the model so the first request does not pay for the download.
func (p *Provider) Warm(ctx context.Context) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&pullRequest{Name: p.model, Stream: false}).
		Post("/api/pull")
	if err != nil {
		return fmt.Errorf("ollama pull: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama pull %s: status %d: %s", p.model, resp.StatusCode(), resp.String())
	}
	return nil
}

// Embed returns one vector per text, in input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, errors.New("ollama: no texts to embed")
	}
	var out embedResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&embedRequest{Model: p.model, Input: texts}).
		SetResult(&out).
		Post("/api/embed")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	vecs := make([]domain.Vector, len(out.Embeddings))
	for i, e := range out.Embeddings {
		vecs[i] = e
	}
	return vecs, nil
}

var _ domain.Warmer = (*Provider)(nil)
