// Package gemini wraps the Google GenAI SDK as an embedding provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"parasim/internal/domain"
)

// Config configures the Gemini provider.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Embedder wraps a genai.Client to implement the Embedder interface.
type Embedder struct {
	client    *genai.Client
	modelName string
}

// New builds a Gemini API client from cfg.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewEmbedder(client, cfg.Model), nil
}

// NewEmbedder creates a Gemini embedder from an existing client.
func NewEmbedder(client *genai.Client, modelName string) *Embedder {
	return &Embedder{client: client, modelName: modelName}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "gemini" }

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, errors.New("gemini: no texts to embed")
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	result, err := e.client.Models.EmbedContent(ctx, e.modelName, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	return toVectors(result, len(texts))
}

func toVectors(result *genai.EmbedContentResponse, want int) ([]domain.Vector, error) {
	if result == nil || len(result.Embeddings) != want {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("gemini: got %d embeddings for %d inputs", got, want)
	}
	out := make([]domain.Vector, want)
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini: empty embedding vector at %d", i)
		}
		// Convert []float32 to []float64
		v := make(domain.Vector, len(emb.Values))
		for j, x := range emb.Values {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}
