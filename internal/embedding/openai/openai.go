package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"parasim/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	client     *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
	HTTPClient *http.Client
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: t}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		client:     hc,
		maxRetries: cfg.MaxRetries,
		sleep:      sleepContext,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Embed returns one embedding vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, errors.New("openai: no texts to embed")
	}
	out := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(embedRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("openai: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &statusError{status: resp.Status, retryAfter: resp.Header.Get("Retry-After")}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
		}
		vecs, err := decode(payload, len(texts))
		if err != nil {
			lastErr = err
			continue
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("openai embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func decode(payload []byte, want int) ([]domain.Vector, error) {
	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	vecs := make([]domain.Vector, want)
	switch {
	case len(out.Data) > 0:
		if len(out.Data) != want {
			return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(out.Data), want)
		}
		// Some compatible servers omit the index field; fall back to position.
		positional := true
		for _, d := range out.Data {
			if d.Index != 0 {
				positional = false
				break
			}
		}
		for i, d := range out.Data {
			idx := d.Index
			if positional {
				idx = i
			}
			if idx < 0 || idx >= want || vecs[idx] != nil || len(d.Embedding) == 0 {
				return nil, fmt.Errorf("openai: malformed embedding at position %d", i)
			}
			vecs[idx] = d.Embedding
		}
	case len(out.Embeddings) > 0:
		if len(out.Embeddings) != want {
			return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(out.Embeddings), want)
		}
		for i, e := range out.Embeddings {
			vecs[i] = e
		}
	default:
		return nil, errors.New("no embedding returned")
	}
	return vecs, nil
}

type statusError struct {
	status     string
	retryAfter string
}

func (e *statusError) Error() string { return "openai embeddings failed: " + e.status }

// backoff respects Retry-After when the server sent one.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var se *statusError
	if errors.As(lastErr, &se) && se.retryAfter != "" {
		if secs, err := strconv.Atoi(se.retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return retryDelay(attempt)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
