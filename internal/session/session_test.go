package session

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parasim/internal/config"
	"parasim/internal/domain"
	"parasim/internal/embedding"
)

// mapEmbedder returns fixed vectors per text and records every call.
type mapEmbedder struct {
	vecs map[string]domain.Vector
	err  error

	mu    sync.Mutex
	calls [][]string
	block chan struct{}
}

func (m *mapEmbedder) Name() string { return "map" }

func (m *mapEmbedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		v, ok := m.vecs[t]
		if !ok {
			v = domain.Vector{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func (m *mapEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func fill(t *testing.T, s *Service, texts ...string) {
	t.Helper()
	for i, text := range texts {
		if i >= len(s.Paragraphs()) {
			_, err := s.AddParagraph("")
			require.NoError(t, err)
		}
		require.NoError(t, s.SetText(i, text))
	}
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(&mapEmbedder{})
	ps := s.Paragraphs()
	require.Len(t, ps, 2)
	assert.Equal(t, "Source", ps[0].DisplayTitle(0))
	assert.Equal(t, "Text to compare", ps[1].DisplayTitle(1))
	for _, p := range ps {
		assert.Zero(t, p.Percentage)
		assert.False(t, p.Scored)
	}
}

func TestCalculate(t *testing.T) {
	emb := &mapEmbedder{vecs: map[string]domain.Vector{
		"source": {1, 0, 0},
		"same":   {1, 0, 0},
		"ortho":  {0, 1, 0},
		"close":  {0.789, math.Sqrt(1 - 0.789*0.789), 0},
	}}
	s := NewService(emb)
	fill(t, s, "source", "same", "ortho", "close")

	got, err := s.Calculate(context.Background())
	require.NoError(t, err)

	assert.False(t, got[0].Scored)
	assert.Equal(t, []int{0, 100, 0, 78}, percentages(got))
	assert.Equal(t, got, s.Paragraphs())
	require.Equal(t, 1, emb.callCount(), "provider is called exactly once")
	assert.Equal(t, []string{"source", "same", "ortho", "close"}, emb.calls[0])
}

func TestCalculate_ValidationSkipsProvider(t *testing.T) {
	emb := &mapEmbedder{}
	s := NewService(emb)

	_, err := s.Calculate(context.Background())
	assert.ErrorIs(t, err, ErrNotEnoughParagraphs)

	require.NoError(t, s.SetText(0, "only one"))
	_, err = s.Calculate(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Filled)
	assert.Zero(t, emb.callCount())
}

func TestCalculate_EmptyParagraphsKeepAlignment(t *testing.T) {
	emb := &mapEmbedder{vecs: map[string]domain.Vector{
		"source": {1, 0},
		"twin":   {1, 0},
	}}
	s := NewService(emb)
	fill(t, s, "source", "", "twin")

	got, err := s.Calculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"source", "twin"}, emb.calls[0], "empty texts are not sent")
	assert.False(t, got[1].Scored)
	assert.Zero(t, got[1].Percentage)
	assert.True(t, got[2].Scored)
	assert.Equal(t, 100, got[2].Percentage)
}

func TestCalculate_EmptyReference(t *testing.T) {
	emb := &mapEmbedder{}
	s := NewService(emb)
	fill(t, s, "", "one", "two")

	got, err := s.Calculate(context.Background())
	require.NoError(t, err)
	for _, p := range got {
		assert.False(t, p.Scored)
		assert.Zero(t, p.Percentage)
	}
}

func TestCalculate_ProviderUnavailableIsRecoverable(t *testing.T) {
	emb := &mapEmbedder{vecs: map[string]domain.Vector{"a": {1, 0}, "b": {1, 0}}}
	loader := embedding.NewLoader(emb, zerolog.Nop())
	s := NewService(loader)
	fill(t, s, "a", "b")

	_, err := s.Calculate(context.Background())
	require.ErrorIs(t, err, embedding.ErrProviderUnavailable)
	assert.Equal(t, []int{0, 0}, percentages(s.Paragraphs()))

	loader.Start(context.Background())
	<-loader.Ready()
	got, err := s.Calculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, got[1].Percentage)
}

func TestCalculate_ProviderErrorLeavesState(t *testing.T) {
	boom := errors.New("network down")
	emb := &mapEmbedder{vecs: map[string]domain.Vector{"a": {1, 0}, "b": {1, 0}}}
	s := NewService(emb)
	fill(t, s, "a", "b")
	_, err := s.Calculate(context.Background())
	require.NoError(t, err)

	emb.err = boom
	require.NoError(t, s.SetText(1, "changed"))
	_, err = s.Calculate(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 100, s.Paragraphs()[1].Percentage)
}

type shortEmbedder struct{}

func (shortEmbedder) Name() string { return "short" }

func (shortEmbedder) Embed(context.Context, []string) ([]domain.Vector, error) {
	return []domain.Vector{{1}}, nil
}

func TestCalculate_WrongVectorCount(t *testing.T) {
	s := NewService(shortEmbedder{})
	fill(t, s, "a", "b")
	_, err := s.Calculate(context.Background())
	assert.Error(t, err)
}

func TestCalculate_RejectsConcurrentRequest(t *testing.T) {
	emb := &mapEmbedder{block: make(chan struct{})}
	s := NewService(emb)
	fill(t, s, "a", "b")

	done := make(chan error, 1)
	go func() {
		_, err := s.Calculate(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return emb.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := s.Calculate(context.Background())
	assert.ErrorIs(t, err, ErrRequestInFlight)

	close(emb.block)
	require.NoError(t, <-done)

	_, err = s.Calculate(context.Background())
	assert.NoError(t, err, "guard is released after completion")
}

func TestCalculate_Timeout(t *testing.T) {
	emb := &mapEmbedder{block: make(chan struct{})}
	s := NewService(emb, WithRequestTimeout(20*time.Millisecond))
	fill(t, s, "a", "b")

	_, err := s.Calculate(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAddParagraph(t *testing.T) {
	s := NewService(&mapEmbedder{}, WithMaxParagraphs(3))
	idx, err := s.AddParagraph("")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "Paragraph 2", s.Paragraphs()[2].DisplayTitle(2))

	_, err = s.AddParagraph("")
	assert.ErrorIs(t, err, ErrTooManyParagraphs)
}

func TestSetText_OutOfRange(t *testing.T) {
	s := NewService(&mapEmbedder{})
	assert.ErrorIs(t, s.SetText(2, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetText(-1, "x"), ErrIndexOutOfRange)
}

func TestWithTitles(t *testing.T) {
	s := NewService(&mapEmbedder{}, WithTitles("Original"))
	ps := s.Paragraphs()
	require.Len(t, ps, 2)
	assert.Equal(t, "Original", ps[0].Title)
	assert.Equal(t, "Paragraph 1", ps[1].DisplayTitle(1))
}

const (
	catSat     = "The cat sat on the mat"
	catSitting = "A cat was sitting on a mat"
)

// TestCalculate_EndToEnd scores a paraphrase with the default provider
// (PARASIM_E2E_EMBEDDER picks another). It skips only when the provider
// cannot be reached.
func TestCalculate_EndToEnd(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.OverrideEmbedder(os.Getenv("PARASIM_E2E_EMBEDDER")))
	if cfg.Embedder.Type == "tfidf" {
		t.Skip("tfidf is pinned by TestCalculate_TFIDFParaphrase")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	emb, err := embedding.New(ctx, cfg.Embedder)
	if err != nil {
		t.Skipf("%s provider unavailable: %v", cfg.Embedder.Type, err)
	}
	loader := embedding.NewLoader(emb, zerolog.Nop())
	loader.Start(ctx)
	if err := loader.Wait(ctx); err != nil {
		t.Skipf("%s provider unavailable: %v", cfg.Embedder.Type, err)
	}

	s := NewService(loader)
	fill(t, s, catSat, catSitting)
	got, err := s.Calculate(ctx)
	require.NoError(t, err)
	assert.Greater(t, got[1].Percentage, 50, "provider %s", cfg.Embedder.Type)
}

// TestCalculate_TFIDFParaphrase pins the offline fallback's weaker score
// on the same paraphrase: only "cat" and "mat" overlap.
func TestCalculate_TFIDFParaphrase(t *testing.T) {
	emb, err := embedding.New(context.Background(), config.EmbedderConfig{Type: "tfidf"})
	require.NoError(t, err)

	s := NewService(emb)
	fill(t, s, catSat, catSitting)
	got, err := s.Calculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, got[1].Percentage)
}

func percentages(ps []domain.Paragraph) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.Percentage
	}
	return out
}
