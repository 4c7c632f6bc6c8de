package embedding

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"parasim/internal/domain"
)

// Loader guards an embedder whose initialization runs in the background.
// Embed fails with ErrProviderUnavailable until the warm-up has finished.
type Loader struct {
	inner Embedder
	log   zerolog.Logger

	once  sync.Once
	ready chan struct{}
	mu    sync.RWMutex
	err   error
	done  bool
}

// NewLoader wraps inner. Nothing happens until Start is called.
func NewLoader(inner Embedder, log zerolog.Logger) *Loader {
	return &Loader{inner: inner, log: log, ready: make(chan struct{})}
}

// Name returns the wrapped embedder name.
func (l *Loader) Name() string { return l.inner.Name() }

// Start runs the warm-up once in a goroutine. Embedders that do not
// implement domain.Warmer become ready immediately.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		w, ok := l.inner.(domain.Warmer)
		if !ok {
			l.finish(nil)
			return
		}
		l.log.Info().Str("provider", l.inner.Name()).Msg("loading embedding provider")
		go func() {
			l.finish(w.Warm(ctx))
		}()
	})
}

func (l *Loader) finish(err error) {
	l.mu.Lock()
	l.err = err
	l.done = true
	l.mu.Unlock()
	if err != nil {
		l.log.Error().Err(err).Str("provider", l.inner.Name()).Msg("embedding provider failed to load")
	} else {
		l.log.Info().Str("provider", l.inner.Name()).Msg("embedding provider ready")
	}
	close(l.ready)
}

// Ready is closed once the warm-up has finished, successfully or not.
func (l *Loader) Ready() <-chan struct{} { return l.ready }

// Err returns the warm-up error, if any.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Wait blocks until the provider is ready or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.ready:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Embed delegates to the wrapped embedder once it is ready.
func (l *Loader) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	l.mu.RLock()
	done, err := l.done, l.err
	l.mu.RUnlock()
	if !done {
		return nil, ErrProviderUnavailable
	}
	if err != nil {
		return nil, err
	}
	return l.inner.Embed(ctx, texts)
}
