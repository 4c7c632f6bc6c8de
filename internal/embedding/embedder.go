// Package embedding builds the configured embedding provider and the
// wrappers that enforce its contract: one normalized vector per text, and
// no requests before the provider has finished loading.
package embedding

import (
	"context"
	"errors"
	"math"

	"parasim/internal/domain"
)

// Embedder converts texts into vectors, one per input.
type Embedder = domain.Embedder

// ErrProviderUnavailable is returned when the provider has not finished initializing.
var ErrProviderUnavailable = errors.New("embedding provider is still loading")

// Normalize wraps e so that every returned vector has unit L2 norm.
// Zero vectors are returned unchanged.
func Normalize(e Embedder) Embedder {
	switch e.(type) {
	case *normalized, *warmingNormalized:
		return e
	}
	if _, ok := e.(domain.Warmer); ok {
		return &warmingNormalized{normalized{inner: e}}
	}
	return &normalized{inner: e}
}

type normalized struct {
	inner Embedder
}

func (n *normalized) Name() string { return n.inner.Name() }

func (n *normalized) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	vecs, err := n.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Vector, len(vecs))
	for i, v := range vecs {
		out[i] = l2Normalize(v)
	}
	return out, nil
}

// warmingNormalized keeps the Warmer of the wrapped provider visible.
type warmingNormalized struct {
	normalized
}

func (n *warmingNormalized) Warm(ctx context.Context) error {
	return n.inner.(domain.Warmer).Warm(ctx)
}

func l2Normalize(v domain.Vector) domain.Vector {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make(domain.Vector, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
