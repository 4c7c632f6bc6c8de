// Package similarity converts embedding vectors into similarity percentages
// against a reference vector.
package similarity

import (
	"errors"
	"fmt"
	"math"

	"parasim/internal/domain"
)

var (
	// ErrDimensionMismatch is returned when two vectors have different lengths.
	ErrDimensionMismatch = errors.New("similarity: vector dimension mismatch")
	// ErrEmptyInput is returned when there is nothing to compare.
	ErrEmptyInput = errors.New("similarity: empty input")
)

// tolerance absorbs a few ULPs of noise on exact values (for example
// self-similarity computed as 0.9999999999999998) before flooring. It is
// small enough that values genuinely below a boundary still floor down.
const tolerance = 1e-12

// CosineSimilarity returns (a·b) / (‖a‖·‖b‖).
// A zero-magnitude operand yields 0.
func CosineSimilarity(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrEmptyInput
	}
	var dot, na2, nb2 float64
	for i := range a {
		dot += a[i] * b[i]
		na2 += a[i] * a[i]
		nb2 += b[i] * b[i]
	}
	if na2 == 0 || nb2 == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

// Percentage floors sim*100 and clamps the result to [-100, 100].
// It truncates rather than rounds: 0.789 maps to 78.
func Percentage(sim float64) int {
	p := math.Floor(sim*100 + tolerance)
	switch {
	case math.IsNaN(p):
		return 0
	case p > 100:
		return 100
	case p < -100:
		return -100
	}
	return int(p)
}

// Scorer is the cosine similarity scorer. The zero value is ready to use.
type Scorer struct{}

// NewScorer returns a cosine similarity scorer.
func NewScorer() *Scorer { return &Scorer{} }

// Score returns, for each candidate, its floored percentage similarity to reference.
func (Scorer) Score(reference domain.Vector, candidates []domain.Vector) ([]int, error) {
	if len(candidates) == 0 || len(reference) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(reference, c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out[i] = Percentage(sim)
	}
	return out, nil
}
