package domain

import (
	"context"
	"strconv"
)

// Vector is a fixed-length embedding of one text.
type Vector []float64

// Paragraph is a single text entered by the user.
// The first paragraph of a session is the reference all others are scored against.
type Paragraph struct {
	Text       string
	Title      string
	Percentage int
	// Scored reports whether the last calculation produced a meaningful percentage.
	Scored bool
}

// DisplayTitle returns the title shown for the paragraph at index.
func (p Paragraph) DisplayTitle(index int) string {
	if p.Title != "" {
		return p.Title
	}
	return "Paragraph " + strconv.Itoa(index)
}

// Embedder converts texts into vectors, one per input, mean-pooled and L2-normalized.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([]Vector, error)
}

// Warmer is implemented by embedders that need an initialization phase
// (model download, connectivity check) before they can serve requests.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Scorer turns a reference vector and candidate vectors into percentages.
type Scorer interface {
	Score(reference Vector, candidates []Vector) ([]int, error)
}

// SessionService defines the operations exposed by the application core.
type SessionService interface {
	Paragraphs() []Paragraph
	SetText(index int, text string) error
	AddParagraph(title string) (int, error)
	Calculate(ctx context.Context) ([]Paragraph, error)
}
