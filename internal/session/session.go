package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parasim/internal/domain"
	"parasim/internal/similarity"
)

var (
	// ErrNotEnoughParagraphs is matched by ValidationError via errors.Is.
	ErrNotEnoughParagraphs = errors.New("please fill at least 2 paragraphs")
	// ErrRequestInFlight is returned when Calculate is called while another calculation runs.
	ErrRequestInFlight = errors.New("a calculation is already in progress")
	// ErrIndexOutOfRange is returned by SetText for an index with no paragraph.
	ErrIndexOutOfRange = errors.New("paragraph index out of range")
	// ErrTooManyParagraphs is returned by AddParagraph once the maximum is reached.
	ErrTooManyParagraphs = errors.New("paragraph limit reached")
)

// ValidationError reports user input that cannot be scored.
type ValidationError struct {
	Filled int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%d filled)", ErrNotEnoughParagraphs.Error(), e.Filled)
}

func (e *ValidationError) Is(target error) bool { return target == ErrNotEnoughParagraphs }

// Service holds the paragraphs of one session and scores them against the first.
type Service struct {
	embedder domain.Embedder
	scorer   domain.Scorer
	log      zerolog.Logger

	maxParagraphs int
	timeout       time.Duration

	mu         sync.Mutex
	paragraphs []domain.Paragraph
	inFlight   bool
}

// Option customizes a Service.
type Option func(*Service)

// WithScorer replaces the default cosine scorer.
func WithScorer(s domain.Scorer) Option { return func(svc *Service) { svc.scorer = s } }

// WithLogger sets the logger used for request logging.
func WithLogger(l zerolog.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithMaxParagraphs caps AddParagraph. Values below 2 are ignored.
func WithMaxParagraphs(n int) Option {
	return func(svc *Service) {
		if n >= 2 {
			svc.maxParagraphs = n
		}
	}
}

// WithRequestTimeout bounds each Calculate call. Zero waits indefinitely.
func WithRequestTimeout(d time.Duration) Option { return func(svc *Service) { svc.timeout = d } }

// WithTitles sets the titles of the initial paragraphs; at least two are always created.
func WithTitles(titles ...string) Option {
	return func(svc *Service) {
		n := len(titles)
		if n < 2 {
			n = 2
		}
		svc.paragraphs = make([]domain.Paragraph, n)
		for i, t := range titles {
			svc.paragraphs[i].Title = t
		}
	}
}

// NewService creates a session with the "Source" and "Text to compare" paragraphs.
func NewService(embedder domain.Embedder, opts ...Option) *Service {
	s := &Service{
		embedder:      embedder,
		scorer:        similarity.NewScorer(),
		log:           zerolog.Nop(),
		maxParagraphs: 10,
		paragraphs: []domain.Paragraph{
			{Title: "Source"},
			{Title: "Text to compare"},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.paragraphs) > s.maxParagraphs {
		s.maxParagraphs = len(s.paragraphs)
	}
	return s
}

// Paragraphs returns a copy of the current paragraphs.
func (s *Service) Paragraphs() []domain.Paragraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Paragraph(nil), s.paragraphs...)
}

// SetText replaces the text of the paragraph at index.
func (s *Service) SetText(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.paragraphs) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.paragraphs[index].Text = text
	return nil
}

// AddParagraph appends an empty paragraph and returns its index.
func (s *Service) AddParagraph(title string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.paragraphs) >= s.maxParagraphs {
		return 0, fmt.Errorf("%w (%d)", ErrTooManyParagraphs, s.maxParagraphs)
	}
	s.paragraphs = append(s.paragraphs, domain.Paragraph{Title: title})
	return len(s.paragraphs) - 1, nil
}

// Calculate embeds the non-empty paragraphs in a single provider call and
// scores paragraphs 1..N-1 against paragraph 0. Only one calculation may
// run at a time. On error the paragraphs are left as they were.
func (s *Service) Calculate(ctx context.Context) ([]domain.Paragraph, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	snapshot := append([]domain.Paragraph(nil), s.paragraphs...)
	texts, positions := nonEmpty(snapshot)
	if len(texts) < 2 {
		s.mu.Unlock()
		return nil, &ValidationError{Filled: len(texts)}
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	log := s.log.With().Str("provider", s.embedder.Name()).Int("paragraphs", len(snapshot)).Int("filled", len(texts)).Logger()

	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Dur("took", time.Since(start)).Msg("embedding request failed")
		return nil, fmt.Errorf("embed paragraphs: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed paragraphs: provider returned %d vectors for %d texts", len(vecs), len(texts))
	}

	scored, err := s.score(snapshot, positions, vecs)
	if err != nil {
		log.Warn().Err(err).Msg("scoring failed")
		return nil, err
	}

	s.mu.Lock()
	// Paragraphs may have been added or edited while the provider was busy;
	// only percentages are written back.
	for i := range scored {
		if i < len(s.paragraphs) {
			s.paragraphs[i].Percentage = scored[i].Percentage
			s.paragraphs[i].Scored = scored[i].Scored
		}
	}
	s.mu.Unlock()

	log.Info().Dur("took", time.Since(start)).Msg("similarity calculated")
	return scored, nil
}

// score maps vectors back onto paragraph positions. Empty paragraphs keep
// their slot and get percentage 0, unscored.
func (s *Service) score(paragraphs []domain.Paragraph, positions []int, vecs []domain.Vector) ([]domain.Paragraph, error) {
	for i := range paragraphs {
		paragraphs[i].Percentage = 0
		paragraphs[i].Scored = false
	}
	if positions[0] != 0 {
		// The reference is empty: nothing is meaningful.
		return paragraphs, nil
	}
	percentages, err := s.scorer.Score(vecs[0], vecs[1:])
	if err != nil {
		return nil, fmt.Errorf("score paragraphs: %w", err)
	}
	for k, pct := range percentages {
		idx := positions[k+1]
		paragraphs[idx].Percentage = pct
		paragraphs[idx].Scored = true
	}
	return paragraphs, nil
}

func nonEmpty(paragraphs []domain.Paragraph) ([]string, []int) {
	texts := make([]string, 0, len(paragraphs))
	positions := make([]int, 0, len(paragraphs))
	for i, p := range paragraphs {
		if len(p.Text) == 0 {
			continue
		}
		texts = append(texts, p.Text)
		positions = append(positions, i)
	}
	return texts, positions
}

var _ domain.SessionService = (*Service)(nil)
