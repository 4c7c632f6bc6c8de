package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parasim/internal/domain"
	"parasim/internal/embedding"
	"parasim/internal/session"
)

// SessionPort is the TUI-facing subset of the session service.
type SessionPort interface {
	Paragraphs() []domain.Paragraph
	SetText(index int, text string) error
	AddParagraph(title string) (int, error)
	Calculate(ctx context.Context) ([]domain.Paragraph, error)
}

// Readiness reports when the embedding provider has finished loading.
type Readiness interface {
	Ready() <-chan struct{}
	Err() error
}

type modelLoadedMsg struct{ err error }

type calculatedMsg struct {
	paragraphs []domain.Paragraph
	err        error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	service   SessionPort
	readiness Readiness
	provider  string

	inputs     []textarea.Model
	bars       []progress.Model
	paragraphs []domain.Paragraph
	spinner    spinner.Model
	focus      int
	width      int

	loading     bool
	calculating bool
	status      string
	statusErr   bool
}

// New creates a new TUI model instance. readiness may be nil when the
// provider needs no loading phase.
func New(ctx context.Context, service SessionPort, readiness Readiness, provider string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	m := Model{
		ctx:        ctx,
		service:    service,
		readiness:  readiness,
		provider:   provider,
		paragraphs: service.Paragraphs(),
		spinner:    s,
		width:      80,
		loading:    readiness != nil,
		status:     "Fill at least two paragraphs, then press Ctrl+S.",
	}
	for range m.paragraphs {
		m.inputs = append(m.inputs, newInput(m.width))
		m.bars = append(m.bars, newBar(m.width))
	}
	for i, p := range m.paragraphs {
		m.inputs[i].SetValue(p.Text)
	}
	m.inputs[0].Focus()
	return m
}

func newInput(width int) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "Enter value"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(inputWidth(width))
	ta.SetHeight(3)
	return ta
}

func newBar(width int) progress.Model {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = inputWidth(width) / 2
	return bar
}

func inputWidth(width int) int {
	w := width - 4
	if w < 20 {
		w = 20
	}
	return w
}

// Init starts the cursor blink, the spinner and the wait for the provider.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.loading {
		cmds = append(cmds, m.spinner.Tick, waitForProvider(m.readiness))
	}
	return tea.Batch(cmds...)
}

func waitForProvider(r Readiness) tea.Cmd {
	return func() tea.Msg {
		<-r.Ready()
		return modelLoadedMsg{err: r.Err()}
	}
}

func (m Model) calculate() tea.Cmd {
	svc, ctx := m.service, m.ctx
	return func() tea.Msg {
		ps, err := svc.Calculate(ctx)
		return calculatedMsg{paragraphs: ps, err: err}
	}
}

// Update handles key, window and async completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		for i := range m.inputs {
			m.inputs[i].SetWidth(inputWidth(m.width))
			m.bars[i].Width = inputWidth(m.width) / 2
		}
		return m, nil
	case modelLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError(fmt.Errorf("failed to load model: %w", msg.err))
		}
		return m, nil
	case spinner.TickMsg:
		if !m.loading && !m.calculating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case calculatedMsg:
		m.calculating = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.paragraphs = msg.paragraphs
		m.status = "Similarity calculated against " + m.paragraphs[0].DisplayTitle(0) + "."
		m.statusErr = false
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if m.loading || m.calculating {
			return m, nil
		}
		switch msg.String() {
		case "tab":
			m.setFocus((m.focus + 1) % len(m.inputs))
			return m, nil
		case "shift+tab":
			m.setFocus((m.focus - 1 + len(m.inputs)) % len(m.inputs))
			return m, nil
		case "ctrl+n":
			return m.addParagraph(), nil
		case "ctrl+s", "alt+enter":
			m.calculating = true
			m.status = "Calculating..."
			m.statusErr = false
			return m, tea.Batch(m.spinner.Tick, m.calculate())
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if _, ok := msg.(tea.KeyMsg); !ok {
		// Cursor blink and other non-key messages leave the text unchanged.
		return m, cmd
	}
	if err := m.service.SetText(m.focus, m.inputs[m.focus].Value()); err != nil {
		m.setError(err)
	}
	m.paragraphs = m.service.Paragraphs()
	return m, cmd
}

func (m *Model) setFocus(i int) {
	m.inputs[m.focus].Blur()
	m.focus = i
	m.inputs[m.focus].Focus()
}

func (m Model) addParagraph() Model {
	idx, err := m.service.AddParagraph("")
	if err != nil {
		m.setError(err)
		return m
	}
	m.inputs = append(m.inputs, newInput(m.width))
	m.bars = append(m.bars, newBar(m.width))
	m.paragraphs = m.service.Paragraphs()
	m.setFocus(idx)
	m.status = fmt.Sprintf("Added %s.", m.paragraphs[idx].DisplayTitle(idx))
	m.statusErr = false
	return m
}

func (m *Model) setError(err error) {
	m.status = userMessage(err)
	m.statusErr = true
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotEnoughParagraphs):
		return "Please fill at least 2 paragraphs."
	case errors.Is(err, embedding.ErrProviderUnavailable):
		return "The model is still loading, try again in a moment."
	case errors.Is(err, session.ErrRequestInFlight):
		return "A calculation is already running."
	case errors.Is(err, session.ErrTooManyParagraphs):
		return "No more paragraphs can be added."
	case errors.Is(err, context.DeadlineExceeded):
		return "The embedding provider timed out."
	}
	return "Error: " + err.Error()
}

// View renders the loading screen or the paragraph form.
func (m Model) View() string {
	if m.loading {
		return "\n  " + m.spinner.View() + " Loading model " + m.provider + "...\n\n" +
			helpStyle.Render("  Ctrl+C to quit") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Paragraph similarity calculator"))
	b.WriteString("\n\n")
	for i, ta := range m.inputs {
		p := domain.Paragraph{}
		if i < len(m.paragraphs) {
			p = m.paragraphs[i]
		}
		b.WriteString(titleStyle.Render(p.DisplayTitle(i)))
		b.WriteString("\n")
		box := inactiveStyle
		if i == m.focus {
			box = activeStyle
		}
		b.WriteString(box.Render(ta.View()))
		b.WriteString("\n")
		if p.Scored && p.Percentage > 0 {
			b.WriteString(percentStyle.Render(fmt.Sprintf("%d%%", p.Percentage)))
			b.WriteString(" ")
			b.WriteString(m.bars[i].ViewAs(float64(p.Percentage) / 100))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	status := statusStyle
	if m.statusErr {
		status = errorStyle
	}
	if m.calculating {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(status.Render(m.status))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Tab/Shift+Tab switch • Ctrl+N add paragraph • Ctrl+S calculate • Esc quit"))
	b.WriteString("\n")
	return b.String()
}

var (
	accent        = lipgloss.Color("#9567E3")
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	titleStyle    = lipgloss.NewStyle().Bold(true)
	activeStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#C967E3"))
	inactiveStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#666666"))
	percentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)
)
