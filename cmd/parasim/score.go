package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"parasim/internal/domain"
)

type input struct {
	title string
	text  string
}

// readInputs turns CLI arguments into paragraphs. An argument starting with
// @ is read from that file and titled with its base name.
func readInputs(args []string) ([]input, error) {
	out := make([]input, 0, len(args))
	for i, arg := range args {
		in := input{text: arg}
		if i == 0 {
			in.title = "Source"
		}
		if path, ok := strings.CutPrefix(arg, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			in.text = strings.TrimRight(string(data), "\r\n")
			in.title = filepath.Base(path)
		}
		out = append(out, in)
	}
	return out, nil
}

type scoreResult struct {
	Title      string `json:"title"`
	Percentage int    `json:"percentage"`
	Scored     bool   `json:"scored"`
}

// scoreService is the subset of session.Service used by runScore.
type scoreService interface {
	SetText(index int, text string) error
	Calculate(ctx context.Context) ([]domain.Paragraph, error)
}

func runScore(ctx context.Context, svc scoreService, inputs []input, asJSON bool, out io.Writer) error {
	for i, in := range inputs {
		if err := svc.SetText(i, in.text); err != nil {
			return err
		}
	}
	paragraphs, err := svc.Calculate(ctx)
	if err != nil {
		return err
	}

	results := make([]scoreResult, 0, len(paragraphs)-1)
	for i, p := range paragraphs[1:] {
		results = append(results, scoreResult{
			Title:      p.DisplayTitle(i + 1),
			Percentage: p.Percentage,
			Scored:     p.Scored,
		})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Reference string        `json:"reference"`
			Results   []scoreResult `json:"results"`
		}{paragraphs[0].DisplayTitle(0), results})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#9567E3"))).
		Headers("PARAGRAPH", "SIMILARITY")
	for _, r := range results {
		score := "-"
		if r.Scored {
			score = strconv.Itoa(r.Percentage) + "%"
		}
		t.Row(r.Title, score)
	}
	_, err = fmt.Fprintf(out, "Reference: %s\n%s\n", paragraphs[0].DisplayTitle(0), t.Render())
	return err
}
