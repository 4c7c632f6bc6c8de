package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"parasim/internal/config"
	"parasim/internal/embedding"
	"parasim/internal/platform/logger"
	"parasim/internal/session"
	"parasim/internal/tui"
)

var (
	cfgPath      string
	embedderFlag string
	logLevelFlag string
	rootCmd      = &cobra.Command{
		Use:   "parasim",
		Short: "Score paragraphs by semantic similarity to a source paragraph",
		RunE:  runTUI,
	}
)

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file (uses ./config.yaml or ~/.config/parasim/config.yaml if not provided)")
	rootCmd.PersistentFlags().StringVarP(&embedderFlag, "embedder", "e", "", "Embedder type: ollama (default), tfidf, openai or gemini")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive paragraph editor",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	scoreCmd := &cobra.Command{
		Use:   "score <reference> <candidate>...",
		Short: "Score candidates against a reference; @path reads a file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runScoreCmd(cmd.Context(), args, asJSON, cmd.OutOrStdout())
		},
	}
	scoreCmd.Flags().Bool("json", false, "Print results as JSON")
	rootCmd.AddCommand(scoreCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.OverrideEmbedder(embedderFlag); err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

// assemble builds the provider chain and the session from cfg. The loader is
// already started when it is returned.
func assemble(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger, opts ...session.Option) (*session.Service, *embedding.Loader, error) {
	emb, err := embedding.New(ctx, cfg.Embedder)
	if err != nil {
		return nil, nil, err
	}
	loader := embedding.NewLoader(emb, log)
	loader.Start(ctx)

	base := []session.Option{
		session.WithLogger(log),
		session.WithMaxParagraphs(cfg.Session.MaxParagraphs),
		session.WithRequestTimeout(time.Duration(cfg.Session.RequestTimeoutSecs) * time.Second),
		session.WithTitles(cfg.Session.Titles...),
	}
	return session.NewService(loader, append(base, opts...)...), loader, nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := logger.OpenFile(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log, err := logger.New("parasim", cfg.Log.Level, f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, loader, err := assemble(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info().Str("embedder", loader.Name()).Msg("starting tui")

	m := tui.New(ctx, svc, loader, loader.Name())
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}
	return nil
}

func runScoreCmd(ctx context.Context, args []string, asJSON bool, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New("parasim", cfg.Log.Level, os.Stderr)
	if err != nil {
		return err
	}
	inputs, err := readInputs(args)
	if err != nil {
		return err
	}

	titles := make([]string, len(inputs))
	for i, in := range inputs {
		titles[i] = in.title
	}
	svc, loader, err := assemble(ctx, cfg, log, session.WithMaxParagraphs(len(inputs)), session.WithTitles(titles...))
	if err != nil {
		return err
	}
	if err := loader.Wait(ctx); err != nil {
		return fmt.Errorf("load %s embedder (--embedder tfidf runs offline): %w", loader.Name(), err)
	}
	return runScore(ctx, svc, inputs, asJSON, out)
}
