package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"timed-quiz/internal/client"
	"timed-quiz/internal/config"
	"timed-quiz/internal/logger"
	"timed-quiz/internal/player"
)

type takeOptions struct {
	serverURL string
	token     string
	tick      time.Duration
}

// NewTakeCmd runs the interactive terminal client against a quiz server.
func NewTakeCmd(configPath *string) *cobra.Command {
	opts := &takeOptions{}
	cmd := &cobra.Command{
		Use:   "take <quiz-id>",
		Short: "Take a timed quiz in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTake(cmd.Context(), *configPath, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "quiz server base URL (default from config or http://localhost:8080)")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token (default QUIZ_TOKEN or config)")
	cmd.Flags().DurationVar(&opts.tick, "tick", 0, "countdown refresh interval")
	return cmd
}

func runTake(ctx context.Context, configPath, quizID string, opts *takeOptions) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	serverURL := firstNonEmpty(opts.serverURL, cfg.Client.ServerURL, "http://localhost:8080")
	token := firstNonEmpty(opts.token, os.Getenv("QUIZ_TOKEN"), cfg.Client.Token)
	tick := opts.tick
	if tick <= 0 {
		tick = config.TTLDuration(cfg.Client.TickInterval, time.Second)
	}

	httpClient := &http.Client{Timeout: config.TTLDuration(cfg.Client.Timeout, 10*time.Second)}
	store := client.NewHTTPClient(serverURL, token, httpClient)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return player.Run(ctx, os.Stdin, os.Stdout, player.Config{
		QuizID:       quizID,
		Store:        store,
		TickInterval: tick,
		Logger:       log,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
