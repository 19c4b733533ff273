package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timed-quiz/internal/app"
	"timed-quiz/internal/config"
	"timed-quiz/internal/domain"
	"timed-quiz/internal/infra/memory"
	pgloader "timed-quiz/internal/infra/postgres"
	redisstore "timed-quiz/internal/infra/redis"
	"timed-quiz/internal/logger"
	"timed-quiz/internal/metrics"
	transport "timed-quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the attempt-store server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var attempts app.AttemptRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		attempts = redisstore.NewAttemptStore(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
	}

	m := metrics.New()
	service := app.NewAttemptService(quizRepo, attempts,
		app.WithGrace(config.TTLDuration(cfg.Attempt.Grace, app.DefaultGrace)),
		app.WithRetakes(cfg.Attempt.AllowRetakes),
		app.WithLogger(log),
		app.WithRecorder(m),
	)

	secret := jwtSecret(cfg)
	if secret == "" {
		secret = randomSecret()
		log.Warn("no jwt secret configured; generated an ephemeral one, tokens will not survive a restart")
	}
	auth := transport.NewAuthenticator(secret)
	api := transport.NewAPI(service, log)
	ws := transport.NewWSHandler(service, time.Second, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(api, ws, auth, m),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr),
			zap.Bool("redis", redisClient != nil), zap.Bool("postgres", pool != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// jwtSecret prefers the config file, then QUIZ_JWT_SECRET.
func jwtSecret(cfg config.Config) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	return os.Getenv("QUIZ_JWT_SECRET")
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func intPtr(v int) *int { return &v }

// sampleQuizzes is served when no Postgres is configured and seeded by migrate when asked to.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Arithmetic warm-up",
			Description:      "Three quick questions, five minutes.",
			TimeLimitMinutes: 5,
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOptionIndex: intPtr(1)},
				{ID: "q2", Text: "What is 7 * 6?", Options: []string{"42", "36", "48", "49"}, CorrectOptionIndex: intPtr(0)},
				{ID: "q3", Text: "What is 15 / 3?", Options: []string{"3", "4", "5"}, CorrectOptionIndex: intPtr(2)},
			},
		},
		"quiz-2": {
			ID:               "quiz-2",
			Title:            "Capitals",
			TimeLimitMinutes: 2,
			Questions: []domain.Question{
				{ID: "c1", Text: "Capital of France?", Options: []string{"Lyon", "Paris", "Nice"}, CorrectOptionIndex: intPtr(1)},
				{ID: "c2", Text: "Capital of Japan?", Options: []string{"Tokyo", "Osaka"}, CorrectOptionIndex: intPtr(0)},
			},
		},
	}
}
