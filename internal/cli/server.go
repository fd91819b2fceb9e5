package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/store"
	memorystore "quiz-progress-service/internal/store/memory"
	pgstore "quiz-progress-service/internal/store/postgres"
	redisstore "quiz-progress-service/internal/store/redis"
	sqlitestore "quiz-progress-service/internal/store/sqlite"
	transport "quiz-progress-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	kv, cleanup, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	quizStore := app.NewQuizStore(kv, log)
	lists := app.NewListCache(quizStore, config.DurationOr(cfg.Session.ListCacheTTL, 10*time.Second))
	sessions := app.NewSessionManager(quizStore, app.SessionConfig{
		Tick:     config.DurationOr(cfg.Session.Tick, time.Second),
		Autosave: config.DurationOr(cfg.Session.Autosave, 10*time.Second),
	}, log)

	handler := transport.NewHandler(quizStore, lists, sessions, log)
	wsHandler := transport.NewWSHandler(sessions, log)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz progress service", zap.String("port", finalPort), zap.String("backend", cfg.Storage.Backend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// openBackend picks the persistent store per config. The sqlite file is the
// durable local default; memory is for throwaway runs and tests.
func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (store.KV, func(), error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return memorystore.New(), nil, nil

	case "sqlite":
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = "quiz.db"
		}
		s, err := sqlitestore.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.DurationOr(cfg.Redis.TTL, 0)
		return redisstore.New(client, ttl), func() { client.Close() }, nil

	case "postgres":
		if err := runMigrations(ctx, cfg, log); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
