package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/broadcast/telegram"
	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/delivery"
	"github.com/marcelsud/webhook-relay/internal/http/chi"
	"github.com/marcelsud/webhook-relay/metrics"
	redisqueue "github.com/marcelsud/webhook-relay/queue/redis"
	"github.com/marcelsud/webhook-relay/webhook/postgres"
)

// drainTimeout bounds how long in-flight deliveries may run after a shutdown signal
const drainTimeout = 30 * time.Second

/* worker claims delivery jobs and sends them through the channel broadcasters
 * It serves /health and /metrics on PORT
 */

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required to run the worker")
	}
	logger := httplog.NewLogger("webhook-relay-worker", httplog.Options{
		JSON:     cfg.LogJSON,
		Concise:  !cfg.LogJSON,
		LogLevel: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := postgres.NewRepositoryWithPoolConfig(cfg.DatabaseURL,
		cfg.PostgresMaxOpenConns, cfg.PostgresMaxIdleConns, cfg.ConnMaxLifetime())
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())

	q, err := redisqueue.NewFromURL(ctx, cfg.RedisURL, cfg.QueueName,
		redisqueue.WithLogger(logger),
		redisqueue.WithPollInterval(cfg.QueuePollInterval()),
		redisqueue.WithJobDefaults(cfg.QueueMaxAttempts, cfg.QueueBackoff()),
	)
	if err != nil {
		return err
	}

	exporter, err := metrics.NewOTelExporter(metrics.NewQueueCollector(q, q),
		metrics.WithInFlight(q.ActiveJobs))
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	registry := broadcast.NewRegistry()
	registry.Register(broadcast.Telegram, telegram.Factory(
		telegram.WithHTTPClient(telegram.NewClient(cfg.AttemptTimeout())),
	))

	dispatcher := delivery.NewDispatcher(repo, registry,
		delivery.WithLogger(logger),
		delivery.WithAttemptTimeout(cfg.AttemptTimeout()),
		delivery.WithAttemptRecorder(exporter),
	)

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         cfg.Addr(),
		Handler:      chi.OpsHandlers(chi.Options{Logger: logger, Metrics: exporter.ServeHTTP()}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("serving metrics")
		}
	}()

	logger.Info().
		Str("queue", cfg.QueueName).
		Int("concurrency", cfg.WorkerConcurrency).
		Dur("attempt_timeout", cfg.AttemptTimeout()).
		Msg("worker started")

	// blocks until a signal cancels ctx
	processErr := q.Process(ctx, dispatcher, cfg.WorkerConcurrency)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	logger.Info().Msg("shutting down worker")
	return errors.Join(
		processErr,
		srv.Shutdown(drainCtx),
		q.Close(drainCtx),
	)
}
