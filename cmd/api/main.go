package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/internal/http/chi"
	"github.com/marcelsud/webhook-relay/metrics"
	"github.com/marcelsud/webhook-relay/providers"
	"github.com/marcelsud/webhook-relay/queue"
	redisqueue "github.com/marcelsud/webhook-relay/queue/redis"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/postgres"
	"github.com/rs/zerolog"
)

const TIMEOUT = 30 * time.Second

/* api receives webhooks, stores events and deliveries, and enqueues delivery jobs
 * Without REDIS_URL it still ingests: deliveries are stored and stay PENDING
 */

// deliveryQueue is what the API needs from the queue
type deliveryQueue interface {
	queue.Enqueuer
	queue.StatsReader
}

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
	logger := httplog.NewLogger("webhook-relay-api", httplog.Options{
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

	if cfg.ProvidersFile != "" {
		if err := seedProviders(ctx, logger, repo, cfg.ProvidersFile); err != nil {
			return err
		}
	}

	var (
		q       deliveryQueue = queue.Unavailable{}
		workers metrics.WorkerLister
	)
	if cfg.RedisURL != "" {
		rq, err := redisqueue.NewFromURL(ctx, cfg.RedisURL, cfg.QueueName,
			redisqueue.WithLogger(logger),
			redisqueue.WithJobDefaults(cfg.QueueMaxAttempts, cfg.QueueBackoff()),
		)
		if err != nil {
			return err
		}
		defer rq.Close(context.Background())
		q, workers = rq, rq
	} else {
		logger.Warn().Msg("REDIS_URL is not set, deliveries will be stored but not enqueued")
	}

	exporter, err := metrics.NewOTelExporter(metrics.NewQueueCollector(q, workers))
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	s := webhook.NewService(repo, q,
		webhook.WithLogger(logger),
		webhook.WithEventRecorder(exporter),
	)
	r := chi.Handlers(s, chi.Options{
		Logger:  logger,
		Metrics: exporter.ServeHTTP(),
		Timeout: TIMEOUT,
	})
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         cfg.Addr(),
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	logger.Info().Str("addr", cfg.Addr()).Str("queue", cfg.QueueName).Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errShutdown
}

func seedProviders(ctx context.Context, logger zerolog.Logger, store providers.Store, path string) error {
	loader := providers.NewLoader()
	if err := loader.Load(path); err != nil {
		return err
	}
	n, err := loader.Seed(ctx, store)
	if err != nil {
		return err
	}
	logger.Info().Int("providers", n).Str("file", path).Msg("providers seeded")
	return nil
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
