// ABOUTME: This file wires the courier: stores, breaker, jobs and the HTTP surface.
// ABOUTME: Background jobs stop and the server drains on SIGINT or SIGTERM.
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

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"news-courier/breaker"
	"news-courier/config"
	"news-courier/delivery"
	"news-courier/handler"
	"news-courier/ingest"
	"news-courier/logger"
	"news-courier/metrics"
	"news-courier/orchestrator"
	"news-courier/queue"
	"news-courier/ratelimit"
	"news-courier/repository"
	"news-courier/retry"
	"news-courier/scanner"
)

const sourceTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("news-courier", cfg.LogLevel)
	log.InfoContext(ctx, "configuration loaded",
		"queue_backend", cfg.Queue.Backend,
		"scan_base_url", cfg.Scan.BaseURL,
		"strict_order", cfg.Delivery.StrictOrder)

	pool, err := repository.NewPool(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.ErrorContext(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}

	articles := repository.NewArticleStore(pool, log)
	checkpoints := repository.NewCheckpointStore(pool, log)

	store, letters, err := queue.Build(cfg.Queue, pool, cfg.Redis, log)
	if err != nil {
		log.ErrorContext(ctx, "failed to build delivery queue", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(registry)
	}

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		FailureWindow:    cfg.Breaker.FailureWindow,
		Cooldown:         cfg.Breaker.Cooldown,
	})
	brk.OnStateChange = func(from, to breaker.State) {
		log.WarnContext(ctx, "circuit breaker state changed",
			"from", from.String(), "to", to.String())
		collector.ObserveTransition(to.String())
	}

	policy := retry.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.Retry.BaseDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		JitterFactor:  cfg.Retry.JitterFactor,
	}

	transport := delivery.NewTelegramTransport(cfg.Delivery.Endpoint, cfg.Delivery.BotToken, cfg.Delivery.Timeout)
	flusher := delivery.NewFlusher(delivery.Config{
		Destination: cfg.Delivery.ChatID,
		BatchSize:   cfg.Queue.FlushBatchSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
		StrictOrder: cfg.Delivery.StrictOrder,
	}, store, articles, transport, brk, policy, log).WithCollector(collector)
	replayer := delivery.NewReplayer(letters, articles, transport, brk, cfg.Delivery.ChatID, log)

	source := scanner.NewHTTPSource(cfg.Scan.BaseURL, sourceTimeout)
	limiter := ratelimit.NewHostLimiter(cfg.RateLimit.HostInterval, cfg.RateLimit.HostJitter)
	retrier := retry.NewRetrier(policy, delivery.IsRetryable, log)
	manager := ingest.NewCheckpointManager(checkpoints, cfg.Scan, log)
	svc := ingest.NewService(cfg.Scan, source, articles, manager, flusher, letters,
		limiter, retrier, collector, log)

	group := orchestrator.NewJobGroup(ctx, log)
	group.Add(orchestrator.NewJob(orchestrator.JobConfig{
		Name:       "scan-recent",
		Interval:   cfg.Scan.Interval,
		RunAtStart: true,
	}, svc.ScanRecent, log))
	group.Add(orchestrator.NewJob(orchestrator.JobConfig{
		Name:     "queue-flush",
		Interval: cfg.Queue.FlushInterval,
	}, flusher.Flush, log))
	group.Add(orchestrator.NewJob(orchestrator.JobConfig{
		Name:     "dlq-replay",
		Interval: cfg.DLQ.RetryInterval,
	}, func(ctx context.Context) error {
		_, err := replayer.ReplayBatch(ctx, cfg.DLQ.RetryBatchSize)
		return err
	}, log))
	if cfg.Metrics.Enabled {
		sources := metrics.Sources{Queue: store, Letters: letters, Checkpoints: checkpoints}
		group.Add(orchestrator.NewJob(orchestrator.JobConfig{
			Name:       "metrics-refresh",
			Interval:   cfg.Metrics.RefreshInterval,
			RunAtStart: true,
		}, func(ctx context.Context) error {
			return collector.Refresh(ctx, sources)
		}, log))
	}

	e := echo.New()
	statusHandler := handler.NewStatusHandler(flusher, letters, brk, checkpoints, articles, group, log)
	dlqHandler := handler.NewDLQHandler(letters, replayer, log)
	opsHandler := handler.NewOpsHandler(ctx, svc, log)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = registry
	}
	handler.Register(e, statusHandler, dlqHandler, opsHandler, gatherer, cfg.Metrics.Path, log)

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	go func() {
		address := fmt.Sprintf(":%d", cfg.Server.Port)
		log.InfoContext(ctx, "starting server", "address", address)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	group.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("shutdown complete")
}
