package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/rental-doc-intake/internal/bootstrap"
	"github.com/kirillkom/rental-doc-intake/internal/config"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/observability/logging"
	"github.com/kirillkom/rental-doc-intake/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:      logger,
		Metrics:     workerMetrics,
		Worker:      true,
		JobObserver: workerMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Orchestrator.Run(gctx)
	})
	g.Go(func() error {
		return app.Relay.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
		return app.Queue.SubscribeDocumentIngested(gctx, func(_ context.Context, documentID string) error {
			_, err := app.Intake.EnqueueJob(gctx, domain.JobTypeOCR, documentID, nil)
			return err
		})
	})
	g.Go(func() error {
		return app.Queue.ServeJobRequests(gctx, app.Intake.HandleJobRequest)
	})
	g.Go(func() error {
		return app.Queue.SubscribeRulesInvalidated(gctx, func(context.Context) {
			app.RuleCache.Invalidate()
			logger.Info("rule_cache_invalidated_remotely")
		})
	})
	g.Go(func() error {
		return runGCSchedule(gctx, app, cfg.GCInterval, logger)
	})
	g.Go(func() error {
		return serveMetrics(gctx, workerMetrics.Handler(), cfg.WorkerMetricsPort, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}

// runGCSchedule enqueues one gc job per interval until ctx ends.
func runGCSchedule(ctx context.Context, app *bootstrap.App, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			jobID, err := app.Intake.EnqueueJob(ctx, domain.JobTypeGC, "", nil)
			if err != nil {
				logger.Warn("gc_enqueue_failed", "error", err)
				continue
			}
			logger.Debug("gc_enqueued", "job_id", jobID)
		}
	}
}

func serveMetrics(ctx context.Context, handler http.Handler, port string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("worker_metrics_listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
