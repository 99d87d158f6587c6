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

	httpadapter "github.com/kirillkom/rental-doc-intake/internal/adapters/http"
	"github.com/kirillkom/rental-doc-intake/internal/bootstrap"
	"github.com/kirillkom/rental-doc-intake/internal/config"
	"github.com/kirillkom/rental-doc-intake/internal/observability/logging"
	"github.com/kirillkom/rental-doc-intake/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:  logger,
		Metrics: httpMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		err := app.Queue.SubscribeRulesInvalidated(ctx, func(context.Context) {
			app.RuleCache.Invalidate()
			logger.Info("rule_cache_invalidated_remotely")
		})
		if err != nil {
			logger.Error("rules_subscription_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Ingestor:   app.IngestUC,
		Documents:  app.Repo,
		Fields:     app.Repo,
		Reminders:  app.Reminders,
		Classifier: app.Intake,
		Extractor:  app.Intake,
		Jobs:       app.Jobs,
		Events:     app.Intake,
		Rules:      app.Intake,
		Metrics:    httpMetrics,
	}).Handler()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", httpMetrics.Handler())
	mux.Handle("/", httpMetrics.Middleware(serviceName, router))

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
