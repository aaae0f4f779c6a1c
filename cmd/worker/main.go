package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/compiledanswers/policy-rag/internal/bootstrap"
	"github.com/compiledanswers/policy-rag/internal/config"
	"github.com/compiledanswers/policy-rag/internal/observability/logging"
	"github.com/compiledanswers/policy-rag/internal/observability/metrics"
)

func main() {
	enqueueAll := flag.Bool("enqueue-all", false, "publish every known root id for re-ingestion and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if *enqueueAll {
		if err := enqueueAllRoots(ctx, app, logger); err != nil {
			logger.Error("enqueue_all_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRootIngest(ctx, func(handlerCtx context.Context, rootID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartRoot()
		start := time.Now()
		processErr := app.IngestUC.ProcessRoot(processCtx, rootID)
		status := "ok"
		if processErr != nil {
			status = "error"
		}
		workerMetrics.FinishRoot("worker", status, time.Since(start))
		return processErr
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

// enqueueAllRoots republishes the whole corpus, root by root. Used after
// chunking or prompt changes to rebuild the vector collections.
func enqueueAllRoots(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error {
	rootIDs, err := app.Source.ListRootIDs(ctx)
	if err != nil {
		return err
	}
	for _, rootID := range rootIDs {
		if err := app.Queue.PublishRootIngest(ctx, rootID); err != nil {
			return err
		}
	}
	logger.Info("roots_enqueued", "count", len(rootIDs))
	return nil
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
