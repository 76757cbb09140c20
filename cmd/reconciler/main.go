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

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/tableflow/internal/config"
	"github.com/joao-fontenele/tableflow/internal/messaging"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/reconcile"
	"github.com/joao-fontenele/tableflow/internal/relay"
	"github.com/joao-fontenele/tableflow/internal/remote"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadReconciler()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "tableflow-reconciler", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("tableflow-reconciler", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, "postgres", cfg.PostgresURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Alerts for reconciled orders only reach terminals through the relay.
	var bus *notify.Bus
	if cfg.RelayEnabled() {
		bus = notify.NewBus(logger)
		defer bus.Close()
		stopRelay := startRelay(ctx, cfg, bus, logger)
		defer func() {
			if err := stopRelay(); err != nil {
				logger.Error("relay shutdown error", "error", err)
			}
		}()
	}

	store := remote.NewClient(cfg.StoreURL, logger, remote.WithReadRetries(cfg.ReadRetries))
	reconciler := reconcile.NewReconciler(reconcile.NewRepository(db), store, bus, logger,
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	server := telemetry.NewServer(":"+cfg.Port, "tableflow-reconciler", mux)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting reconciler", "interval", cfg.Reconcile.Interval, "max_attempts", cfg.Reconcile.MaxAttempts)
	if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reconciler stopped", "error", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// startRelay publishes the alerts raised for reconciled orders so the
// kitchen and management terminals hear about them. The reconciler never
// consumes the topic.
func startRelay(ctx context.Context, cfg *config.Config, bus *notify.Bus, logger *slog.Logger) func() error {
	producer := messaging.NewProducer(cfg.KafkaBrokers, relay.Topic)
	r := relay.New(cfg.Origin, bus, producer, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	logger.Info("notification relay enabled", "brokers", cfg.KafkaBrokers, "topic", relay.Topic)

	return func() error {
		r.Close()
		<-done
		return producer.Close()
	}
}
