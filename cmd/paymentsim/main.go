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

	"github.com/spf13/viper"

	"github.com/joao-fontenele/tableflow/internal/payment"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8090")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"), "tableflow-paymentsim", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("tableflow-paymentsim", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	handler := payment.NewHandler(payment.NewSimulated(logger), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(handler.HandleProcess))
	mux.HandleFunc("GET /payments/{id}", telemetry.WithHTTPRoute(handler.HandleStatus))
	mux.HandleFunc("GET /payments/methods", telemetry.WithHTTPRoute(handler.HandleMethods))
	mux.Handle("GET /metrics", metricsHandler)

	port := v.GetString("PORT")
	server := telemetry.NewServer(":"+port, "tableflow-paymentsim", mux)

	go func() {
		logger.Info("starting payment simulator", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
