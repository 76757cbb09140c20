package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus-backed global MeterProvider and
// returns the /metrics handler with the provider's shutdown.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// StartRuntimeMetrics publishes Go runtime metrics (goroutines, GC, heap)
// through the global MeterProvider.
func StartRuntimeMetrics() error {
	return runtime.Start()
}

// Counter creates an Int64Counter on meter. Components must keep working
// when the instrument cannot be created, so failures yield a no-op counter.
func Counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	var opts []metric.Int64CounterOption
	if desc != "" {
		opts = append(opts, metric.WithDescription(desc))
	}
	c, err := meter.Int64Counter(name, opts...)
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
