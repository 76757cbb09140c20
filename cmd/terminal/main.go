package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/joao-fontenele/tableflow/internal/checkout"
	"github.com/joao-fontenele/tableflow/internal/config"
	"github.com/joao-fontenele/tableflow/internal/console"
	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/gateway"
	"github.com/joao-fontenele/tableflow/internal/messaging"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/payment"
	"github.com/joao-fontenele/tableflow/internal/poller"
	"github.com/joao-fontenele/tableflow/internal/reconcile"
	"github.com/joao-fontenele/tableflow/internal/relay"
	"github.com/joao-fontenele/tableflow/internal/remote"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
	"github.com/joao-fontenele/tableflow/internal/watch"
)

type loop interface {
	Stop()
	Wait()
}

// closers run in reverse order on shutdown.
type closers []func(context.Context) error

func (c *closers) add(fn func(context.Context) error) { *c = append(*c, fn) }

func (c closers) close(ctx context.Context) error {
	var errs error
	for i := len(c) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c[i](ctx))
	}
	return errs
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger = logger.With("role", cfg.Role, "origin", cfg.Origin)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	runErr := run(ctx, cfg, logger, &cleanup)
	stop()
	if runErr != nil {
		logger.Error("terminal failed", "error", runErr)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cleanup.close(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cleanup *closers) error {
	serviceName := "tableflow-" + string(cfg.Role)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, cfg.ServiceVersion)
	if err != nil {
		return err
	}
	cleanup.add(shutdownTracer)

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		return err
	}
	cleanup.add(shutdownMeter)

	if err := telemetry.StartRuntimeMetrics(); err != nil {
		logger.Warn("runtime metrics unavailable", "error", err)
	}

	bus := notify.NewBus(logger,
		notify.WithCapacity(cfg.Notifications.Capacity),
		notify.WithTTL(cfg.Notifications.TTL),
	)
	cleanup.add(func(context.Context) error { bus.Close(); return nil })

	if cfg.Role.Staff() {
		if cfg.Notifications.Sound {
			bus.Subscribe(notify.SoundSink(nil, logger))
		}
		if cfg.Notifications.Desktop {
			bus.Subscribe(notify.DesktopSink(nil, logger))
		}
	}

	store := remote.NewClient(cfg.StoreURL, logger, remote.WithReadRetries(cfg.ReadRetries))
	pollOpts := func() []poller.Option[domain.TableOrder] {
		return []poller.Option[domain.TableOrder]{poller.WithFetchTimeout[domain.TableOrder](cfg.Poll.Timeout)}
	}

	var opts []console.Option
	var loops []loop

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	switch cfg.Role {
	case config.RoleKitchen, config.RoleManagement:
		orderWatcher := watch.NewOrderWatcher(bus, logger)
		requestWatcher := watch.NewRequestWatcher(bus, logger)
		cleanup.add(func(context.Context) error { orderWatcher.Close(); return nil })

		orders := poller.New("orders", cfg.Poll.Orders, store.ListOrders, logger,
			append(pollOpts(), poller.WithListener(orderWatcher.Observe))...)
		requests := poller.New("waiter-requests", cfg.Poll.Requests, store.ListWaiterRequests, logger,
			poller.WithFetchTimeout[domain.WaiterRequest](cfg.Poll.Timeout),
			poller.WithListener(requestWatcher.Observe),
		)
		waiters := poller.New("waiters", cfg.Poll.Waiters, store.ListWaiters, logger,
			poller.WithFetchTimeout[domain.Waiter](cfg.Poll.Timeout))
		orders.Start(ctx)
		requests.Start(ctx)
		waiters.Start(ctx)
		loops = append(loops, orders, requests, waiters)
		opts = append(opts, console.WithOrders(orders), console.WithRequests(requests), console.WithWaiters(waiters))

		if cfg.Role == config.RoleManagement {
			proxy := gateway.NewHandler(gateway.NewStoreProxy(cfg.StoreURL, telemetry.NewHTTPClient(15*time.Second)), logger)
			mux.HandleFunc("/api/", telemetry.WithHTTPRoute(proxy.HandleAPI))
		}

	case config.RoleCustomer:
		menu := poller.New("menu", cfg.Poll.Menu, store.ListMenu, logger,
			poller.WithFetchTimeout[domain.MenuItem](cfg.Poll.Timeout))
		menu.Start(ctx)
		loops = append(loops, menu)

		trackers := console.NewTrackers(ctx, cfg.Poll.Tracker, store.ListOrders, logger, pollOpts()...)
		cleanup.add(func(context.Context) error { trackers.Close(); return nil })

		db, err := telemetry.OpenDB(ctx, "postgres", cfg.PostgresURL, 5*time.Second)
		if err != nil {
			return err
		}
		cleanup.add(closeDB(db))

		orchestrator := checkout.NewOrchestrator(paymentGateway(cfg, logger), store, reconcile.NewRepository(db), bus, logger,
			checkout.WithSubmitRetries(cfg.Checkout.SubmitRetries),
			checkout.WithRetryInterval(cfg.Checkout.RetryInterval),
		)
		opts = append(opts, console.WithMenu(menu), console.WithCheckout(orchestrator), console.WithTrackers(trackers))
	}

	cleanup.add(func(context.Context) error {
		for _, l := range loops {
			l.Stop()
		}
		for _, l := range loops {
			l.Wait()
		}
		return nil
	})

	if cfg.RelayEnabled() {
		startRelay(ctx, cfg, bus, logger, cleanup)
	}

	console.NewHandler(bus, store, logger, opts...).Register(mux, cfg.Role)

	server := telemetry.NewServer(":"+cfg.Port, serviceName, mux)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting terminal", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	cleanup.add(server.Shutdown)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}

func paymentGateway(cfg *config.Config, logger *slog.Logger) payment.Gateway {
	if cfg.PaymentURL != "" {
		return payment.NewHTTPGateway(cfg.PaymentURL, nil)
	}
	logger.Info("no payment service configured, simulating payments in process")
	return payment.NewSimulated(logger)
}

func startRelay(ctx context.Context, cfg *config.Config, bus *notify.Bus, logger *slog.Logger, cleanup *closers) {
	producer := messaging.NewProducer(cfg.KafkaBrokers, relay.Topic)
	consumer := messaging.NewConsumer(cfg.KafkaBrokers, relay.Topic, cfg.Origin)
	r := relay.New(cfg.Origin, bus, producer, logger)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		_ = r.Run(ctx)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		if err := consumer.Consume(ctx, r.Handle); err != nil {
			logger.Error("notification relay consumer stopped", "error", err)
		}
	}()

	cleanup.add(func(context.Context) error {
		r.Close()
		<-done
		<-done
		return multierr.Combine(consumer.Close(), producer.Close())
	})
	logger.Info("notification relay enabled", "brokers", cfg.KafkaBrokers, "topic", relay.Topic)
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}
