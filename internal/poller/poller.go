// Package poller runs one recurring refresh loop per remote view. Each poller
// owns a snapshot of the last successful fetch and replaces it wholesale on
// every successful tick.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

var tracer = otel.Tracer("tableflow/poller")

type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Snapshot is the state published after each applied tick.
type Snapshot[T any] struct {
	Items     []T
	Loaded    bool
	FetchedAt time.Time
	Err       error
	Failures  int
}

// Stale reports whether the items predate the most recent failed fetch.
func (s Snapshot[T]) Stale() bool {
	return s.Err != nil
}

type Option[T any] func(*Poller[T])

// WithListener registers a callback run after every applied tick, on the
// poller goroutine.
func WithListener[T any](fn func(prev, next Snapshot[T])) Option[T] {
	return func(p *Poller[T]) {
		p.listeners = append(p.listeners, fn)
	}
}

func WithFetchTimeout[T any](d time.Duration) Option[T] {
	return func(p *Poller[T]) {
		p.fetchTimeout = d
	}
}

func WithClock[T any](now func() time.Time) Option[T] {
	return func(p *Poller[T]) {
		p.now = now
	}
}

type Poller[T any] struct {
	name         string
	interval     time.Duration
	fetch        FetchFunc[T]
	logger       *slog.Logger
	fetchTimeout time.Duration
	now          func() time.Time
	listeners    []func(prev, next Snapshot[T])

	ticks metric.Int64Counter

	mu         sync.Mutex
	snapshot   Snapshot[T]
	generation uint64
	running    bool
	stop       chan struct{}
	done       chan struct{}
	refresh    chan struct{}
}

func New[T any](name string, interval time.Duration, fetch FetchFunc[T], logger *slog.Logger, opts ...Option[T]) *Poller[T] {
	p := &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With("poller", name),
		now:      func() time.Time { return time.Now().UTC() },
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.ticks = telemetry.Counter(otel.Meter("tableflow/poller"), "poller.ticks", "Poll ticks by poller and outcome")

	return p
}

func (p *Poller[T]) Name() string { return p.name }

// Start launches the loop. The first fetch runs immediately. Calling Start on
// a running poller does nothing.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.generation++
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.loop(ctx, p.generation, p.stop, p.done)
}

// Stop ends the loop without waiting for an in-flight fetch. Whatever that
// fetch returns is discarded.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.generation++
	p.running = false
	close(p.stop)
}

// Wait blocks until the most recently started loop has returned.
func (p *Poller[T]) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh asks for a tick as soon as the current one, if any, completes.
// Requests made while one is already queued are merged.
func (p *Poller[T]) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

func (p *Poller[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *Poller[T]) loop(ctx context.Context, gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx, gen)

		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.mu.Lock()
			if p.generation == gen {
				p.generation++
				p.running = false
			}
			p.mu.Unlock()
			return
		case <-ticker.C:
		case <-p.refresh:
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context, gen uint64) {
	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	fetchCtx, span := tracer.Start(fetchCtx, "poll "+p.name,
		trace.WithAttributes(attribute.String("poller.name", p.name)),
	)
	defer span.End()

	items, err := p.fetch(fetchCtx)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	applied := p.apply(gen, items, err)
	if !applied {
		outcome = "discarded"
		span.SetAttributes(attribute.Bool("poller.discarded", true))
	}
	p.ticks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("poller", p.name),
		attribute.String("outcome", outcome),
	))
}

// apply publishes the result of a fetch started under generation gen. It
// returns false when the poller has been stopped or restarted since.
func (p *Poller[T]) apply(gen uint64, items []T, err error) bool {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return false
	}

	prev := p.snapshot
	next := prev
	if err != nil {
		next.Err = err
		next.Failures++
		if next.Failures == 1 {
			p.logger.Warn("poll failed, keeping previous data", "error", err)
		} else {
			p.logger.Debug("poll failed again", "error", err, "failures", next.Failures)
		}
	} else {
		next = Snapshot[T]{
			Items:     items,
			Loaded:    true,
			FetchedAt: p.now(),
		}
		if prev.Failures > 0 {
			p.logger.Info("poll recovered", "failures", prev.Failures)
		}
	}
	p.snapshot = next
	p.mu.Unlock()

	for _, l := range p.listeners {
		l(prev, next)
	}
	return true
}
