// Package notify is the in-process notification bus shared by every view of a
// terminal. It keeps a bounded, newest-first log of operator alerts, expires
// non-urgent entries after a fixed lifetime and fans each new entry out to the
// subscribed listeners.
package notify

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

const (
	DefaultCapacity = 50
	DefaultTTL      = 10 * time.Second
)

// Listener receives a copy of every notification accepted by the bus.
// Listeners run synchronously on the notifying goroutine and must not call
// Notify or Publish themselves.
type Listener func(domain.Notification)

type Option func(*Bus)

func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithTTL sets how long a non-urgent notification stays in the log.
// Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(b *Bus) {
		b.ttl = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(b *Bus) {
		b.newID = gen
	}
}

type subscription struct {
	id       uint64
	listener Listener
}

type Bus struct {
	logger   *slog.Logger
	capacity int
	ttl      time.Duration
	now      func() time.Time
	newID    func() string

	// notifyMu serialises whole notify pipelines; mu guards the state below.
	notifyMu sync.Mutex

	mu      sync.Mutex
	log     []domain.Notification
	timers  map[string]*time.Timer
	subs    []subscription
	nextSub uint64
	closed  bool

	emitted  metric.Int64Counter
	expired  metric.Int64Counter
	evicted  metric.Int64Counter
	panicked metric.Int64Counter
}

func NewBus(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:   logger,
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return "notif_" + uuid.NewString() },
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}

	meter := otel.Meter("tableflow/notify")
	b.emitted = telemetry.Counter(meter, "notifications.emitted", "Notifications accepted by the bus")
	b.expired = telemetry.Counter(meter, "notifications.expired", "Notifications removed after their lifetime")
	b.evicted = telemetry.Counter(meter, "notifications.evicted", "Notifications dropped to keep the log bounded")
	b.panicked = telemetry.Counter(meter, "notifications.listener_panics", "Listener invocations that panicked")

	return b
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs = append(b.subs, subscription{id: id, listener: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// Notify stamps n with a fresh id and timestamp and runs it through the bus.
func (b *Bus) Notify(n domain.Notification) domain.Notification {
	n.ID = b.newID()
	n.CreatedAt = b.now()
	return b.accept(n)
}

// Publish runs an already formed notification through the bus, keeping its id
// and timestamp when present. A notification whose id is already in the log
// is returned as stored and not dispatched again.
func (b *Bus) Publish(n domain.Notification) domain.Notification {
	if n.ID == "" {
		n.ID = b.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.now()
	}
	return b.accept(n)
}

func (b *Bus) accept(n domain.Notification) domain.Notification {
	n = clone(n)

	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("notification dropped, bus closed", "type", n.Type, "id", n.ID)
		return n
	}
	if i := b.indexOf(n.ID); i >= 0 {
		stored := b.log[i]
		b.mu.Unlock()
		return stored
	}

	b.log = slices.Insert(b.log, 0, n)
	var dropped []domain.Notification
	if len(b.log) > b.capacity {
		dropped = slices.Clone(b.log[b.capacity:])
		b.log = b.log[:b.capacity]
		for _, d := range dropped {
			b.stopTimer(d.ID)
		}
	}
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	ctx := context.Background()
	b.emitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(n.Type)),
		attribute.String("priority", string(n.Priority)),
	))
	if len(dropped) > 0 {
		b.evicted.Add(ctx, int64(len(dropped)))
	}

	for _, s := range subs {
		b.dispatch(s.listener, n)
	}

	if n.Priority != domain.PriorityUrgent && b.ttl > 0 {
		b.scheduleExpiry(n.ID, b.lifetime(n.CreatedAt))
	}

	return clone(n)
}

func (b *Bus) dispatch(l Listener, n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(context.Background(), 1)
			b.logger.Error("notification listener panicked", "panic", r, "notification_id", n.ID, "type", n.Type)
		}
	}()
	l(clone(n))
}

// lifetime is what is left of the TTL for a notification created at
// created. Relayed notifications arrive with some of it already spent.
func (b *Bus) lifetime(created time.Time) time.Duration {
	left := b.ttl - b.now().Sub(created)
	return min(max(left, 0), b.ttl)
}

func (b *Bus) scheduleExpiry(id string, after time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A listener may already have removed it.
	if b.closed || b.indexOf(id) < 0 {
		return
	}
	b.timers[id] = time.AfterFunc(after, func() { b.expire(id) })
}

func (b *Bus) expire(id string) {
	b.mu.Lock()
	delete(b.timers, id)
	removed := b.removeLocked(id)
	b.mu.Unlock()

	if removed {
		b.expired.Add(context.Background(), 1)
	}
}

// Remove drops the notification with the given id. It reports whether the
// notification was present.
func (b *Bus) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimer(id)
	return b.removeLocked(id)
}

func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.timers {
		b.stopTimer(id)
	}
	b.log = nil
}

// Notifications returns a copy of the log, newest first.
func (b *Bus) Notifications() []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Notification, len(b.log))
	for i, n := range b.log {
		out[i] = clone(n)
	}
	return out
}

func (b *Bus) ByType(t domain.NotificationType) []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Notification
	for _, n := range b.log {
		if n.Type == t {
			out = append(out, clone(n))
		}
	}
	return out
}

// Close stops every pending expiry timer. Later notifications are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.timers {
		b.stopTimer(id)
	}
	b.closed = true
}

func (b *Bus) indexOf(id string) int {
	return slices.IndexFunc(b.log, func(n domain.Notification) bool { return n.ID == id })
}

func (b *Bus) removeLocked(id string) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.log = slices.Delete(b.log, i, i+1)
	return true
}

func (b *Bus) stopTimer(id string) {
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
}

func clone(n domain.Notification) domain.Notification {
	if n.Data != nil {
		n.Data = maps.Clone(n.Data)
	}
	return n
}
