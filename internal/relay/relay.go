// Package relay mirrors notifications between terminal processes over Kafka.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/messaging"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/telemetry"
)

const (
	Topic            = "restaurant.notifications"
	DefaultQueueSize = 64
	publishTimeout   = 5 * time.Second
)

type Option func(*Relay)

func WithQueueSize(n int) Option {
	return func(r *Relay) { r.queueSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay publishes notifications raised in this process and replays the ones
// raised elsewhere onto the local bus.
type Relay struct {
	origin    string
	bus       *notify.Bus
	publisher messaging.Publisher
	logger    *slog.Logger
	now       func() time.Time

	queueSize   int
	queue       chan domain.Notification
	unsubscribe func()

	published metric.Int64Counter
	received  metric.Int64Counter
	dropped   metric.Int64Counter
}

// New subscribes the relay to bus. origin identifies this process on the
// topic and must be unique per terminal.
func New(origin string, bus *notify.Bus, publisher messaging.Publisher, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		origin:    origin,
		bus:       bus,
		publisher: publisher,
		logger:    logger.With("component", "relay", "origin", origin),
		now:       func() time.Time { return time.Now().UTC() },
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan domain.Notification, r.queueSize)

	meter := otel.Meter("tableflow/relay")
	r.published = telemetry.Counter(meter, "relay.notifications.published", "")
	r.received = telemetry.Counter(meter, "relay.notifications.received", "")
	r.dropped = telemetry.Counter(meter, "relay.notifications.dropped", "Local notifications dropped on a full queue")

	r.unsubscribe = bus.Subscribe(r.enqueue)
	return r
}

func (r *Relay) Origin() string { return r.origin }

func (r *Relay) enqueue(n domain.Notification) {
	if n.Source != "" || n.Observed {
		return
	}
	select {
	case r.queue <- n:
	default:
		r.dropped.Add(context.Background(), 1)
		r.logger.Warn("relay queue full, notification not forwarded", "notification_id", n.ID, "type", n.Type)
	}
}

// Run publishes queued notifications until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-r.queue:
			r.forward(ctx, n)
		}
	}
}

func (r *Relay) forward(ctx context.Context, n domain.Notification) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := n.TableID
	if key == "" {
		key = n.ID
	}
	event := domain.NotificationEvent{
		Origin:       r.origin,
		Notification: n,
		PublishedAt:  r.now(),
	}
	if err := r.publisher.Publish(ctx, key, event); err != nil {
		r.logger.Error("failed to relay notification", "error", err, "notification_id", n.ID)
		return
	}
	r.published.Add(ctx, 1)
}

// Handle is the consumer side. Malformed payloads are logged and skipped so
// one bad message cannot stall the group.
func (r *Relay) Handle(ctx context.Context, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.Warn("skipping malformed notification event", "error", err)
		return nil
	}
	if event.Origin == "" || event.Origin == r.origin {
		return nil
	}
	if event.Notification.ID == "" {
		r.logger.Warn("skipping notification event without id", "from", event.Origin)
		return nil
	}

	n := event.Notification
	n.Source = event.Origin
	if r.announced(n) {
		r.logger.Debug("relayed order alert already on the bus", "notification_id", n.ID, "order_id", n.OrderID, "from", event.Origin)
		return nil
	}
	r.bus.Publish(n)
	r.received.Add(ctx, 1)
	return nil
}

// announced reports whether the local bus already holds an alert for the
// same order event, typically raised by this terminal's own poll.
func (r *Relay) announced(n domain.Notification) bool {
	if n.OrderID == 0 {
		return false
	}
	if n.Type != domain.NotificationNewOrder && n.Type != domain.NotificationOrderStatus {
		return false
	}
	for _, have := range r.bus.ByType(n.Type) {
		if have.ID != n.ID && have.OrderID == n.OrderID && have.Data["status"] == n.Data["status"] {
			return true
		}
	}
	return false
}

// Close detaches the relay from the bus. Queued notifications are discarded.
func (r *Relay) Close() {
	r.unsubscribe()
}
