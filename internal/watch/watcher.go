package watch

import (
	"log/slog"
	"sync"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/notify"
	"github.com/joao-fontenele/tableflow/internal/poller"
)

type statusKey struct {
	orderID int64
	status  domain.OrderStatus
}

// OrderWatcher announces orders that appear in, or change status between,
// two consecutive order snapshots. Anything already announced on the bus is
// skipped.
type OrderWatcher struct {
	bus    *notify.Bus
	logger *slog.Logger

	mu          sync.Mutex
	newOrders   map[int64]bool
	transitions map[statusKey]bool
	unsubscribe func()
}

func NewOrderWatcher(bus *notify.Bus, logger *slog.Logger) *OrderWatcher {
	w := &OrderWatcher{
		bus:         bus,
		logger:      logger,
		newOrders:   make(map[int64]bool),
		transitions: make(map[statusKey]bool),
	}
	w.unsubscribe = bus.Subscribe(w.record)
	return w
}

func (w *OrderWatcher) Close() { w.unsubscribe() }

func (w *OrderWatcher) record(n domain.Notification) {
	if n.OrderID == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	switch n.Type {
	case domain.NotificationNewOrder:
		w.newOrders[n.OrderID] = true
	case domain.NotificationOrderStatus:
		if s, ok := n.Data["status"].(string); ok {
			w.transitions[statusKey{n.OrderID, domain.OrderStatus(s)}] = true
		}
	}
}

// Observe is a poller listener.
func (w *OrderWatcher) Observe(prev, next poller.Snapshot[domain.TableOrder]) {
	if !next.Loaded || next.Stale() {
		return
	}
	if !prev.Loaded {
		w.seed(next.Items)
		return
	}

	delta := DiffOrders(prev.Items, next.Items)
	if delta.Empty() {
		return
	}

	var added []domain.TableOrder
	var changed []OrderChange

	w.mu.Lock()
	for _, o := range delta.Added {
		if !w.newOrders[o.ID] {
			w.newOrders[o.ID] = true
			added = append(added, o)
		}
	}
	for _, c := range delta.Changed {
		key := statusKey{c.Order.ID, c.Order.Status}
		if !w.transitions[key] {
			w.transitions[key] = true
			changed = append(changed, c)
		}
	}
	for _, id := range delta.Removed {
		delete(w.newOrders, id)
		for k := range w.transitions {
			if k.orderID == id {
				delete(w.transitions, k)
			}
		}
	}
	w.mu.Unlock()

	for _, o := range added {
		if err := o.Validate(); err != nil {
			w.logger.Warn("store returned an inconsistent order", "order_id", o.ID, "error", err)
		}
		w.bus.Notify(observed(notify.NewOrderAlert(o.Table, o.ID, o.Total)))
	}
	for _, c := range changed {
		msg := notify.StatusChangeMessage(c.Order.ID, c.Order.Table, c.From, c.Order.Status)
		w.bus.Notify(observed(notify.OrderStatusAlert(c.Order.Table, c.Order.ID, c.Order.Status, msg)))
	}
	if len(added)+len(changed) > 0 {
		w.logger.Debug("order changes announced", "added", len(added), "changed", len(changed))
	}
}

func (w *OrderWatcher) seed(orders []domain.TableOrder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range orders {
		w.newOrders[o.ID] = true
		w.transitions[statusKey{o.ID, o.Status}] = true
	}
}

// RequestWatcher announces new pending waiter requests unless the table
// already has a waiter alert on the bus.
type RequestWatcher struct {
	bus    *notify.Bus
	logger *slog.Logger

	mu   sync.Mutex
	seen map[int64]bool
}

func NewRequestWatcher(bus *notify.Bus, logger *slog.Logger) *RequestWatcher {
	return &RequestWatcher{
		bus:    bus,
		logger: logger,
		seen:   make(map[int64]bool),
	}
}

func (w *RequestWatcher) Observe(prev, next poller.Snapshot[domain.WaiterRequest]) {
	if !next.Loaded || next.Stale() {
		return
	}

	w.mu.Lock()
	if !prev.Loaded {
		for _, r := range next.Items {
			w.seen[r.ID] = true
		}
		w.mu.Unlock()
		return
	}

	delta := DiffRequests(prev.Items, next.Items)
	var fresh []domain.WaiterRequest
	for _, r := range delta.Added {
		if w.seen[r.ID] {
			continue
		}
		w.seen[r.ID] = true
		if r.Status == domain.RequestStatusPending {
			fresh = append(fresh, r)
		}
	}
	for _, id := range delta.Removed {
		delete(w.seen, id)
	}
	w.mu.Unlock()

	for _, r := range fresh {
		if w.tableAlerted(r.TableNumber) {
			continue
		}
		w.bus.Notify(observed(notify.WaiterRequestAlert(r.TableNumber, r.Message)))
	}
}

func observed(n domain.Notification) domain.Notification {
	n.Observed = true
	return n
}

func (w *RequestWatcher) tableAlerted(table string) bool {
	for _, n := range w.bus.ByType(domain.NotificationWaiterRequest) {
		if n.TableID == table {
			return true
		}
	}
	return false
}
