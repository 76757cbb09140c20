package console

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/lifecycle"
	"github.com/joao-fontenele/tableflow/internal/poller"
)

// Trackers owns one poller per order a customer is following. A tracker stops
// polling once its order is delivered or cancelled and keeps that last state
// until it is untracked or the set is closed.
type Trackers struct {
	ctx      context.Context
	interval time.Duration
	list     func(ctx context.Context) ([]domain.TableOrder, error)
	logger   *slog.Logger
	opts     []poller.Option[domain.TableOrder]

	mu       sync.Mutex
	trackers map[int64]*poller.Poller[domain.TableOrder]
}

// NewTrackers starts every tracker under ctx. list is the store's order
// listing.
func NewTrackers(ctx context.Context, interval time.Duration, list func(ctx context.Context) ([]domain.TableOrder, error), logger *slog.Logger, opts ...poller.Option[domain.TableOrder]) *Trackers {
	return &Trackers{
		ctx:      ctx,
		interval: interval,
		list:     list,
		logger:   logger,
		opts:     opts,
		trackers: make(map[int64]*poller.Poller[domain.TableOrder]),
	}
}

// Track starts following id and reports whether a new tracker was created.
func (t *Trackers) Track(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.trackers[id]; ok {
		return false
	}

	match := func(o domain.TableOrder) bool { return o.ID == id }
	fetch := func(ctx context.Context) ([]domain.TableOrder, error) {
		orders, err := t.list(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			if o.ID == id {
				return []domain.TableOrder{o}, nil
			}
		}
		return nil, nil
	}

	var p *poller.Poller[domain.TableOrder]
	retire := poller.WithListener(func(_, next poller.Snapshot[domain.TableOrder]) {
		item := poller.Find(next, match)
		if item.State == poller.ItemFound && lifecycle.IsTerminalOrder(item.Value.Status) {
			t.logger.Info("tracked order finished, tracker retired", "order_id", id, "status", item.Value.Status)
			p.Stop()
		}
	})

	opts := append(slices.Clone(t.opts), retire)
	p = poller.New(fmt.Sprintf("tracker-%d", id), t.interval, fetch, t.logger, opts...)
	p.Start(t.ctx)
	t.trackers[id] = p
	return true
}

func (t *Trackers) Get(id int64) (poller.Item[domain.TableOrder], bool) {
	t.mu.Lock()
	p, ok := t.trackers[id]
	t.mu.Unlock()
	if !ok {
		return poller.Item[domain.TableOrder]{}, false
	}
	return poller.Find(p.Snapshot(), func(o domain.TableOrder) bool { return o.ID == id }), true
}

// Untrack stops the tracker for id. Anything it was fetching is discarded.
func (t *Trackers) Untrack(id int64) bool {
	t.mu.Lock()
	p, ok := t.trackers[id]
	delete(t.trackers, id)
	t.mu.Unlock()

	if ok {
		p.Stop()
	}
	return ok
}

// ActiveForTable reports whether a followed order of table is still in the
// kitchen flow.
func (t *Trackers) ActiveForTable(table string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, p := range t.trackers {
		item := poller.Find(p.Snapshot(), func(o domain.TableOrder) bool { return o.ID == id })
		if item.State == poller.ItemFound && item.Value.Table == table && !lifecycle.IsTerminalOrder(item.Value.Status) {
			return true
		}
	}
	return false
}

func (t *Trackers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trackers)
}

// Close stops every tracker and waits for their loops to exit.
func (t *Trackers) Close() {
	t.mu.Lock()
	trackers := t.trackers
	t.trackers = make(map[int64]*poller.Poller[domain.TableOrder])
	t.mu.Unlock()

	for _, p := range trackers {
		p.Stop()
	}
	for _, p := range trackers {
		p.Wait()
	}
}
