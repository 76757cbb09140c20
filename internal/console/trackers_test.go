package console

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/poller"
	"github.com/joao-fontenele/tableflow/internal/testutil"
)

func TestTrackersRetireFinishedOrders(t *testing.T) {
	var fetches atomic.Int64
	var status atomic.Value
	status.Store(domain.OrderStatusPreparing)

	list := func(ctx context.Context) ([]domain.TableOrder, error) {
		fetches.Add(1)
		return []domain.TableOrder{
			{ID: 5, Table: "2", Status: status.Load().(domain.OrderStatus)},
			{ID: 6, Table: "3", Status: domain.OrderStatusPending},
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trackers := NewTrackers(ctx, 10*time.Millisecond, list, testutil.DiscardLogger())
	defer trackers.Close()

	trackers.Track(5)
	testutil.Eventually(t, "tracker polling", time.Second, func() bool {
		return fetches.Load() >= 3
	})
	if !trackers.ActiveForTable("2") {
		t.Error("expected table 2 to have an active order")
	}

	status.Store(domain.OrderStatusDelivered)
	testutil.Eventually(t, "delivered status seen", time.Second, func() bool {
		item, _ := trackers.Get(5)
		return item.State == poller.ItemFound && item.Value.Status == domain.OrderStatusDelivered
	})

	settled := fetches.Load()
	time.Sleep(60 * time.Millisecond)
	if got := fetches.Load(); got != settled {
		t.Errorf("expected polling to stop after delivery, fetches went %d -> %d", settled, got)
	}

	item, ok := trackers.Get(5)
	if !ok || item.State != poller.ItemFound || item.Value.Status != domain.OrderStatusDelivered {
		t.Errorf("expected the final state to stay readable, got %+v", item)
	}
	if trackers.ActiveForTable("2") {
		t.Error("expected no active order once delivered")
	}
	if trackers.Track(5) {
		t.Error("expected a retired tracker to still count as tracked")
	}
	if !trackers.Untrack(5) || trackers.Len() != 0 {
		t.Error("expected untrack to drop the retired tracker")
	}
}

func TestTrackersUnknownOrder(t *testing.T) {
	list := func(ctx context.Context) ([]domain.TableOrder, error) { return nil, nil }

	trackers := NewTrackers(context.Background(), time.Hour, list, testutil.DiscardLogger())
	defer trackers.Close()

	if _, ok := trackers.Get(9); ok {
		t.Error("expected untracked order to be unknown")
	}
	trackers.Track(9)
	testutil.Eventually(t, "first fetch", time.Second, func() bool {
		item, _ := trackers.Get(9)
		return item.State == poller.ItemNotFound
	})
}
