package console

import (
	"time"

	"github.com/joao-fontenele/tableflow/internal/checkout"
	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/lifecycle"
	"github.com/joao-fontenele/tableflow/internal/poller"
)

type orderView struct {
	domain.TableOrder
	Urgency          lifecycle.Urgency   `json:"urgency"`
	ElapsedMinutes   int                 `json:"elapsed_minutes"`
	NextStatus       *domain.OrderStatus `json:"next_status,omitempty"`
	Cancellable      bool                `json:"cancellable"`
	EstimatedMinutes int                 `json:"estimated_minutes"`
}

func newOrderView(o domain.TableOrder, now time.Time) orderView {
	v := orderView{
		TableOrder:       o,
		Urgency:          lifecycle.KitchenUrgency(o.CreatedAt, now),
		ElapsedMinutes:   lifecycle.ElapsedMinutes(o.CreatedAt, now),
		Cancellable:      lifecycle.CanCancel(o.Status),
		EstimatedMinutes: int(lifecycle.EstimatedRemaining(o.Status) / time.Minute),
	}
	if next, ok := lifecycle.NextOrderStatus(o.Status); ok {
		v.NextStatus = &next
	}
	return v
}

func orderViews(orders []domain.TableOrder, now time.Time) []orderView {
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = newOrderView(o, now)
	}
	return views
}

type requestView struct {
	domain.WaiterRequest
	Urgency        lifecycle.Urgency     `json:"urgency"`
	ElapsedMinutes int                   `json:"elapsed_minutes"`
	NextStatus     *domain.RequestStatus `json:"next_status,omitempty"`
}

func newRequestView(r domain.WaiterRequest, now time.Time) requestView {
	v := requestView{
		WaiterRequest:  r,
		Urgency:        lifecycle.RequestUrgency(r.CreatedAt, now),
		ElapsedMinutes: lifecycle.ElapsedMinutes(r.CreatedAt, now),
	}
	if next, ok := lifecycle.NextRequestStatus(r.Status); ok {
		v.NextStatus = &next
	}
	return v
}

type waiterView struct {
	domain.Waiter
	DisplayName string `json:"display_name"`
	IdleMinutes int    `json:"idle_minutes"`
}

func newWaiterView(w domain.Waiter, now time.Time) waiterView {
	return waiterView{
		Waiter:      w,
		DisplayName: w.DisplayName(),
		IdleMinutes: lifecycle.ElapsedMinutes(w.LastActive, now),
	}
}

// feed is the envelope for every polled collection.
type feed[T any] struct {
	Items     []T        `json:"items"`
	Loaded    bool       `json:"loaded"`
	Stale     bool       `json:"stale"`
	Error     string     `json:"error,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

func newFeed[S, T any](s poller.Snapshot[S], items []T) feed[T] {
	f := feed[T]{Items: items, Loaded: s.Loaded, Stale: s.Stale()}
	if f.Items == nil {
		f.Items = []T{}
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	if !s.FetchedAt.IsZero() {
		at := s.FetchedAt
		f.FetchedAt = &at
	}
	return f
}

type kitchenBoard struct {
	Queue   []orderView                        `json:"queue"`
	Columns map[domain.OrderStatus][]orderView `json:"columns"`
	Loaded  bool                               `json:"loaded"`
	Stale   bool                               `json:"stale"`
}

// waiterBoard counts every status, including those with nobody in them.
type waiterBoard struct {
	feed[waiterView]
	Counts map[domain.WaiterStatus]int `json:"counts"`
}

type trackingView struct {
	State            poller.ItemState `json:"state"`
	Stale            bool             `json:"stale"`
	Order            *orderView       `json:"order,omitempty"`
	EstimatedMinutes *int             `json:"estimated_minutes,omitempty"`
}

type checkoutRequest struct {
	checkout.Cart
	Payment checkout.PaymentInfo `json:"payment"`
}
