package lifecycle

import (
	"errors"
	"testing"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

var allOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusPreparing,
	domain.OrderStatusReady,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

func TestNextOrderStatus(t *testing.T) {
	tests := []struct {
		current domain.OrderStatus
		want    domain.OrderStatus
		ok      bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusPreparing, true},
		{domain.OrderStatusPreparing, domain.OrderStatusReady, true},
		{domain.OrderStatusReady, domain.OrderStatusDelivered, true},
		{domain.OrderStatusDelivered, "", false},
		{domain.OrderStatusCancelled, "", false},
		{"bogus", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.current), func(t *testing.T) {
			got, ok := NextOrderStatus(tt.current)
			if ok != tt.ok || got != tt.want {
				t.Errorf("NextOrderStatus(%q) = %q, %v; want %q, %v", tt.current, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNextRequestStatus(t *testing.T) {
	if got, ok := NextRequestStatus(domain.RequestStatusPending); !ok || got != domain.RequestStatusAcknowledged {
		t.Errorf("pending: got %q, %v", got, ok)
	}
	if got, ok := NextRequestStatus(domain.RequestStatusAcknowledged); !ok || got != domain.RequestStatusCompleted {
		t.Errorf("acknowledged: got %q, %v", got, ok)
	}
	if _, ok := NextRequestStatus(domain.RequestStatusCompleted); ok {
		t.Error("completed must be terminal")
	}
}

func TestCanCancel(t *testing.T) {
	want := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:   true,
		domain.OrderStatusConfirmed: true,
		domain.OrderStatusPreparing: true,
		domain.OrderStatusReady:     true,
		domain.OrderStatusDelivered: false,
		domain.OrderStatusCancelled: false,
	}
	for status, expected := range want {
		if got := CanCancel(status); got != expected {
			t.Errorf("CanCancel(%q) = %v, want %v", status, got, expected)
		}
	}
}

func TestCheckOrderTransition(t *testing.T) {
	// Every (from, to) pair is either the single forward step, a cancel of a
	// non-terminal order, or rejected.
	for _, from := range allOrderStatuses {
		for _, to := range allOrderStatuses {
			next, hasNext := NextOrderStatus(from)
			legal := (hasNext && next == to) || (to == domain.OrderStatusCancelled && CanCancel(from))

			err := CheckOrderTransition(from, to)
			if legal && err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !legal {
				if err == nil {
					t.Errorf("%s -> %s: expected rejection", from, to)
					continue
				}
				if !errors.Is(err, ErrIllegalTransition) {
					t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", from, to, err)
				}
			}
		}
	}
}

func TestApplyOrder(t *testing.T) {
	t.Run("advance walks the whole flow", func(t *testing.T) {
		status := domain.OrderStatusPending
		var seen []domain.OrderStatus
		for {
			next, err := ApplyOrder(status, ActionAdvance)
			if err != nil {
				break
			}
			seen = append(seen, next)
			status = next
		}
		if status != domain.OrderStatusDelivered {
			t.Fatalf("expected to end at delivered, got %s", status)
		}
		if len(seen) != 4 {
			t.Fatalf("expected 4 steps, got %v", seen)
		}
	})

	t.Run("rejection leaves state unchanged", func(t *testing.T) {
		got, err := ApplyOrder(domain.OrderStatusDelivered, ActionCancel)
		if err == nil {
			t.Fatal("expected error cancelling a delivered order")
		}
		if got != domain.OrderStatusDelivered {
			t.Errorf("expected status to stay delivered, got %s", got)
		}

		var ite *IllegalTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected IllegalTransitionError, got %T", err)
		}
		if ite.From != string(domain.OrderStatusDelivered) {
			t.Errorf("unexpected From: %s", ite.From)
		}
	})

	t.Run("cancel from ready", func(t *testing.T) {
		got, err := ApplyOrder(domain.OrderStatusReady, ActionCancel)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != domain.OrderStatusCancelled {
			t.Errorf("expected cancelled, got %s", got)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		if _, err := ApplyOrder(domain.OrderStatusPending, Action("rewind")); err == nil {
			t.Error("expected error for unknown action")
		}
	})
}

func TestCheckRequestTransition(t *testing.T) {
	if err := CheckRequestTransition(domain.RequestStatusPending, domain.RequestStatusAcknowledged); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckRequestTransition(domain.RequestStatusPending, domain.RequestStatusCompleted); err == nil {
		t.Error("skipping acknowledged must be rejected")
	}
	if err := CheckRequestTransition(domain.RequestStatusCompleted, domain.RequestStatusPending); err == nil {
		t.Error("moving backwards must be rejected")
	}
	if _, err := ApplyRequest(domain.RequestStatusCompleted); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
}
