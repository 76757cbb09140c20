// Package lifecycle holds the order and waiter-request state machines and the
// time-derived display values built on top of them. Everything here is pure.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

var ErrIllegalTransition = errors.New("illegal status transition")

type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s: no transition out of %q", e.Entity, e.From)
	}
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

type Action string

const (
	ActionAdvance Action = "advance"
	ActionCancel  Action = "cancel"
)

var orderFlow = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusPending:   domain.OrderStatusConfirmed,
	domain.OrderStatusConfirmed: domain.OrderStatusPreparing,
	domain.OrderStatusPreparing: domain.OrderStatusReady,
	domain.OrderStatusReady:     domain.OrderStatusDelivered,
}

var requestFlow = map[domain.RequestStatus]domain.RequestStatus{
	domain.RequestStatusPending:      domain.RequestStatusAcknowledged,
	domain.RequestStatusAcknowledged: domain.RequestStatusCompleted,
}

// NextOrderStatus returns the status that follows s in the kitchen flow.
func NextOrderStatus(s domain.OrderStatus) (domain.OrderStatus, bool) {
	next, ok := orderFlow[s]
	return next, ok
}

func NextRequestStatus(s domain.RequestStatus) (domain.RequestStatus, bool) {
	next, ok := requestFlow[s]
	return next, ok
}

// CanCancel is true for every known order status that is not terminal.
func CanCancel(s domain.OrderStatus) bool {
	_, ok := orderFlow[s]
	return ok
}

func IsTerminalOrder(s domain.OrderStatus) bool {
	return s == domain.OrderStatusDelivered || s == domain.OrderStatusCancelled
}

func IsTerminalRequest(s domain.RequestStatus) bool {
	return s == domain.RequestStatusCompleted
}

// ApplyOrder resolves an action against the current status.
func ApplyOrder(current domain.OrderStatus, action Action) (domain.OrderStatus, error) {
	switch action {
	case ActionAdvance:
		if next, ok := NextOrderStatus(current); ok {
			return next, nil
		}
		return current, &IllegalTransitionError{Entity: "order", From: string(current)}
	case ActionCancel:
		if CanCancel(current) {
			return domain.OrderStatusCancelled, nil
		}
		return current, &IllegalTransitionError{Entity: "order", From: string(current), To: string(domain.OrderStatusCancelled)}
	}
	return current, &IllegalTransitionError{Entity: "order", From: string(current), To: string(action)}
}

// CheckOrderTransition accepts exactly one forward step or a cancellation of
// a non-terminal order.
func CheckOrderTransition(from, to domain.OrderStatus) error {
	if to == domain.OrderStatusCancelled && CanCancel(from) {
		return nil
	}
	if next, ok := NextOrderStatus(from); ok && next == to {
		return nil
	}
	return &IllegalTransitionError{Entity: "order", From: string(from), To: string(to)}
}

func ApplyRequest(current domain.RequestStatus) (domain.RequestStatus, error) {
	if next, ok := NextRequestStatus(current); ok {
		return next, nil
	}
	return current, &IllegalTransitionError{Entity: "waiter request", From: string(current)}
}

func CheckRequestTransition(from, to domain.RequestStatus) error {
	if next, ok := NextRequestStatus(from); ok && next == to {
		return nil
	}
	return &IllegalTransitionError{Entity: "waiter request", From: string(from), To: string(to)}
}
