package lifecycle

import (
	"sort"
	"time"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyUrgent:
		return 3
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	}
	return 0
}

// ElapsedMinutes is the number of whole minutes between createdAt and now.
func ElapsedMinutes(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// RequestUrgency ranks a waiter request by how long the table has been waiting.
func RequestUrgency(createdAt, now time.Time) Urgency {
	m := ElapsedMinutes(createdAt, now)
	switch {
	case m > 15:
		return UrgencyHigh
	case m > 5:
		return UrgencyMedium
	}
	return UrgencyNormal
}

// KitchenUrgency ranks an order in the kitchen queue by its age.
func KitchenUrgency(createdAt, now time.Time) Urgency {
	m := ElapsedMinutes(createdAt, now)
	switch {
	case m > 30:
		return UrgencyUrgent
	case m > 20:
		return UrgencyHigh
	case m > 10:
		return UrgencyMedium
	}
	return UrgencyNormal
}

var remaining = map[domain.OrderStatus]time.Duration{
	domain.OrderStatusPending:   25 * time.Minute,
	domain.OrderStatusConfirmed: 20 * time.Minute,
	domain.OrderStatusPreparing: 15 * time.Minute,
	domain.OrderStatusReady:     5 * time.Minute,
}

// EstimatedRemaining is a display estimate, not a scheduling guarantee.
func EstimatedRemaining(s domain.OrderStatus) time.Duration {
	return remaining[s]
}

// KitchenQueue returns the non-terminal orders, most urgent first and oldest
// first within the same urgency.
func KitchenQueue(orders []domain.TableOrder, now time.Time) []domain.TableOrder {
	queue := make([]domain.TableOrder, 0, len(orders))
	for _, o := range orders {
		if !IsTerminalOrder(o.Status) {
			queue = append(queue, o)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		ui := KitchenUrgency(queue[i].CreatedAt, now).rank()
		uj := KitchenUrgency(queue[j].CreatedAt, now).rank()
		if ui != uj {
			return ui > uj
		}
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	return queue
}

// GroupByStatus buckets the active orders for the kitchen board columns.
func GroupByStatus(orders []domain.TableOrder) map[domain.OrderStatus][]domain.TableOrder {
	groups := map[domain.OrderStatus][]domain.TableOrder{
		domain.OrderStatusPending:   {},
		domain.OrderStatusConfirmed: {},
		domain.OrderStatusPreparing: {},
		domain.OrderStatusReady:     {},
	}
	for _, o := range orders {
		if _, ok := groups[o.Status]; ok {
			groups[o.Status] = append(groups[o.Status], o)
		}
	}
	return groups
}
