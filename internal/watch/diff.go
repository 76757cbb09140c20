// Package watch turns consecutive poll snapshots into notifications.
package watch

import "github.com/joao-fontenele/tableflow/internal/domain"

type OrderChange struct {
	Order domain.TableOrder
	From  domain.OrderStatus
}

type OrderDelta struct {
	Added   []domain.TableOrder
	Changed []OrderChange
	Removed []int64
}

func (d OrderDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// DiffOrders compares two order lists by id.
func DiffOrders(prev, next []domain.TableOrder) OrderDelta {
	before := make(map[int64]domain.OrderStatus, len(prev))
	for _, o := range prev {
		before[o.ID] = o.Status
	}

	var d OrderDelta
	seen := make(map[int64]bool, len(next))
	for _, o := range next {
		seen[o.ID] = true
		from, ok := before[o.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, o)
		case from != o.Status:
			d.Changed = append(d.Changed, OrderChange{Order: o, From: from})
		}
	}
	for _, o := range prev {
		if !seen[o.ID] {
			d.Removed = append(d.Removed, o.ID)
		}
	}
	return d
}

type RequestChange struct {
	Request domain.WaiterRequest
	From    domain.RequestStatus
}

type RequestDelta struct {
	Added   []domain.WaiterRequest
	Changed []RequestChange
	Removed []int64
}

func DiffRequests(prev, next []domain.WaiterRequest) RequestDelta {
	before := make(map[int64]domain.RequestStatus, len(prev))
	for _, r := range prev {
		before[r.ID] = r.Status
	}

	var d RequestDelta
	seen := make(map[int64]bool, len(next))
	for _, r := range next {
		seen[r.ID] = true
		from, ok := before[r.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, r)
		case from != r.Status:
			d.Changed = append(d.Changed, RequestChange{Request: r, From: from})
		}
	}
	for _, r := range prev {
		if !seen[r.ID] {
			d.Removed = append(d.Removed, r.ID)
		}
	}
	return d
}
