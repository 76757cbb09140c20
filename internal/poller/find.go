package poller

type ItemState string

const (
	ItemLoading  ItemState = "loading"
	ItemNotFound ItemState = "not_found"
	ItemFound    ItemState = "found"
)

// Item is the outcome of looking a single entity up in a snapshot.
type Item[T any] struct {
	State ItemState
	Value T
	Stale bool
}

// Find looks for the first item matching match. Before the first successful
// fetch the result is ItemLoading, never ItemNotFound.
func Find[T any](s Snapshot[T], match func(T) bool) Item[T] {
	if !s.Loaded {
		return Item[T]{State: ItemLoading, Stale: s.Stale()}
	}
	for _, v := range s.Items {
		if match(v) {
			return Item[T]{State: ItemFound, Value: v, Stale: s.Stale()}
		}
	}
	return Item[T]{State: ItemNotFound, Stale: s.Stale()}
}
