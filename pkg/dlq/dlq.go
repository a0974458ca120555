// Package dlq collects values that failed an operation together with the
// error that failed them, so callers can run a second pass over the losers.
package dlq

import (
	"iter"
	"sync"
)

type Item[T any] struct {
	value T
	err   error
}

func (i *Item[T]) Value() T {
	return i.value
}

func (i *Item[T]) Error() error {
	return i.err
}

type DLQ[T any] struct {
	mu    sync.Mutex
	items []*Item[T]
}

func New[T any]() *DLQ[T] {
	return &DLQ[T]{}
}

func (d *DLQ[T]) Add(value T, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, &Item[T]{value: value, err: err})
}

func (d *DLQ[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *DLQ[T]) Items() iter.Seq[*Item[T]] {
	d.mu.Lock()
	snapshot := make([]*Item[T], len(d.items))
	copy(snapshot, d.items)
	d.mu.Unlock()

	return func(yield func(*Item[T]) bool) {
		for _, item := range snapshot {
			if !yield(item) {
				return
			}
		}
	}
}
