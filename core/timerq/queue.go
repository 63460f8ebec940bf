// Package timerq is a min-priority queue of scheduled callbacks ordered by expiry instant.
package timerq

import (
	"container/heap"
	"time"
)

// Entry is one scheduled timer.
type Entry[T any] struct {
	Payload   T
	ExpiresAt time.Time
}

// Queue orders entries by ExpiresAt ascending. Entries with equal expiry pop in no particular order.
// There is no cancellation: consumers re-check relevance when an entry fires.
type Queue[T any] struct {
	h entries[T]
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push schedules payload to expire at the given instant.
func (q *Queue[T]) Push(payload T, at time.Time) {
	heap.Push(&q.h, Entry[T]{Payload: payload, ExpiresAt: at})
}

// Peek returns the earliest entry without removing it.
func (q *Queue[T]) Peek() (Entry[T], bool) {
	if len(q.h) == 0 {
		return Entry[T]{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest entry.
func (q *Queue[T]) Pop() (Entry[T], bool) {
	if len(q.h) == 0 {
		return Entry[T]{}, false
	}
	return heap.Pop(&q.h).(Entry[T]), true
}

// PopExpired removes and returns the earliest entry if it expired at or before now.
func (q *Queue[T]) PopExpired(now time.Time) (Entry[T], bool) {
	e, ok := q.Peek()
	if !ok || e.ExpiresAt.After(now) {
		return Entry[T]{}, false
	}
	return q.Pop()
}

func (q *Queue[T]) Len() int {
	return len(q.h)
}

type entries[T any] []Entry[T]

func (h entries[T]) Len() int           { return len(h) }
func (h entries[T]) Less(i, j int) bool { return h[i].ExpiresAt.Before(h[j].ExpiresAt) }
func (h entries[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entries[T]) Push(x any) {
	*h = append(*h, x.(Entry[T]))
}

func (h *entries[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	var zero Entry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return e
}
