package timerq

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_Empty(t *testing.T) {
	q := New[string]()
	require.Equal(t, 0, q.Len())

	_, ok := q.Peek()
	require.False(t, ok)
	_, ok = q.Pop()
	require.False(t, ok)
	_, ok = q.PopExpired(time.Now())
	require.False(t, ok)
}

func TestQueue_OrdersByExpiry(t *testing.T) {
	base := time.Now()
	q := New[int]()

	offsets := rand.New(rand.NewSource(42)).Perm(100)
	for _, off := range offsets {
		q.Push(off, base.Add(time.Duration(off)*time.Millisecond))
	}
	require.Equal(t, 100, q.Len())

	first, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, 0, first.Payload)
	require.Equal(t, 100, q.Len(), "peek must not remove")

	for want := 0; want < 100; want++ {
		e, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, e.Payload)
	}
	require.Equal(t, 0, q.Len())
}

func TestQueue_PopExpired(t *testing.T) {
	now := time.Now()
	q := New[string]()
	q.Push("later", now.Add(time.Second))
	q.Push("due", now)
	q.Push("overdue", now.Add(-time.Second))

	e, ok := q.PopExpired(now)
	require.True(t, ok)
	require.Equal(t, "overdue", e.Payload)

	e, ok = q.PopExpired(now)
	require.True(t, ok)
	require.Equal(t, "due", e.Payload)

	_, ok = q.PopExpired(now)
	require.False(t, ok)
	require.Equal(t, 1, q.Len())
}

func TestQueue_EqualExpiryAllPop(t *testing.T) {
	at := time.Now()
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i, at)
	}

	seen := make(map[int]bool)
	for q.Len() > 0 {
		e, _ := q.Pop()
		seen[e.Payload] = true
	}
	require.Len(t, seen, 5)
}
