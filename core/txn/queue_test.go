package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOPerProducer(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestQueue_ConcurrentPushPopLosesNothing(t *testing.T) {
	q := NewQueue[int]()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	seen := 0
	deadline := time.Now().Add(time.Second)
	for seen < n && time.Now().Before(deadline) {
		if _, ok := q.Pop(); ok {
			seen++
		}
	}
	wg.Wait()
	require.Equal(t, n, seen)
}

func TestQueue_PopWaitReturnsOnPush(t *testing.T) {
	q := NewQueue[string]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push("hello")
	}()

	v, ok := q.PopWait(ctx)
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestQueue_PopWaitRespectsCancellation(t *testing.T) {
	q := NewQueue[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.PopWait(ctx)
	require.False(t, ok)
}
