package router

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueue_RunsInOrder tests FIFO execution on one goroutine
func TestQueue_RunsInOrder(t *testing.T) {
	q := NewQueue(nil)
	var order []int
	for i := 0; i < 100; i++ {
		q.Schedule(func() { order = append(order, i) })
	}
	require.NoError(t, q.Close())

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

// TestQueue_SurvivesPanics tests that a panicking task does not stop the loop
func TestQueue_SurvivesPanics(t *testing.T) {
	q := NewQueue(nil)
	ran := make(chan struct{})

	q.Schedule(func() { panic("boom") })
	q.Schedule(func() { close(ran) })

	receive(t, ran)
	require.NoError(t, q.Close())
}

// TestQueue_DropsAfterClose tests scheduling on a closed queue
func TestQueue_DropsAfterClose(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Close())

	var ran atomic.Bool
	q.Schedule(func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())
}

// TestQueue_After tests delayed tasks and their cancellation
func TestQueue_After(t *testing.T) {
	q := NewQueue(nil)
	t.Cleanup(func() { _ = q.Close() })

	fired := make(chan struct{})
	q.After(5*time.Millisecond, func() { close(fired) })
	receive(t, fired)

	var cancelled atomic.Bool
	timer := q.After(time.Hour, func() { cancelled.Store(true) })
	assert.True(t, timer.Stop())
	assert.False(t, cancelled.Load())
}

// TestGoroutines_CloseWaits tests that Close waits for running tasks
func TestGoroutines_CloseWaits(t *testing.T) {
	g := NewGoroutines(nil)
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		g.Schedule(func() {
			time.Sleep(time.Millisecond)
			count.Add(1)
		})
	}
	g.Schedule(func() { panic("ignored") })

	require.NoError(t, g.Close())
	assert.Equal(t, int32(20), count.Load())
}
