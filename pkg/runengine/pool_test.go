package runengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRegisterAndCancelRun(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterRun(1, cancel)

	assert.True(t, pool.CancelRun(1))
	assert.Error(t, ctx.Err())

	assert.False(t, pool.CancelRun(999))
}

func TestPoolUnregisterRun(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	_, cancel := context.WithCancel(context.Background())
	pool.RegisterRun(1, cancel)

	assert.True(t, pool.CancelRun(1))

	pool.UnregisterRun(1)

	assert.False(t, pool.CancelRun(1))
}

func TestPoolGetActiveRunIDs(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	ids := pool.getActiveRunIDs()
	assert.Empty(t, ids)

	_, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	pool.RegisterRun(10, cancel1)
	pool.RegisterRun(20, cancel2)

	ids = pool.getActiveRunIDs()
	require.Len(t, ids, 2)
	assert.Contains(t, ids, int64(10))
	assert.Contains(t, ids, int64(20))
}

func TestPoolStopTwiceDoesNotPanic(t *testing.T) {
	pool := &WorkerPool{
		stopCh:     make(chan struct{}),
		activeRuns: make(map[int64]context.CancelFunc),
	}

	pool.Stop()
	assert.NotPanics(t, func() { pool.Stop() })
}

func TestPoolRegisterRunConcurrency(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	const numRuns = 100
	for i := 0; i < numRuns; i++ {
		go func(id int) {
			_, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.RegisterRun(int64(id), cancel)
		}(i)
	}

	require.Eventually(t, func() bool {
		pool.mu.RLock()
		defer pool.mu.RUnlock()
		return len(pool.activeRuns) == numRuns
	}, 1*time.Second, 10*time.Millisecond)
}

func TestPoolCancelNonExistentRun(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}
	assert.False(t, pool.CancelRun(404))
}

func TestPoolUnregisterNonExistentRun(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}
	assert.NotPanics(t, func() {
		pool.UnregisterRun(404)
	})
}

func TestPoolMultipleRunLifecycle(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	runIDs := []int64{1, 2, 3}
	for _, id := range runIDs {
		_, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.RegisterRun(id, cancel)
	}

	ids := pool.getActiveRunIDs()
	require.Len(t, ids, 3)

	assert.True(t, pool.CancelRun(2))
	pool.UnregisterRun(2)

	ids = pool.getActiveRunIDs()
	require.Len(t, ids, 2)
	assert.Contains(t, ids, int64(1))
	assert.Contains(t, ids, int64(3))
	assert.NotContains(t, ids, int64(2))
}

func TestPoolConcurrentCancellation(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterRun(7, cancel)

	const numGoroutines = 10
	results := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			results <- pool.CancelRun(7)
		}()
	}

	var trueCount int
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			trueCount++
		}
	}

	assert.Equal(t, numGoroutines, trueCount)
	assert.Error(t, ctx.Err())
}

func TestPoolRegisterSameRunTwice(t *testing.T) {
	pool := &WorkerPool{activeRuns: make(map[int64]context.CancelFunc)}

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	pool.RegisterRun(1, cancel1)
	pool.RegisterRun(1, cancel2)

	assert.True(t, pool.CancelRun(1))

	assert.Error(t, ctx2.Err())
	assert.NoError(t, ctx1.Err())
}
