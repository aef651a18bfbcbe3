package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleSpacesCalls(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Wait(ctx))
	}
	// first call is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestThrottleSharedAcrossGoroutines(t *testing.T) {
	th := NewThrottle(20 * time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, th.Wait(ctx))
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	first, last := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 55*time.Millisecond)
}

func TestThrottleZeroIntervalNeverBlocks(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 100; i++ {
		assert.True(t, th.Allow())
	}
}

func TestThrottleWaitCancelled(t *testing.T) {
	th := NewThrottle(time.Hour)
	require.True(t, th.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Wait(ctx))

	th.Reset()
	assert.True(t, th.Allow())
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow(), "request %d", i+1)
	}
	assert.False(t, sw.Allow())

	time.Sleep(120 * time.Millisecond)
	assert.True(t, sw.Allow())

	sw.Reset()
	assert.Empty(t, sw.requests)
}

func TestSlidingWindowWait(t *testing.T) {
	sw := NewSlidingWindow(1, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, sw.Wait(ctx))
	require.NoError(t, sw.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, sw.Wait(cancelled), context.Canceled)
}
