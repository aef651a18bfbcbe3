package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"legmirror/pkg/logger"
)

func TestBatchPreservesOrder(t *testing.T) {
	p := New(4, func(_ context.Context, n int) int {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n * n
	}, logger.NewTestLogger())
	p.Start()
	defer p.Stop()

	results := p.Batch(context.Background(), []int{1, 2, 3, 4, 5, 6, 7, 8, 9})

	require.Len(t, results, 9)
	for i, res := range results {
		assert.Equal(t, i, res.Job.Index)
		assert.Equal(t, (i+1)*(i+1), res.Value)
		assert.False(t, res.Skipped)
	}
}

func TestBatchRunsConcurrently(t *testing.T) {
	var active, peak int32
	p := New(3, func(_ context.Context, _ string) struct{} {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}
	}, logger.NewTestLogger())
	p.Start()
	defer p.Stop()

	p.Batch(context.Background(), []string{"a", "b", "c", "d", "e", "f"})

	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestSingleWorkerIsSequential(t *testing.T) {
	var mu sync.Mutex
	var order []int
	p := New(1, func(_ context.Context, n int) int {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
		return n
	}, logger.NewTestLogger())
	p.Start()
	defer p.Stop()

	p.Batch(context.Background(), []int{3, 1, 2})
	assert.Equal(t, []int{3, 1, 2}, order)
}

func TestBatchCancelledSkipsUnstartedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var processed int32

	p := New(1, func(_ context.Context, n int) int {
		if atomic.AddInt32(&processed, 1) == 1 {
			close(started)
			time.Sleep(50 * time.Millisecond)
		}
		return n
	}, logger.NewTestLogger())
	p.Start()
	defer p.Stop()

	go func() {
		<-started
		cancel()
	}()
	results := p.Batch(ctx, []int{1, 2, 3, 4})

	require.Len(t, results, 4)
	assert.False(t, results[0].Skipped, "the in-flight job finishes")
	assert.Equal(t, 1, results[0].Value)
	for _, res := range results[1:] {
		assert.True(t, res.Skipped)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&processed))
}

func TestEmptyBatch(t *testing.T) {
	p := New(2, func(_ context.Context, n int) int { return n }, nil)
	p.Start()
	defer p.Stop()

	assert.Empty(t, p.Batch(context.Background(), nil))
}
