// Package pool runs a bounded number of workers over submitted jobs.
package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"legmirror/pkg/logger"
)

// ProcessFunc handles one item. ctx is the context given to Batch.
type ProcessFunc[T, R any] func(ctx context.Context, item T) R

// Job is one submitted item together with its position in the batch.
type Job[T any] struct {
	Index int
	Item  T
	ctx   context.Context
}

// Result is the outcome of one job. Skipped results were never processed
// because the batch context was done before a worker picked them up.
type Result[T, R any] struct {
	Job      Job[T]
	Value    R
	Skipped  bool
	Duration time.Duration
}

// Pool is a fixed set of workers draining a job queue.
type Pool[T, R any] struct {
	numWorkers  int
	jobQueue    chan Job[T]
	resultQueue chan Result[T, R]
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc[T, R]
	logger      logger.Logger
	batchMu     sync.Mutex
}

// New creates a pool of numWorkers workers (at least one).
func New[T, R any](numWorkers int, process ProcessFunc[T, R], log logger.Logger) *Pool[T, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool[T, R]{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job[T], numWorkers*2),
		resultQueue: make(chan Result[T, R], numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start launches the workers.
func (p *Pool[T, R]) Start() {
	p.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (p *Pool[T, R]) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()
	p.logger.Debug("worker pool stopped")
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool[T, R]) Submit(ctx context.Context, index int, item T) error {
	select {
	case p.jobQueue <- Job[T]{Index: index, Item: item, ctx: ctx}:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Batch processes items and returns one result per item in input order.
// Items not yet started when ctx is done come back Skipped; items already
// running finish. Batches on the same pool run one at a time.
func (p *Pool[T, R]) Batch(ctx context.Context, items []T) []Result[T, R] {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	submitted := make(chan int, 1)
	go func() {
		n := 0
		for i, item := range items {
			if err := p.Submit(ctx, i, item); err != nil {
				break
			}
			n++
		}
		submitted <- n
	}()

	results := make([]Result[T, R], 0, len(items))
	expected := -1
	for expected < 0 || len(results) < expected {
		select {
		case res, ok := <-p.resultQueue:
			if !ok {
				expected = len(results)
				continue
			}
			results = append(results, res)
		case n := <-submitted:
			expected = n
		}
	}

	slices.SortFunc(results, func(a, b Result[T, R]) int { return a.Job.Index - b.Job.Index })
	return results
}

func (p *Pool[T, R]) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		res := Result[T, R]{Job: job}
		if job.ctx != nil && job.ctx.Err() != nil {
			res.Skipped = true
		} else {
			start := time.Now()
			ctx := job.ctx
			if ctx == nil {
				ctx = p.ctx
			}
			res.Value = p.process(ctx, job.Item)
			res.Duration = time.Since(start)
		}

		select {
		case p.resultQueue <- res:
		case <-p.ctx.Done():
			p.logger.DebugWithFields("worker stopping with undelivered result", map[string]interface{}{
				"worker_id": id,
			})
			return
		}
	}
}
