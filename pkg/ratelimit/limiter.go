package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound calls.
type Limiter interface {
	// Allow reports whether a call may proceed now, consuming a slot if so.
	Allow() bool
	// Wait blocks until a call may proceed or ctx is done.
	Wait(ctx context.Context) error
	Reset()
}

// Throttle enforces a minimum interval between consecutive calls, shared by
// every goroutine holding it. A zero interval never blocks.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	limiter  *rate.Limiter
}

// NewThrottle creates a throttle allowing one call per interval.
func NewThrottle(interval time.Duration) *Throttle {
	t := &Throttle{interval: interval}
	t.Reset()
	return t
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func (t *Throttle) current() *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter
}

func (t *Throttle) Allow() bool {
	return t.current().Allow()
}

func (t *Throttle) Wait(ctx context.Context) error {
	return t.current().Wait(ctx)
}

// Reset forgets past calls so the next one proceeds immediately.
func (t *Throttle) Reset() {
	limit := rate.Inf
	if t.interval > 0 {
		limit = rate.Every(t.interval)
	}
	t.mu.Lock()
	t.limiter = rate.NewLimiter(limit, 1)
	t.mu.Unlock()
}

// SlidingWindow admits at most maxRequests calls in any windowSize span.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve(time.Now())
	return ok
}

// Wait blocks until the oldest call in the window expires.
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.reserve(time.Now())
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a call at now if there is room, otherwise reports how long
// until the oldest recorded call leaves the window.
func (sw *SlidingWindow) reserve(now time.Time) (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = append(sw.requests[:0], sw.requests[i:]...)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}

	wait := sw.requests[0].Add(sw.windowSize).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}
