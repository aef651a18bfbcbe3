package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	errs "legmirror/pkg/errors"
)

// DefaultSlowDown is the shortest pause after a server asked us to slow
// down. archive.org answers 503 SlowDown when its upload queue is full and
// recovers on the order of tens of seconds.
const DefaultSlowDown = 30 * time.Second

// BackoffStrategy computes the pause before the next attempt. err is the
// failure of the attempt just made.
type BackoffStrategy interface {
	NextDelay(attempt int, err error) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// MaxDelay, with symmetric jitter. Throttling responses wait at least
// SlowDown.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// JitterFactor adds randomness in [-f, +f] of the delay (0.0 to 1.0)
	JitterFactor float64
	SlowDown     time.Duration
}

func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		SlowDown:     DefaultSlowDown,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int, err error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	d := jitter(delay, b.JitterFactor)
	if b.SlowDown > 0 && Throttled(err) {
		d = max(d, b.SlowDown)
	}
	return d
}

// ConstantBackoff waits the same Delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Delay
}

// Throttled reports whether err is the remote side asking for fewer
// requests: a rate_limit error, or a sink error carrying 429 or 503.
func Throttled(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errs.ErrorTypeRateLimit ||
		e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusServiceUnavailable
}

func jitter(delay, factor float64) time.Duration {
	if factor > 0 {
		j := delay * factor
		delay += rand.Float64()*2*j - j
	}
	return time.Duration(max(delay, 0))
}

// Wait sleeps for delay or until ctx is done.
func Wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
