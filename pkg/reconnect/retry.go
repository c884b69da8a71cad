package reconnect

import (
	"math"
	"math/rand"
	"time"
)

// Retryer spaces join attempts. The controller owns the failure cap;
// a Retryer may give up earlier by returning false.
type Retryer interface {
	// NextDelay is the pause before retry number attempt, counted from 0.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
	// Reset is called after a successful join.
	Reset()
}

// ExponentialBackoffRetryer doubles the pause on each attempt up to MaxDelay,
// with optional jitter.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor spreads each delay by up to ±JitterFactor of itself.
	JitterFactor float64
}

// NewExponentialBackoffRetryer waits 500ms, 1s, 2s, ... capped at 10s.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	delay := math.Min(
		float64(r.InitialDelay)*math.Pow(r.Multiplier, float64(attempt)),
		float64(r.MaxDelay),
	)

	if r.JitterFactor > 0 {
		//nolint:gosec // jitter only
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer always waits Delay.
type FixedDelayRetryer struct {
	Delay time.Duration
}

func NewFixedDelayRetryer(delay time.Duration) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay}
}

func (r *FixedDelayRetryer) NextDelay(int, error) (time.Duration, bool) {
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}
