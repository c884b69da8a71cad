// Package reconnect owns the join state machine: it runs join attempts,
// counts consecutive failures against a fixed cap and falls back to the
// alternate join scheme when the server rejects a join.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/logger"
)

// AttemptFunc performs one join with the given scheme.
type AttemptFunc func(ctx context.Context, scheme Scheme) error

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an attempt error that retrying cannot fix, such as a
// project that does not exist. Run stops on it and returns err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Controller struct {
	// MaxRetries is the number of consecutive failures that ends in Failed.
	MaxRetries int
	// Retryer spaces attempts. Nil retries immediately.
	Retryer Retryer

	mu      sync.Mutex
	state   State
	retries int
	scheme  Scheme

	logger logger.Logger
}

func New(l logger.Logger) *Controller {
	if l == nil {
		l = logger.Nop()
	}
	return &Controller{
		MaxRetries: constants.MaxJoinRetries,
		state:      StateIdle,
		scheme:     SchemeV1,
		logger:     l,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retries is the current count of consecutive failures.
func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

func (c *Controller) Scheme() Scheme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheme
}

// Reset returns the controller to Idle with a cleared counter.
// The chosen scheme is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.retries = 0
}

func (c *Controller) transitionTo(newState State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(newState)
}

func (c *Controller) transitionLocked(newState State) error {
	if err := c.state.validateTransitionTo(newState); err != nil {
		return err
	}
	c.state = newState
	c.logger.Debug("reconnect state transitioned", "new_state", newState, "retries", c.retries)
	return nil
}

// Run joins by calling attempt until it succeeds, the failure count
// reaches MaxRetries, or the server rejects the join on both schemes.
//
// A rejection on SchemeV1 switches to SchemeV2 without counting as a
// failure. Reaching the cap leaves the controller Failed with a cleared
// counter and returns an error wrapping constants.ErrConnectionLost.
func (c *Controller) Run(ctx context.Context, attempt AttemptFunc) error {
	if err := c.transitionTo(StateJoining); err != nil {
		return err
	}

	for {
		scheme := c.Scheme()
		err := attempt(ctx, scheme)
		if err == nil {
			c.mu.Lock()
			c.retries = 0
			err := c.transitionLocked(StateJoined)
			c.mu.Unlock()
			if c.Retryer != nil {
				c.Retryer.Reset()
			}
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.fail()
			return fmt.Errorf("join abandoned: %w", ctxErr)
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			c.fail()
			return perm.err
		}

		if errors.Is(err, constants.ErrJoinRejected) {
			if scheme == SchemeV1 {
				c.mu.Lock()
				c.scheme = SchemeV2
				c.mu.Unlock()
				c.logger.Info("join rejected, switching scheme", "from", SchemeV1, "to", SchemeV2, "error", err)
				continue
			}
			c.fail()
			return err
		}

		retries, fatal := c.countFailure()
		c.logger.Warn("join attempt failed", "attempt", retries, "max_retries", c.MaxRetries, "error", err)
		if fatal {
			return fmt.Errorf("%w: %d consecutive join failures: %v", constants.ErrConnectionLost, retries, err)
		}

		if err := c.wait(ctx, retries-1, err); err != nil {
			c.fail()
			return err
		}
	}
}

// Disconnected records the loss of a joined connection. It counts as a
// failure: when it reaches the cap the controller fails and the returned
// error wraps constants.ErrConnectionLost. Otherwise the caller is
// expected to Run again.
func (c *Controller) Disconnected() error {
	if err := c.transitionTo(StateDisconnected); err != nil {
		return err
	}
	retries, fatal := c.countFailure()
	if fatal {
		return fmt.Errorf("%w: disconnected after %d consecutive failures", constants.ErrConnectionLost, retries)
	}
	return nil
}

// countFailure increments the counter. At the cap it moves to Failed,
// clears the counter and reports fatal.
func (c *Controller) countFailure() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retries++
	retries := c.retries
	if retries < c.MaxRetries {
		return retries, false
	}

	if err := c.transitionLocked(StateFailed); err != nil {
		c.logger.Error("BUG: cannot fail from current state", "state", c.state, "error", err)
		c.state = StateFailed
	}
	c.retries = 0
	return retries, true
}

func (c *Controller) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateFailed); err != nil {
		c.logger.Error("BUG: cannot fail from current state", "state", c.state, "error", err)
		c.state = StateFailed
	}
	c.retries = 0
}

func (c *Controller) wait(ctx context.Context, attempt int, lastErr error) error {
	if c.Retryer == nil {
		return nil
	}
	delay, ok := c.Retryer.NextDelay(attempt, lastErr)
	if !ok {
		return fmt.Errorf("%w: retryer gave up: %v", constants.ErrConnectionLost, lastErr)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("join abandoned: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
