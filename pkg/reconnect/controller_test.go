package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olsync/olsync/pkg/constants"
)

var errTransient = errors.New("transient")

func TestRun_Success(t *testing.T) {
	c := New(nil)

	calls := 0
	err := c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateJoined, c.State())
	assert.Equal(t, 0, c.Retries())
}

func TestRun_CapReached(t *testing.T) {
	c := New(nil)

	calls := 0
	err := c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, constants.ErrConnectionLost)
	assert.Equal(t, 3, calls, "no fourth attempt")
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 0, c.Retries())
}

func TestRun_TwoPriorFailuresThenFatal(t *testing.T) {
	c := New(nil)

	calls := 0
	err := c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		if calls == 3 {
			return nil
		}
		return errTransient
	})
	require.NoError(t, err)

	// Joined; a disconnect and one failed rejoin bring the count to two.
	require.NoError(t, c.Disconnected())
	assert.Equal(t, 1, c.Retries())

	calls = 0
	err = c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		if calls == 1 {
			assert.Equal(t, 1, c.Retries())
		}
		if calls == 2 {
			assert.Equal(t, 2, c.Retries())
		}
		return errTransient
	})
	require.ErrorIs(t, err, constants.ErrConnectionLost)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Retries())
	assert.Equal(t, StateFailed, c.State())
}

func TestRun_FailedIsNotRetriedAutomatically(t *testing.T) {
	c := New(nil)
	c.MaxRetries = 1

	err := c.Run(context.Background(), func(context.Context, Scheme) error { return errTransient })
	require.ErrorIs(t, err, constants.ErrConnectionLost)

	assert.Error(t, c.Disconnected(), "Failed only leaves through a new Run")

	err = c.Run(context.Background(), func(context.Context, Scheme) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateJoined, c.State())
}

func TestRun_SchemeFallback(t *testing.T) {
	c := New(nil)

	var schemes []Scheme
	err := c.Run(context.Background(), func(_ context.Context, s Scheme) error {
		schemes = append(schemes, s)
		if s == SchemeV1 {
			return constants.ErrJoinRejected
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Scheme{SchemeV1, SchemeV2}, schemes)
	assert.Equal(t, SchemeV2, c.Scheme())
	assert.Equal(t, 0, c.Retries())
}

func TestRun_RejectedTwice(t *testing.T) {
	c := New(nil)

	calls := 0
	err := c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		return constants.ErrJoinRejected
	})
	require.ErrorIs(t, err, constants.ErrJoinRejected)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateFailed, c.State())
}

func TestRun_Permanent(t *testing.T) {
	c := New(nil)

	calls := 0
	err := c.Run(context.Background(), func(context.Context, Scheme) error {
		calls++
		return Permanent(constants.ErrNotFound)
	})
	require.ErrorIs(t, err, constants.ErrNotFound)
	assert.NotErrorIs(t, err, constants.ErrConnectionLost)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateFailed, c.State())
	assert.Nil(t, Permanent(nil))
}

func TestRun_ContextCanceledDuringDelay(t *testing.T) {
	c := New(nil)
	c.Retryer = NewFixedDelayRetryer(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, func(context.Context, Scheme) error { return errTransient })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, c.State())
}

func TestRun_InvalidFromJoined(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Run(context.Background(), func(context.Context, Scheme) error { return nil }))

	assert.Error(t, c.Run(context.Background(), func(context.Context, Scheme) error { return nil }))
}

func TestReset(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Run(context.Background(), func(context.Context, Scheme) error { return nil }))
	require.NoError(t, c.Disconnected())

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, c.Retries())
}

func TestValidateTransitionTo(t *testing.T) {
	valid := map[State][]State{
		StateIdle:         {StateJoining},
		StateJoining:      {StateJoined, StateFailed},
		StateJoined:       {StateDisconnected},
		StateDisconnected: {StateJoining, StateFailed},
		StateFailed:       {StateJoining},
	}

	all := []State{StateIdle, StateJoining, StateJoined, StateDisconnected, StateFailed}
	for from, tos := range valid {
		for _, to := range all {
			err := from.validateTransitionTo(to)
			if contains(tos, to) {
				assert.NoError(t, err, "%v -> %v", from, to)
			} else {
				assert.Error(t, err, "%v -> %v", from, to)
			}
		}
	}
}

func contains(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
