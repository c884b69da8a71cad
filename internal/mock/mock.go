// Package mock provides an in-memory channel.Channel for tests.
package mock

import (
	"context"
	"sync"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/constants"
)

// Request is a recorded Emit.
type Request struct {
	Event string
	Args  []any
}

// ReplyFunc answers an Emit. Returning nil args and nil error yields an
// empty reply.
type ReplyFunc func(ctx context.Context, args []any) ([]any, error)

// Channel records emits and lets tests push events through the handlers
// registered with On.
type Channel struct {
	channel.Toolkit

	mu        sync.Mutex
	replies   map[string]ReplyFunc
	requests  []Request
	connected bool

	// ConnectErr, when set, fails Connect.
	ConnectErr error
	// Connects counts Connect calls.
	Connects int
	// Disconnects counts Disconnect calls.
	Disconnects int
	// OnConnect, when set, runs after a successful Connect, the way a
	// server greets a new socket.
	OnConnect func(c *Channel)
}

func Create() *Channel {
	return &Channel{
		Toolkit: channel.Toolkit{Codec: codec.JSON()},
		replies: make(map[string]ReplyFunc),
	}
}

// Reply installs the answer for event.
func (c *Channel) Reply(event string, fn ReplyFunc) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[event] = fn
	return c
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.Connects++
	err := c.ConnectErr
	c.connected = err == nil
	c.mu.Unlock()

	if err != nil {
		c.Dispatch(channel.EventConnectFailed, c.args([]any{err.Error()}))
		return err
	}
	c.Dispatch(channel.EventConnect, c.args(nil))
	if c.OnConnect != nil {
		c.OnConnect(c)
	}
	return nil
}

func (c *Channel) Emit(ctx context.Context, event string, args ...any) (*channel.Args, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, constants.ErrNotConnected
	}
	c.requests = append(c.requests, Request{Event: event, Args: args})
	fn := c.replies[event]
	c.mu.Unlock()

	if fn == nil {
		return nil, &channel.RPCError{Code: 400, Message: "unknown event " + event}
	}
	values, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	return c.args(values), nil
}

// Connected reports whether Connect succeeded and no Disconnect or Drop
// followed.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.Disconnects++
	c.connected = false
	c.mu.Unlock()
	return nil
}

// Push delivers a server event to the registered handlers. The values go
// through the codec as they would on the wire.
func (c *Channel) Push(event string, values ...any) error {
	var generic []any
	if err := codec.Convert(c.Codec, values, &generic); err != nil {
		return err
	}
	c.Dispatch(event, channel.NewArgs(c.Codec, generic))
	return nil
}

// Drop simulates the transport going away.
func (c *Channel) Drop(reason string) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.Dispatch(channel.EventDisconnect, c.args([]any{reason}))
}

func (c *Channel) Requests(event string) []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Request
	for _, r := range c.requests {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (c *Channel) args(values []any) *channel.Args {
	var generic []any
	if values != nil {
		_ = codec.Convert(c.Codec, values, &generic)
	}
	return channel.NewArgs(c.Codec, generic)
}
