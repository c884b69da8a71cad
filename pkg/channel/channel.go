// Package channel defines the realtime event channel the engine talks to the
// server through, and the request/response plumbing its implementations share.
package channel

import (
	"context"
)

// Local pseudo-events raised by the channel itself rather than the server.
const (
	EventConnect       = "connect"
	EventConnectFailed = "connect_failed"
	EventDisconnect    = "disconnect"
)

// Handler receives the arguments of an event.
// Handlers run on the channel's read goroutine, one at a time, in the order
// events arrive.
type Handler func(args *Args)

type Channel interface {
	// Connect dials the server and starts delivering events.
	Connect(ctx context.Context) error
	// Emit sends a request and waits for the matching reply.
	Emit(ctx context.Context, event string, args ...any) (*Args, error)
	// On registers h for event. Several handlers may be registered for the
	// same event; they run in registration order.
	On(event string, h Handler)
	RemoveAllHandlers()
	Disconnect(ctx context.Context) error
}
