package channel

import (
	"fmt"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/constants"
)

// Frame is the unit exchanged over the wire.
//
// A request carries ID, Event and Args. A reply carries the request's ID and
// either Args or Error. A server event carries Event and Args and no ID.
type Frame struct {
	ID    string    `json:"id,omitempty"`
	Event string    `json:"event,omitempty"`
	Args  []any     `json:"args,omitempty"`
	Error *RPCError `json:"error,omitempty"`
}

// IsReply reports whether f answers a request.
func (f *Frame) IsReply() bool {
	return f.ID != "" && f.Event == ""
}

// RPCError is the error half of a reply.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r RPCError) Error() string {
	if r.Code != 0 {
		return fmt.Sprintf("%s (code %d)", r.Message, r.Code)
	}
	return r.Message
}

func (r *RPCError) Is(target error) bool {
	if target == nil {
		return r == nil
	}

	_, ok := target.(*RPCError)
	return ok
}

// Args holds the arguments of a reply or event, decoded generically.
// Each argument is converted to its concrete type on demand.
type Args struct {
	codec  codec.Codec
	values []any
}

func NewArgs(c codec.Codec, values []any) *Args {
	return &Args{codec: c, values: values}
}

func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Value returns argument i as decoded from the wire, or nil.
func (a *Args) Value(i int) any {
	if i < 0 || i >= a.Len() {
		return nil
	}
	return a.values[i]
}

// Decode converts argument i into dst.
func (a *Args) Decode(i int, dst any) error {
	if i < 0 || i >= a.Len() {
		return fmt.Errorf("%w: argument %d of %d", constants.ErrMalformedPayload, i, a.Len())
	}
	if err := codec.Convert(a.codec, a.values[i], dst); err != nil {
		return fmt.Errorf("%w: argument %d: %v", constants.ErrMalformedPayload, i, err)
	}
	return nil
}

// DecodeAll decodes the leading arguments into dst in order.
// A nil entry skips its argument.
func (a *Args) DecodeAll(dst ...any) error {
	for i, d := range dst {
		if d == nil {
			continue
		}
		if err := a.Decode(i, d); err != nil {
			return err
		}
	}
	return nil
}
