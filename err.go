package olsync

import "github.com/olsync/olsync/pkg/constants"

// Errors returned by the engine. Test with errors.Is.
var (
	ErrNotFound         = constants.ErrNotFound
	ErrWrongKind        = constants.ErrWrongKind
	ErrNoRoot           = constants.ErrNoRoot
	ErrConnectionLost   = constants.ErrConnectionLost
	ErrJoinRejected     = constants.ErrJoinRejected
	ErrTimeout          = constants.ErrTimeout
	ErrNotConnected     = constants.ErrNotConnected
	ErrMalformedPayload = constants.ErrMalformedPayload
	ErrMalformedOp      = constants.ErrMalformedOp
	ErrVersionMismatch  = constants.ErrVersionMismatch
	ErrClosed           = constants.ErrClosed
)
