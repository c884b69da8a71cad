package constants

import "errors"

// Errors
var (
	ErrNotFound         = errors.New("entity not found")
	ErrWrongKind        = errors.New("entity is of the wrong kind")
	ErrNoRoot           = errors.New("project tree is not initialized")
	ErrConnectionLost   = errors.New("connection lost")
	ErrJoinRejected     = errors.New("join rejected by server")
	ErrTimeout          = errors.New("timeout")
	ErrNotConnected     = errors.New("channel is not connected")
	ErrIDInUse          = errors.New("id already in use")
	ErrMalformedPayload = errors.New("malformed notification payload")
	ErrMalformedOp      = errors.New("malformed text operation")
	ErrVersionMismatch  = errors.New("document version mismatch")
	ErrClosed           = errors.New("engine closed")
	ErrNoBaseURL        = errors.New("base url not set")
	ErrNoCodec          = errors.New("codec is not set")
)
