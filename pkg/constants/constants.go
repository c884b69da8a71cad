package constants

import "time"

const (
	// RequestIDLength size of the correlation id sent with each channel request
	RequestIDLength = 16
	// CloseMessageCode identifier the message id for a close request
	CloseMessageCode = 1000
	// DefaultEmitTimeout bounds every request/response exchange over the realtime channel.
	DefaultEmitTimeout = 5 * time.Second
	// DefaultHTTPTimeout bounds a single RemoteAPI round trip.
	DefaultHTTPTimeout = 30 * time.Second
	// MaxJoinRetries is the number of consecutive join failures tolerated
	// before the connection is reported as lost.
	MaxJoinRetries = 3
)

var (
	WebsocketScheme       = "ws"
	SecureWebsocketScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

// SocketPath is appended to the server base URL when dialing the realtime channel.
const SocketPath = "/socket.io"
