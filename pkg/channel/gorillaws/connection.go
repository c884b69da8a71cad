// Package gorillaws implements channel.Channel over a gorilla websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/internal/rand"
	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/logger"
)

// DefaultDialer is gorilla's default dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

type Config struct {
	// BaseURL is the server origin, e.g. https://www.overleaf.com.
	// http and https are dialed as ws and wss.
	BaseURL string
	Codec   codec.Codec
	// Header is sent with the handshake. It carries the session cookies
	// and the CSRF token.
	Header http.Header
	// Query is appended to the socket URL.
	Query  url.Values
	Logger logger.Logger
}

type Connection struct {
	channel.Toolkit

	Conn *gorilla.Conn
	// connLock guards Conn for writes and for Connect/Disconnect.
	connLock sync.Mutex

	// Timeout bounds the wait for a reply once a request is written.
	// Zero leaves the deadline to the caller's context.
	Timeout time.Duration

	Dialer *gorilla.Dialer
	header http.Header
	query  url.Values
	logger logger.Logger

	// connCloseCh is closed when the connection goes away, which stops
	// the read loop and fails pending and future Emits.
	connCloseCh    chan int
	connCloseError error
	closed         bool
	closedLock     sync.Mutex
}

func New(c *Config) *Connection {
	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}
	return &Connection{
		Toolkit: channel.Toolkit{
			BaseURL: c.BaseURL,
			Codec:   c.Codec,
		},
		Timeout: constants.DefaultEmitTimeout,
		Dialer:  DefaultDialer,
		header:  c.Header,
		query:   c.Query,
		logger:  l,
	}
}

func (c *Connection) SetTimeOut(timeout time.Duration) *Connection {
	c.Timeout = timeout
	return c
}

// SocketURL is the URL Connect dials.
func (c *Connection) SocketURL() (string, error) {
	if c.BaseURL == "" {
		return "", constants.ErrNoBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case constants.HTTPScheme:
		u.Scheme = constants.WebsocketScheme
	case constants.HTTPSecureScheme:
		u.Scheme = constants.SecureWebsocketScheme
	case constants.WebsocketScheme, constants.SecureWebsocketScheme:
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, c.BaseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + constants.SocketPath
	if len(c.query) > 0 {
		u.RawQuery = c.query.Encode()
	}
	return u.String(), nil
}

// Connect dials the server and starts the read loop. The read loop raises
// "connect" before any server event; a failed dial raises "connect_failed"
// instead.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Codec == nil {
		return constants.ErrNoCodec
	}
	target, err := c.SocketURL()
	if err != nil {
		return err
	}

	dialer := *c.Dialer
	dialer.Subprotocols = []string{c.Codec.Name()}

	conn, res, err := dialer.DialContext(ctx, target, c.header)
	if err != nil {
		if res != nil {
			err = fmt.Errorf("%w (status %s)", err, res.Status)
		}
		c.Dispatch(channel.EventConnectFailed, channel.NewArgs(c.Codec, []any{err.Error()}))
		return err
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	closeCh := make(chan int)
	c.connLock.Lock()
	c.closedLock.Lock()
	c.Conn = conn
	c.connCloseCh = closeCh
	c.closedLock.Unlock()
	c.connLock.Unlock()

	c.logger.Debug("channel connected", "url", target)

	go c.readLoop(conn, closeCh)

	return nil
}

// IsClosed reports whether the connection went away. A closed Connection
// cannot be reconnected; make a new one.
func (c *Connection) IsClosed() bool {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()
	return c.closed
}

// Emit writes a request and waits for the reply with the same id.
//
// The wait is bounded by Timeout; running out of it yields
// constants.ErrTimeout. A reply carrying an error yields *channel.RPCError.
func (c *Connection) Emit(ctx context.Context, event string, args ...any) (*channel.Args, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	closeCh, err := c.closeChannel()
	if err != nil {
		return nil, err
	}

	select {
	case <-closeCh:
		return nil, c.closeError()
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	id := rand.NewRequestID(constants.RequestIDLength)
	if args == nil {
		args = []any{}
	}
	request := &channel.Frame{
		ID:    id,
		Event: event,
		Args:  args,
	}

	responseChan, err := c.CreateResponseChannel(id)
	if err != nil {
		return nil, err
	}
	defer c.RemoveResponseChannel(id)

	if err := c.write(request); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", constants.ErrTimeout, event, c.Timeout)
		}
		return nil, ctx.Err()
	case <-closeCh:
		return nil, c.closeError()
	case res := <-responseChan:
		if res.Error != nil {
			return nil, res.Error
		}
		return channel.NewArgs(c.Codec, res.Args), nil
	}
}

func (c *Connection) closeChannel() (chan int, error) {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.connCloseCh == nil {
		return nil, constants.ErrNotConnected
	}
	return c.connCloseCh, nil
}

func (c *Connection) closeError() error {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()
	if c.connCloseError == nil {
		return constants.ErrNotConnected
	}
	return fmt.Errorf("%w: %v", constants.ErrNotConnected, c.connCloseError)
}

func (c *Connection) write(v any) error {
	data, err := c.Codec.Marshal(v)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.Conn == nil {
		return constants.ErrNotConnected
	}
	err = c.Conn.WriteMessage(c.messageType(), data)

	if errors.Is(err, gorilla.ErrCloseSent) {
		c.closeWithError(err)
	}

	return err
}

func (c *Connection) messageType() int {
	if c.Codec.Name() == "json" {
		return gorilla.TextMessage
	}
	return gorilla.BinaryMessage
}

// Disconnect sends a close frame and tears the connection down.
// The context bounds the close frame write; the socket is closed regardless.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.connLock.Lock()
	conn := c.Conn
	c.Conn = nil
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}

	c.closeWithError(net.ErrClosed)

	writeErr := make(chan error, 1)
	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				writeErr <- fmt.Errorf("BUG: Connection.Disconnect: failed to set write deadline: %w", err)
				return
			}
		}
		writeErr <- conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			c.logger.Warn("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return conn.Close()
}

func (c *Connection) closeWithError(err error) bool {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()

	if c.closed {
		return false
	}

	c.closed = true
	c.connCloseError = err
	if c.connCloseCh != nil {
		close(c.connCloseCh)
	}
	return true
}

// readLoop delivers frames in arrival order. Events are dispatched inline,
// so a handler must not wait on a reply from this connection.
func (c *Connection) readLoop(conn *gorilla.Conn, closeCh chan int) {
	c.Dispatch(channel.EventConnect, channel.NewArgs(c.Codec, nil))
	defer func() {
		c.Dispatch(channel.EventDisconnect, channel.NewArgs(c.Codec, []any{c.closeReason()}))
	}()

	for {
		select {
		case <-closeCh:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closeWithError(err) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("channel read failed", "error", err)
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) closeReason() string {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()
	if errors.Is(c.connCloseError, net.ErrClosed) {
		return "io client disconnect"
	}
	if c.connCloseError != nil {
		return c.connCloseError.Error()
	}
	return "transport close"
}

func (c *Connection) handleFrame(data []byte) {
	var frame channel.Frame
	if err := c.Codec.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err)
		return
	}

	if frame.IsReply() {
		responseChan, ok := c.GetResponseChannel(frame.ID)
		if !ok {
			c.logger.Warn("reply for unknown request", "id", frame.ID)
			return
		}
		select {
		case responseChan <- frame:
		default:
			c.logger.Warn("duplicate reply", "id", frame.ID)
		}
		return
	}

	if frame.Event == "" {
		c.logger.Warn("dropping frame without event or id")
		return
	}
	c.Dispatch(frame.Event, channel.NewArgs(c.Codec, frame.Args))
}
