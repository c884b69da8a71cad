// Package fakert provides a fake realtime server for tests.
//
// It speaks the channel frame protocol over a websocket served by gws,
// answers joinProject/joinDoc/leaveDoc from an in-memory project, lets tests
// stub replies per event, push server events and drop connections.
//
// Connections carrying a projectId query parameter are treated as the
// second join scheme: the server announces the project with a
// joinProjectResponse event instead of waiting for a joinProject request.
package fakert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/lxzan/gws"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/channel"
)

// Stub answers requests for Event. Stubs are matched in the order added,
// before the built-in handlers.
type Stub struct {
	Event string
	// Matcher optionally narrows the stub to some arguments.
	Matcher func(args []any) bool
	// Reply computes the reply. When nil, Result or Error is sent.
	Reply  func(c *Client, args []any) ([]any, *channel.RPCError)
	Result []any
	Error  *channel.RPCError
	// Delay holds the reply back.
	Delay time.Duration
	// Silent swallows the request without replying.
	Silent bool
	// Times limits how many requests the stub answers. Zero is unlimited.
	Times int

	used int
}

// Doc is the server-side state of a document.
type Doc struct {
	Lines   []string
	Version int
}

// Client is one connected socket.
type Client struct {
	Conn     *gws.Conn
	PublicID string
	Query    url.Values
	Header   http.Header

	server *Server
}

// Send writes a server event to this client only.
func (c *Client) Send(event string, args ...any) error {
	return c.server.write(c.Conn, channel.Frame{Event: event, Args: nonNil(args)})
}

type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server
	codec    codec.Codec

	mu       sync.Mutex
	stubs    []*Stub
	clients  map[*gws.Conn]*Client
	project  any
	docs     map[string]*Doc
	requests map[string]int

	// RejectV1 answers joinProject on connections without a projectId
	// query with connectionRejected.
	RejectV1 bool
	// PermissionLevel is sent with the project.
	PermissionLevel string
}

type handler struct {
	server *Server
}

const (
	sessionQuery  = "query"
	sessionHeader = "header"
)

// NewServer creates a fake server. Use "127.0.0.1:0" to bind a free port.
func NewServer(addr string, c codec.Codec) *Server {
	s := &Server{
		addr:            addr,
		codec:           c,
		clients:         make(map[*gws.Conn]*Client),
		docs:            make(map[string]*Doc),
		requests:        make(map[string]int),
		PermissionLevel: "owner",
	}

	s.server = gws.NewServer(&handler{server: s}, &gws.ServerOption{
		SubProtocols: []string{"json", "cbor"},
		Authorize: func(r *http.Request, session gws.SessionStorage) bool {
			session.Store(sessionQuery, r.URL.Query())
			session.Store(sessionHeader, r.Header.Clone())
			return strings.HasSuffix(r.URL.Path, "/socket.io")
		},
	})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("fakert: server error: %v", err)
		}
	}

	return s
}

func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("fakert: listener stopped: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	s.DropConnections()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// URL is the http origin clients dial.
func (s *Server) URL() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.addr
}

// SetProject sets the snapshot returned on join.
func (s *Server) SetProject(project any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project
}

func (s *Server) SetDoc(id string, doc Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = &doc
}

func (s *Server) AddStub(stub *Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, stub)
}

// Requests counts the requests received for event.
func (s *Server) Requests(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[event]
}

func (s *Server) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// WaitClients blocks until n clients are connected or timeout passes.
func (s *Server) WaitClients(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.Clients()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Push sends a server event to every connected client.
func (s *Server) Push(event string, args ...any) {
	for _, c := range s.Clients() {
		if err := c.Send(event, args...); err != nil {
			log.Printf("fakert: push %s: %v", event, err)
		}
	}
}

// DropConnections closes every socket without a close frame.
func (s *Server) DropConnections() {
	for _, c := range s.Clients() {
		c.Conn.NetConn().Close()
	}
}

func (s *Server) write(conn *gws.Conn, f channel.Frame) error {
	data, err := s.codec.Marshal(f)
	if err != nil {
		return err
	}
	op := gws.OpcodeBinary
	if s.codec.Name() == "json" {
		op = gws.OpcodeText
	}
	return conn.WriteMessage(op, data)
}

func (h *handler) OnOpen(socket *gws.Conn) {
	s := h.server

	c := &Client{
		Conn:     socket,
		PublicID: uuid.Must(uuid.NewV4()).String(),
		server:   s,
	}
	if v, ok := socket.Session().Load(sessionQuery); ok {
		c.Query, _ = v.(url.Values)
	}
	if v, ok := socket.Session().Load(sessionHeader); ok {
		c.Header, _ = v.(http.Header)
	}

	s.mu.Lock()
	s.clients[socket] = c
	project := s.project
	level := s.PermissionLevel
	s.mu.Unlock()

	if err := c.Send("connectionAccepted", nil, c.PublicID); err != nil {
		log.Printf("fakert: connectionAccepted: %v", err)
	}

	if c.Query.Get("projectId") != "" {
		s.mu.Lock()
		s.requests["joinProjectResponse"]++
		s.mu.Unlock()
		err := c.Send("joinProjectResponse", map[string]any{
			"publicId":         c.PublicID,
			"project":          project,
			"permissionsLevel": level,
			"protocolVersion":  2,
		})
		if err != nil {
			log.Printf("fakert: joinProjectResponse: %v", err)
		}
	}
}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.clients, socket)
	h.server.mu.Unlock()
}

func (h *handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakert: pong: %v", err)
	}
}

func (h *handler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	s := h.server

	var req channel.Frame
	if err := s.codec.Unmarshal(message.Bytes(), &req); err != nil || req.ID == "" {
		log.Printf("fakert: undecodable request: %v", err)
		return
	}

	s.mu.Lock()
	s.requests[req.Event]++
	client := s.clients[socket]
	stub := s.matchStub(req)
	s.mu.Unlock()

	if client == nil {
		return
	}

	if stub != nil {
		h.replyStub(client, req, stub)
		return
	}

	args, rpcErr := h.builtin(client, req)
	h.reply(client, req.ID, args, rpcErr)
}

func (s *Server) matchStub(req channel.Frame) *Stub {
	for _, stub := range s.stubs {
		if stub.Event != req.Event {
			continue
		}
		if stub.Times > 0 && stub.used >= stub.Times {
			continue
		}
		if stub.Matcher != nil && !stub.Matcher(req.Args) {
			continue
		}
		stub.used++
		return stub
	}
	return nil
}

func (h *handler) replyStub(c *Client, req channel.Frame, stub *Stub) {
	if stub.Silent {
		return
	}

	args, rpcErr := stub.Result, stub.Error
	if stub.Reply != nil {
		args, rpcErr = stub.Reply(c, req.Args)
	}

	if stub.Delay > 0 {
		go func() {
			time.Sleep(stub.Delay)
			h.reply(c, req.ID, args, rpcErr)
		}()
		return
	}
	h.reply(c, req.ID, args, rpcErr)
}

func (h *handler) reply(c *Client, id string, args []any, rpcErr *channel.RPCError) {
	f := channel.Frame{ID: id, Args: nonNil(args), Error: rpcErr}
	if err := h.server.write(c.Conn, f); err != nil {
		log.Printf("fakert: reply %s: %v", id, err)
	}
}

func (h *handler) builtin(c *Client, req channel.Frame) ([]any, *channel.RPCError) {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Event {
	case "joinProject":
		if s.RejectV1 && c.Query.Get("projectId") == "" {
			go func() {
				if err := c.Send("connectionRejected", map[string]any{"message": "retry with projectId"}); err != nil {
					log.Printf("fakert: connectionRejected: %v", err)
				}
			}()
			return nil, &channel.RPCError{Code: 403, Message: "join rejected"}
		}
		if s.project == nil {
			return nil, &channel.RPCError{Code: 404, Message: "project not found"}
		}
		return []any{s.project, s.PermissionLevel, 2}, nil

	case "joinDoc":
		id := ""
		if len(req.Args) > 0 {
			id = fmt.Sprint(req.Args[0])
		}
		doc, ok := s.docs[id]
		if !ok {
			return nil, &channel.RPCError{Code: 404, Message: "document not found"}
		}
		lines := make([]any, len(doc.Lines))
		for i, l := range doc.Lines {
			lines[i] = l
		}
		return []any{lines, doc.Version, []any{}, map[string]any{}}, nil

	case "leaveDoc":
		return nil, nil
	}

	return nil, &channel.RPCError{Code: 400, Message: "unknown event " + req.Event}
}

func nonNil(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
