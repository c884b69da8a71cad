package olsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/events"
	"github.com/olsync/olsync/pkg/logger"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/reconnect"
	"github.com/olsync/olsync/pkg/remote"
)

const (
	eventJoinProject = "joinProject"
	eventJoinDoc     = "joinDoc"
	eventLeaveDoc    = "leaveDoc"
)

// Engine mirrors one project. It is safe for concurrent use.
type Engine struct {
	sess      Session
	projectID string
	cfg       *config
	remote    remote.API
	router    *events.Router
	ctrl      *reconnect.Controller
	logger    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// joinMu serializes join loops so a rejoin never overlaps the join it
	// follows.
	joinMu sync.Mutex

	mu           sync.Mutex
	project      *models.Project
	ch           channel.Channel
	join         *future
	wait         *joinWait
	docJoins     map[string]*docJoin
	publicID     string
	online       map[string]models.ClientUpdate
	compileGroup string
	closed       bool
}

// New prepares an engine for projectID. Nothing is dialed until Init.
func New(sess Session, projectID string, opts ...Option) (*Engine, error) {
	if projectID == "" {
		return nil, errors.New("olsync: project id is empty")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Nop()
	}
	if cfg.remote == nil {
		rc, err := remote.New(sess.BaseURL, remote.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("olsync: %w", err)
		}
		cfg.remote = rc
	}
	if cfg.newChannel == nil {
		cfg.newChannel = websocketFactory(sess, cfg)
	}

	ctrl := reconnect.New(cfg.logger)
	ctrl.MaxRetries = cfg.maxRetries
	ctrl.Retryer = cfg.retryer

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		sess:      sess,
		projectID: projectID,
		cfg:       cfg,
		remote:    cfg.remote,
		router:    events.NewRouter(cfg.logger),
		ctrl:      ctrl,
		logger:    cfg.logger,
		ctx:       ctx,
		cancel:    cancel,
		docJoins:  make(map[string]*docJoin),
		online:    make(map[string]models.ClientUpdate),
	}
	e.router.Register(e.handlers())
	return e, nil
}

// ProjectID returns the id of the mirrored project.
func (e *Engine) ProjectID() string {
	return e.projectID
}

// Init returns the joined project, joining first if needed. Concurrent
// callers share one join. The returned project is a copy.
func (e *Engine) Init(ctx context.Context) (*models.Project, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if e.project != nil {
		p := e.project.Clone()
		e.mu.Unlock()
		return p, nil
	}
	f := e.join
	if f == nil {
		f = newFuture()
		e.join = f
		go e.runJoin(f)
	}
	e.mu.Unlock()

	return f.wait(ctx)
}

func (e *Engine) runJoin(f *future) {
	e.joinMu.Lock()
	defer e.joinMu.Unlock()
	e.joinLocked(f)
}

// rejoin follows the loss of a joined channel.
func (e *Engine) rejoin(f *future) {
	e.joinMu.Lock()
	defer e.joinMu.Unlock()

	if err := e.ctrl.Disconnected(); err != nil {
		e.logger.Error("giving up on project", "project_id", e.projectID, "error", err)
		e.finishJoin(f, nil, fmt.Errorf("olsync: rejoin %s: %w", e.projectID, err))
		return
	}
	e.joinLocked(f)
}

func (e *Engine) joinLocked(f *future) {
	var joined *models.Project
	err := e.ctrl.Run(e.ctx, func(ctx context.Context, scheme reconnect.Scheme) error {
		p, err := e.attemptJoin(ctx, scheme)
		if err == nil {
			joined = p
		}
		return err
	})
	if err != nil {
		if e.ctx.Err() != nil {
			err = ErrClosed
		}
		err = fmt.Errorf("olsync: join %s: %w", e.projectID, err)
	}
	e.finishJoin(f, joined, err)
}

func (e *Engine) finishJoin(f *future, p *models.Project, err error) {
	e.mu.Lock()
	if e.join == f {
		e.join = nil
	}
	e.mu.Unlock()
	f.resolve(p, err)
}

// Snapshot returns a copy of the current tree, or nil before the first
// join.
func (e *Engine) Snapshot() *models.Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.project.Clone()
}

// Subscribe registers handlers for server notifications. They run on the
// channel's read goroutine, after the engine has applied the notification,
// and stay registered across reconnects. A handler must not block on the
// engine's channel.
func (e *Engine) Subscribe(set events.HandlerSet) {
	e.router.Register(set)
}

// PublicID is the id the server gave this session on its last connect.
func (e *Engine) PublicID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publicID
}

// OnlineUsers lists the collaborators seen since the last join, by id.
func (e *Engine) OnlineUsers() []models.ClientUpdate {
	e.mu.Lock()
	out := make([]models.ClientUpdate, 0, len(e.online))
	for _, u := range e.online {
		out = append(out, u)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State is the reconnection state of the project's connection.
func (e *Engine) State() reconnect.State {
	return e.ctrl.State()
}

// Retries is the number of consecutive failed joins.
func (e *Engine) Retries() int {
	return e.ctrl.Retries()
}

// Close leaves the project and stops any rejoin. The engine cannot be
// used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ch := e.ch
	e.ch = nil
	e.project = nil
	e.mu.Unlock()

	e.cancel()
	e.router.Detach()

	var err error
	if ch != nil {
		err = ch.Disconnect(ctx)
	}

	e.joinMu.Lock()
	e.ctrl.Reset()
	e.joinMu.Unlock()

	e.logger.Debug("engine closed", "project_id", e.projectID)
	return err
}

// future is a join result shared by every Init waiting on it.
type future struct {
	done    chan struct{}
	project *models.Project
	err     error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(p *models.Project, err error) {
	f.project, f.err = p, err
	close(f.done)
}

func (f *future) wait(ctx context.Context) (*models.Project, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.project.Clone(), nil
}
