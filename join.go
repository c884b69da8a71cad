package olsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/events"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/reconnect"
)

// joinWait collects the channel events a join attempt waits for.
type joinWait struct {
	response chan *events.JoinProjectResponse
	failed   chan error
}

func newJoinWait() *joinWait {
	return &joinWait{
		response: make(chan *events.JoinProjectResponse, 1),
		failed:   make(chan error, 1),
	}
}

func (w *joinWait) fail(err error) {
	select {
	case w.failed <- err:
	default:
	}
}

// attemptJoin dials a fresh channel, joins the project with scheme and
// publishes the tree. It returns a copy of the published project.
func (e *Engine) attemptJoin(ctx context.Context, scheme reconnect.Scheme) (*models.Project, error) {
	ch, err := e.cfg.newChannel(scheme, e.projectID)
	if err != nil {
		return nil, fmt.Errorf("new channel: %w", err)
	}
	w := newJoinWait()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, reconnect.Permanent(ErrClosed)
	}
	old := e.ch
	e.ch = ch
	e.wait = w
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.wait == w {
			e.wait = nil
		}
		e.mu.Unlock()
	}()

	e.router.Resume(ch)
	e.watchChannel(ch)
	if old != nil {
		if err := old.Disconnect(ctx); err != nil {
			e.logger.Debug("closing previous channel", "error", err)
		}
	}

	e.logger.Debug("joining project", "project_id", e.projectID, "scheme", scheme)
	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}

	resp, err := e.awaitJoin(ctx, ch, scheme, w)
	if err == nil {
		err = e.attachSettings(ctx, resp.Project)
	}
	if err != nil {
		_ = ch.Disconnect(ctx)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, reconnect.Permanent(ErrClosed)
	}
	e.project = resp.Project
	if resp.PublicID != "" {
		e.publicID = resp.PublicID
	}
	e.online = make(map[string]models.ClientUpdate)
	e.logger.Info("project joined",
		"project_id", e.projectID,
		"name", resp.Project.Name,
		"permissions", resp.PermissionsLevel,
		"protocol_version", resp.ProtocolVersion,
	)
	return e.project.Clone(), nil
}

// awaitJoin waits for the join reply. On SchemeV1 it is the answer to a
// joinProject request; on SchemeV2 the server pushes it unasked.
func (e *Engine) awaitJoin(ctx context.Context, ch channel.Channel, scheme reconnect.Scheme, w *joinWait) (*events.JoinProjectResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.emitTimeout)
	defer cancel()

	type reply struct {
		resp *events.JoinProjectResponse
		err  error
	}
	replies := make(chan reply, 1)
	if scheme == reconnect.SchemeV1 {
		go func() {
			resp, err := e.emitJoinProject(ctx, ch)
			replies <- reply{resp, err}
		}()
	}

	var resp *events.JoinProjectResponse
	select {
	case r := <-replies:
		if r.err != nil {
			return nil, r.err
		}
		resp = r.resp
	case resp = <-w.response:
	case err := <-w.failed:
		return nil, err
	case <-ctx.Done():
		if err := e.ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: waiting for project %s", ErrTimeout, e.projectID)
	}

	if resp.Project.Root() == nil {
		return nil, fmt.Errorf("%w: join reply has no root folder", ErrMalformedPayload)
	}
	return resp, nil
}

func (e *Engine) emitJoinProject(ctx context.Context, ch channel.Channel) (*events.JoinProjectResponse, error) {
	args, err := ch.Emit(ctx, eventJoinProject, map[string]any{"project_id": e.projectID})
	if err != nil {
		var rpcErr *channel.RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %v", ErrJoinRejected, rpcErr)
		}
		return nil, err
	}

	resp := &events.JoinProjectResponse{}
	if err := args.DecodeAll(&resp.Project, &resp.PermissionsLevel); err != nil {
		return nil, err
	}
	if args.Len() > 2 {
		if err := args.Decode(2, &resp.ProtocolVersion); err != nil {
			e.logger.Debug("ignoring protocol version", "project_id", e.projectID, "error", err)
		}
	}
	return resp, nil
}

func (e *Engine) attachSettings(ctx context.Context, p *models.Project) error {
	settings, err := e.remote.GetProjectSettings(ctx, e.sess.Identity, e.projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reconnect.Permanent(fmt.Errorf("project settings: %w", err))
		}
		return fmt.Errorf("project settings: %w", err)
	}
	p.Settings = settings
	return nil
}
