package olsync

import (
	"fmt"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/events"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/ot"
	"github.com/olsync/olsync/pkg/tree"
)

// handlers is the engine's own subscription. It is registered first, so
// the tree is updated before any Subscribe handler sees a notification.
// Connection events are handled per channel by watchChannel.
func (e *Engine) handlers() events.HandlerSet {
	return events.HandlerSet{
		events.FileCreatedKind:               events.On(e.onFileCreated),
		events.FileRenamedKind:               events.On(e.onFileRenamed),
		events.FileRemovedKind:               events.On(e.onFileRemoved),
		events.FileMovedKind:                 events.On(e.onFileMoved),
		events.ContentChangedKind:            events.On(e.onContentChanged),
		events.SpellCheckLanguageChangedKind: events.On(e.onSpellCheckLanguageChanged),
		events.CompilerChangedKind:           events.On(e.onCompilerChanged),
		events.RootDocChangedKind:            events.On(e.onRootDocChanged),
		events.ConnectionAcceptedKind:        events.On(e.onConnectionAccepted),
		events.ClientUpdatedKind:             events.On(e.onClientUpdated),
		events.ClientDisconnectedKind:        events.On(e.onClientDisconnected),
		events.ForceDisconnectedKind:         events.On(e.onForceDisconnected),
	}
}

// resolveLocked finds id in the current tree. Callers hold e.mu.
func (e *Engine) resolveLocked(id string) (*tree.Match, error) {
	return tree.ResolveByID(e.project.Root(), id)
}

func (e *Engine) onFileCreated(n *events.FileCreated) {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent, err := e.resolveLocked(n.ParentID)
	if err != nil {
		e.logger.Warn("ignoring new entity", "id", n.Entity.EntityID(), "parent_id", n.ParentID, "error", err)
		return
	}
	if parent.Kind != models.KindFolder {
		e.logger.Warn("ignoring new entity: parent is not a folder", "id", n.Entity.EntityID(), "parent_id", n.ParentID, "parent_kind", parent.Kind)
		return
	}
	if _, err := e.resolveLocked(n.Entity.EntityID()); err == nil {
		e.logger.Debug("entity already present", "id", n.Entity.EntityID())
		return
	}
	if err := parent.Container.Insert(cloneEntity(n.Entity)); err != nil {
		e.logger.Warn("ignoring new entity", "id", n.Entity.EntityID(), "error", err)
	}
}

func (e *Engine) onFileRenamed(n *events.FileRenamed) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.resolveLocked(n.EntityID)
	if err != nil {
		e.logger.Warn("ignoring rename", "id", n.EntityID, "error", err)
		return
	}
	m.Entity.SetName(n.NewName)
}

func (e *Engine) onFileRemoved(n *events.FileRemoved) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.resolveLocked(n.EntityID)
	if err != nil {
		e.logger.Warn("ignoring removal", "id", n.EntityID, "error", err)
		return
	}
	if m.Parent == nil {
		e.logger.Warn("ignoring removal of the root folder", "id", n.EntityID)
		return
	}
	if _, ok := m.Parent.Remove(m.Kind, n.EntityID); !ok {
		e.logger.Error("BUG: resolved entity missing from its parent", "id", n.EntityID, "parent_id", m.Parent.ID)
	}
}

func (e *Engine) onFileMoved(n *events.FileMoved) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.resolveLocked(n.EntityID)
	if err != nil {
		e.logger.Warn("ignoring move", "id", n.EntityID, "error", err)
		return
	}
	target, err := e.resolveLocked(n.NewParentID)
	if err != nil {
		e.logger.Warn("ignoring move", "id", n.EntityID, "parent_id", n.NewParentID, "error", err)
		return
	}
	if target.Kind != models.KindFolder {
		e.logger.Warn("ignoring move: target is not a folder", "id", n.EntityID, "parent_id", n.NewParentID)
		return
	}
	if m.Parent == nil {
		e.logger.Warn("ignoring move of the root folder", "id", n.EntityID)
		return
	}
	if folder, ok := m.Entity.(*models.Folder); ok && tree.Contains(folder, n.NewParentID) {
		e.logger.Warn("ignoring move into own subtree", "id", n.EntityID, "parent_id", n.NewParentID)
		return
	}
	if m.Parent == target.Container {
		return
	}

	if err := target.Container.Insert(m.Entity); err != nil {
		e.logger.Warn("ignoring move", "id", n.EntityID, "error", err)
		return
	}
	m.Parent.Remove(m.Kind, n.EntityID)
}

func (e *Engine) onContentChanged(n *events.ContentChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := n.Update
	if j, ok := e.docJoins[u.Doc]; ok {
		j.buffered = append(j.buffered, u)
		return
	}

	m, err := e.resolveLocked(u.Doc)
	if err != nil {
		e.logger.Warn("ignoring update", "doc_id", u.Doc, "error", err)
		return
	}
	doc, ok := m.Entity.(*models.Document)
	if !ok {
		e.logger.Warn("ignoring update: not a document", "doc_id", u.Doc, "kind", m.Kind)
		return
	}
	if !doc.Cached() {
		// Not open. The next OpenDocument fetches the current text.
		return
	}
	if err := ot.Apply(doc, u); err != nil {
		e.logger.Warn("document dropped from cache", "doc_id", u.Doc, "version", u.Version, "error", err)
	}
}

func (e *Engine) onSpellCheckLanguageChanged(n *events.SpellCheckLanguageChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.project != nil {
		e.project.SpellCheckLanguage = n.Language
	}
}

func (e *Engine) onCompilerChanged(n *events.CompilerChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.project != nil {
		e.project.Compiler = n.Compiler
	}
}

func (e *Engine) onRootDocChanged(n *events.RootDocChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.project != nil {
		e.project.RootDocID = n.RootDocID
	}
}

func (e *Engine) onConnectionAccepted(n *events.ConnectionAccepted) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n.PublicID != "" {
		e.publicID = n.PublicID
	}
}

func (e *Engine) onClientUpdated(n *events.ClientUpdated) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n.Update.ID == "" {
		return
	}
	e.online[n.Update.ID] = n.Update
}

func (e *Engine) onClientDisconnected(n *events.ClientDisconnected) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.online, n.ClientID)
}

func (e *Engine) onForceDisconnected(n *events.ForceDisconnected) {
	e.logger.Warn("server is closing the connection", "project_id", e.projectID, "message", n.Message, "delay", n.Delay)
}

// watchChannel routes the connection events of ch to the engine. It is
// installed on every new channel, after the router's wiring. Events from a
// channel the engine has replaced are ignored.
func (e *Engine) watchChannel(ch channel.Channel) {
	kinds := []events.Kind{
		events.DisconnectedKind,
		events.ConnectFailedKind,
		events.ConnectionRejectedKind,
		events.JoinProjectResponseKind,
	}
	for _, kind := range kinds {
		for _, name := range events.EventNames(kind) {
			name := name
			ch.On(name, func(args *channel.Args) {
				n, err := events.Decode(name, args)
				if err != nil {
					e.logger.Warn("dropping notification", "event", name, "error", err)
					return
				}
				e.onChannelEvent(ch, n)
			})
		}
	}
}

func (e *Engine) onChannelEvent(ch channel.Channel, n events.Notification) {
	e.mu.Lock()
	if e.ch != ch {
		e.mu.Unlock()
		return
	}

	var rejoin *future
	switch n := n.(type) {
	case *events.JoinProjectResponse:
		if e.wait == nil {
			e.logger.Debug("unexpected join response", "project_id", e.projectID)
			break
		}
		select {
		case e.wait.response <- n:
		default:
		}
	case *events.ConnectFailed:
		if e.wait != nil {
			e.wait.fail(fmt.Errorf("%w: %s", ErrNotConnected, n.Reason))
		}
	case *events.ConnectionRejected:
		if e.wait != nil {
			e.wait.fail(fmt.Errorf("%w: %s", ErrJoinRejected, n.Message))
		}
	case *events.Disconnected:
		rejoin = e.connectionLostLocked(n.Reason)
	}
	e.mu.Unlock()

	if rejoin != nil {
		go e.rejoin(rejoin)
	}
}

// connectionLostLocked fails a join in progress, or drops the tree of a
// joined project and returns the future the rejoin resolves.
func (e *Engine) connectionLostLocked(reason string) *future {
	if e.wait != nil {
		e.wait.fail(fmt.Errorf("%w: %s", ErrNotConnected, reason))
	}
	if e.closed || e.project == nil {
		return nil
	}

	e.project = nil
	f := newFuture()
	e.join = f
	e.logger.Warn("connection lost, rejoining", "project_id", e.projectID, "reason", reason)
	return f
}

func cloneEntity(ent models.Entity) models.Entity {
	switch v := ent.(type) {
	case *models.Folder:
		return v.Clone()
	case *models.Document:
		return v.Clone()
	case *models.FileRef:
		return v.Clone()
	case *models.OutputFile:
		c := *v
		return &c
	}
	return ent
}
