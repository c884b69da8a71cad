package olsync

import (
	"context"
	"fmt"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/ot"
	"github.com/olsync/olsync/pkg/remote"
	"github.com/olsync/olsync/pkg/tree"
)

// docJoin is a joinDoc request in flight. Updates for the document that
// arrive meanwhile are buffered and replayed on the fetched text.
// A join whose document is closed meanwhile still answers its callers but
// leaves the caches empty.
type docJoin struct {
	done     chan struct{}
	buffered []ot.Update
	closed   bool
	text     string
	err      error
}

// OpenDocument returns the text of the document or output file at path.
//
// A document is fetched once and then kept current from the server's
// updates. Output files are downloaded on every call. Folders and
// uploaded files yield ErrWrongKind.
func (e *Engine) OpenDocument(ctx context.Context, p string) (string, error) {
	if _, err := e.Init(ctx); err != nil {
		return "", err
	}

	e.mu.Lock()
	m, err := e.resolvePathLocked(p)
	if err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("olsync: open %s: %w", p, err)
	}

	switch ent := m.Entity.(type) {
	case *models.Document:
		if ent.Cached() {
			text := ent.Content()
			e.mu.Unlock()
			return text, nil
		}
		j, ok := e.docJoins[ent.ID]
		if !ok {
			j = &docJoin{done: make(chan struct{})}
			e.docJoins[ent.ID] = j
			go e.joinDoc(e.ch, ent.ID, j)
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-j.done:
		}
		if j.err != nil {
			return "", fmt.Errorf("olsync: open %s: %w", p, j.err)
		}
		return j.text, nil

	case *models.OutputFile:
		fileURL, group := ent.URL, e.compileGroup
		e.mu.Unlock()
		data, err := e.remote.GetFileFromClsi(ctx, e.sess.Identity, fileURL, group)
		if err != nil {
			return "", fmt.Errorf("olsync: open %s: %w", p, err)
		}
		return string(data), nil

	default:
		kind := m.Kind
		e.mu.Unlock()
		return "", fmt.Errorf("olsync: open %s: %w: %s", p, ErrWrongKind, kind)
	}
}

// joinDoc fetches a document's text. It runs on the engine's context so
// one caller giving up does not fail the others.
func (e *Engine) joinDoc(ch channel.Channel, id string, j *docJoin) {
	var (
		lines   []string
		version int
		err     error
	)
	if ch == nil {
		err = ErrNotConnected
	} else {
		var args *channel.Args
		args, err = ch.Emit(e.ctx, eventJoinDoc, id, map[string]any{"encodeRanges": true})
		if err == nil {
			err = args.DecodeAll(&lines, &version)
		}
	}

	e.mu.Lock()
	if e.docJoins[id] == j {
		delete(e.docJoins, id)
	}
	if err == nil {
		if j.closed {
			j.text = ot.DecodeLines(lines)
			e.logger.Debug("document closed while opening", "doc_id", id)
		} else {
			j.text, err = e.loadDocLocked(id, lines, version, j.buffered)
		}
	}
	e.mu.Unlock()

	j.err = err
	close(j.done)
}

func (e *Engine) loadDocLocked(id string, lines []string, version int, buffered []ot.Update) (string, error) {
	m, err := e.resolveLocked(id)
	if err != nil {
		return "", err
	}
	doc, ok := m.Entity.(*models.Document)
	if !ok {
		return "", fmt.Errorf("%w: %s is a %s", ErrWrongKind, id, m.Kind)
	}

	doc.SetContent(ot.DecodeLines(lines), version)
	for _, u := range buffered {
		if u.Version < version {
			continue
		}
		if err := ot.Apply(doc, u); err != nil {
			e.logger.Warn("document dropped from cache", "doc_id", id, "version", u.Version, "error", err)
			return "", err
		}
	}
	e.logger.Debug("document opened", "doc_id", id, "version", doc.Version, "replayed", len(buffered))
	return doc.Content(), nil
}

// CloseDocument stops following the document at path and drops its text.
func (e *Engine) CloseDocument(ctx context.Context, p string) error {
	e.mu.Lock()
	m, err := e.resolvePathLocked(p)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("olsync: close %s: %w", p, err)
	}
	doc, ok := m.Entity.(*models.Document)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("olsync: close %s: %w: %s", p, ErrWrongKind, m.Kind)
	}
	doc.Invalidate()
	if j, ok := e.docJoins[doc.ID]; ok {
		j.closed = true
		delete(e.docJoins, doc.ID)
	}
	ch := e.ch
	e.mu.Unlock()

	if ch == nil {
		return nil
	}
	if _, err := ch.Emit(ctx, eventLeaveDoc, doc.ID); err != nil {
		return fmt.Errorf("olsync: close %s: %w", p, err)
	}
	return nil
}

// Compile asks the server to compile the project and replaces the output
// files of the root folder with the result.
func (e *Engine) Compile(ctx context.Context) (*remote.CompileResult, error) {
	p, err := e.Init(ctx)
	if err != nil {
		return nil, err
	}

	res, err := e.remote.Compile(ctx, e.sess.Identity, e.projectID, p.RootDocID)
	if err != nil {
		return nil, fmt.Errorf("olsync: compile: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	root := e.project.Root()
	if root == nil {
		return nil, fmt.Errorf("olsync: compile: %w", ErrNoRoot)
	}
	outputs := make([]*models.OutputFile, 0, len(res.OutputFiles))
	for _, o := range res.OutputFiles {
		c := *o
		outputs = append(outputs, &c)
	}
	root.Outputs = outputs
	e.compileGroup = res.CompileGroup
	e.logger.Info("project compiled", "project_id", e.projectID, "status", res.Status, "outputs", len(outputs))
	return res, nil
}

func (e *Engine) resolvePathLocked(p string) (*tree.PathMatch, error) {
	m, err := tree.ResolveByPath(e.project.Root(), tree.SplitPath(p))
	if err != nil {
		return nil, err
	}
	if !m.Found() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return m, nil
}
