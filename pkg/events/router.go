package events

import (
	"sync"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/logger"
)

// Handler receives a decoded notification.
type Handler func(Notification)

// On adapts a handler of one concrete notification type.
func On[T Notification](fn func(T)) Handler {
	return func(n Notification) {
		if t, ok := n.(T); ok {
			fn(t)
		}
	}
}

// HandlerSet maps the kinds a subscriber cares about to its callbacks.
type HandlerSet map[Kind]Handler

// Router wires handler sets to the event names of a channel.
//
// Each event name is wired once. Its dispatcher decodes the arguments once
// and then runs the handler of every set registered for the kind, in
// registration order.
type Router struct {
	mu     sync.Mutex
	ch     channel.Channel
	sets   []HandlerSet
	wired  map[string]bool
	logger logger.Logger
}

func NewRouter(l logger.Logger) *Router {
	if l == nil {
		l = logger.Nop()
	}
	return &Router{
		wired:  make(map[string]bool),
		logger: l,
	}
}

// Register appends set and wires its kinds on the current channel, if any.
func (r *Router) Register(set HandlerSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sets = append(r.sets, set)
	if r.ch != nil {
		r.wireLocked(set)
	}
}

// ResumeAll drops every wiring, on the previous channel as well as on ch,
// and registers sets against ch in order, replacing the registered sets.
func (r *Router) ResumeAll(ch channel.Channel, sets []HandlerSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sets = append([]HandlerSet(nil), sets...)
	r.resumeLocked(ch)
}

// Resume re-registers the current sets against ch. It is called after a
// reconnect, since the channel is then a new object. Sets registered
// concurrently are either resumed here or wired by Register on ch.
func (r *Router) Resume(ch channel.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resumeLocked(ch)
}

func (r *Router) resumeLocked(ch channel.Channel) {
	if r.ch != nil && r.ch != ch {
		r.ch.RemoveAllHandlers()
	}
	ch.RemoveAllHandlers()

	r.ch = ch
	r.wired = make(map[string]bool)
	for _, set := range r.sets {
		r.wireLocked(set)
	}

	r.logger.Debug("event handlers resumed", "sets", len(r.sets), "events", len(r.wired))
}

// Detach clears the wiring of the current channel and forgets it.
// Registered sets are kept for the next Resume.
func (r *Router) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		r.ch.RemoveAllHandlers()
	}
	r.ch = nil
	r.wired = make(map[string]bool)
}

func (r *Router) Sets() []HandlerSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HandlerSet(nil), r.sets...)
}

func (r *Router) wireLocked(set HandlerSet) {
	for _, kind := range Kinds() {
		if set[kind] == nil {
			continue
		}
		for _, name := range EventNames(kind) {
			if r.wired[name] {
				continue
			}
			r.wired[name] = true
			r.ch.On(name, r.dispatcher(name))
		}
	}
}

func (r *Router) dispatcher(event string) channel.Handler {
	return func(args *channel.Args) {
		n, err := Decode(event, args)
		if err != nil {
			r.logger.Warn("dropping notification", "event", event, "error", err)
			return
		}
		r.Dispatch(n)
	}
}

// Dispatch runs every registered handler for n's kind in registration order.
func (r *Router) Dispatch(n Notification) {
	r.mu.Lock()
	sets := r.sets
	r.mu.Unlock()

	kind := n.Kind()
	for _, set := range sets {
		if h := set[kind]; h != nil {
			h(n)
		}
	}
}
