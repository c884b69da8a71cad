package channel

import (
	"fmt"
	"sync"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/constants"
)

// Toolkit holds the state every Channel implementation needs:
// pending replies keyed by correlation id and the handlers of each event.
type Toolkit struct {
	BaseURL string
	Codec   codec.Codec

	responseChannels     map[string]chan Frame
	responseChannelsLock sync.RWMutex

	handlers     map[string][]Handler
	handlersLock sync.RWMutex
}

func (t *Toolkit) CreateResponseChannel(id string) (chan Frame, error) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()

	if t.responseChannels == nil {
		t.responseChannels = make(map[string]chan Frame)
	}
	if _, ok := t.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, id)
	}

	// Buffered so the read loop never blocks on a caller that gave up.
	ch := make(chan Frame, 1)
	t.responseChannels[id] = ch

	return ch, nil
}

func (t *Toolkit) GetResponseChannel(id string) (chan Frame, bool) {
	t.responseChannelsLock.RLock()
	defer t.responseChannelsLock.RUnlock()
	ch, ok := t.responseChannels[id]
	return ch, ok
}

func (t *Toolkit) RemoveResponseChannel(id string) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()
	delete(t.responseChannels, id)
}

func (t *Toolkit) On(event string, h Handler) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.handlers == nil {
		t.handlers = make(map[string][]Handler)
	}
	t.handlers[event] = append(t.handlers[event], h)
}

func (t *Toolkit) RemoveAllHandlers() {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.handlers = nil
}

// HasHandlers reports whether anything listens to event.
func (t *Toolkit) HasHandlers(event string) bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers[event]) > 0
}

// Dispatch runs the handlers of event in registration order.
// The handler list is copied first so handlers may register or clear
// handlers without deadlocking.
func (t *Toolkit) Dispatch(event string, args *Args) {
	t.handlersLock.RLock()
	hs := append([]Handler(nil), t.handlers[event]...)
	t.handlersLock.RUnlock()

	for _, h := range hs {
		h(args)
	}
}
