package reconnect

import "fmt"

type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateJoining:
		return "Joining"
	case StateJoined:
		return "Joined"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}

func (s State) validateTransitionTo(newState State) error {
	switch s {
	case StateIdle:
		if newState == StateJoining {
			return nil
		}
	case StateJoining:
		switch newState {
		case StateJoined, StateFailed:
			return nil
		}
	case StateJoined:
		if newState == StateDisconnected {
			return nil
		}
	case StateDisconnected:
		switch newState {
		case StateJoining, StateFailed:
			return nil
		}
	case StateFailed:
		// Only an explicit new join leaves Failed.
		if newState == StateJoining {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

// Scheme selects how a join is carried out.
type Scheme int

const (
	// SchemeV1 connects, then asks for the project with a joinProject request.
	SchemeV1 Scheme = iota + 1
	// SchemeV2 names the project in the connect query and waits for the
	// server's joinProjectResponse event.
	SchemeV2
)

func (s Scheme) String() string {
	switch s {
	case SchemeV1:
		return "v1"
	case SchemeV2:
		return "v2"
	default:
		return "unknown"
	}
}
