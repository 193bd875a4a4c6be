package toolcall

import "fmt"

// State identifies where a call record sits in its lifecycle.
type State string

const (
	// StateValidating is the initial state while arguments are checked.
	StateValidating State = "validating"
	// StateAwaitingApproval means the call is waiting on a user decision.
	StateAwaitingApproval State = "awaiting_approval"
	// StateScheduled means the call is cleared to run and waiting for admission.
	StateScheduled State = "scheduled"
	// StateExecuting means the tool implementation is running.
	StateExecuting State = "executing"
	// StateSuccess is terminal: the executor resolved normally.
	StateSuccess State = "success"
	// StateError is terminal: validation or the executor failed.
	StateError State = "error"
	// StateCancelled is terminal: denied, aborted, or cancelled mid-flight.
	StateCancelled State = "cancelled"
)

// allowedTransitions is the directed lifecycle graph. There are no back-edges.
var allowedTransitions = map[State]map[State]struct{}{
	StateValidating: {
		StateAwaitingApproval: {},
		StateScheduled:        {},
		StateError:            {},
	},
	StateAwaitingApproval: {
		StateScheduled: {},
		StateCancelled: {},
	},
	StateScheduled: {
		StateExecuting: {},
		StateCancelled: {},
	},
	StateExecuting: {
		StateSuccess:   {},
		StateError:     {},
		StateCancelled: {},
	},
	StateSuccess:   {},
	StateError:     {},
	StateCancelled: {},
}

// IsTerminal reports whether s is one of the three final states.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// IsQueued reports whether s is a pre-execution state.
func (s State) IsQueued() bool {
	switch s {
	case StateValidating, StateAwaitingApproval, StateScheduled:
		return true
	default:
		return false
	}
}

func validateTransition(from, to State) error {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state %q", from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	return nil
}
