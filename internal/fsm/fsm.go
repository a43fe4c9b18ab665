// Package fsm defines the live session lifecycle.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateDraining  State = "draining"
	StateError     State = "error"
)

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventDrained Event = "drained"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Transition returns the state reached by applying event to current.
// EventFail is accepted from every state.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		if event == EventStart {
			return StateRecording, nil
		}
	case StateRecording:
		if event == EventStop {
			return StateDraining, nil
		}
	case StateDraining:
		if event == EventDrained {
			return StateIdle, nil
		}
	case StateError:
		if event == EventReset {
			return StateIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

// Accepts reports whether the state can take new audio.
func (s State) Accepts() bool {
	return s == StateRecording
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
