// Package capture turns recognizer events into completed utterances.
package capture

import (
	"context"
	"fmt"
)

// Result is one recognition hypothesis span.
type Result struct {
	Transcript string
	Final      bool
}

// ResultEvent carries the spans reported by one recognizer callback.
type ResultEvent struct {
	Results []Result
}

// Handler receives recognizer callbacks for one capture cycle.
type Handler interface {
	OnResult(ev ResultEvent)
	OnError(err error)
	// OnEnd is called exactly once when the recognizer stopped, including after an error.
	OnEnd()
}

// Recognizer is a continuous speech recognizer.
type Recognizer interface {
	// Start begins recognition and returns once the recognizer is running.
	Start(ctx context.Context, h Handler) error
	// Stop asks the recognizer to end. OnEnd follows asynchronously.
	Stop() error
}

// State is the capture state.
type State int

const (
	// StateIdle - not capturing.
	StateIdle State = iota
	// StateListening - a capture cycle is running.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Status is a point-in-time view of the capture session for display.
type Status struct {
	State   State
	Interim string
	// Err is the last capture error, nil after a successful start.
	Err error
}

// Message returns the user-facing error message, or "" when there is no error.
func (s Status) Message() string {
	if s.Err == nil {
		return ""
	}
	return Message(s.Err)
}
