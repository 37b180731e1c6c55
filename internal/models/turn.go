// Package models defines the conversation data structures shared by the
// practice client, the HTTP API, and the event pipeline.
package models

import (
	"fmt"
	"strings"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// GreetingTurnID is the reserved ordinal of the local-only greeting turn.
// Turns at or below it are never replayed to the model.
const GreetingTurnID int64 = 1

// Turn is one utterance in the conversation.
type Turn struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Streaming bool   `json:"isStreaming,omitempty"`
}

// Evaluation is the final scored assessment of a practice session.
type Evaluation struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// ClampScore keeps the score inside [0,100].
func (e Evaluation) ClampScore() Evaluation {
	switch {
	case e.Score < 0:
		e.Score = 0
	case e.Score > 100:
		e.Score = 100
	}
	return e
}

// SessionState is the lifecycle state of a practice session.
type SessionState int

const (
	// SessionNotStarted - no capture has been started yet.
	SessionNotStarted SessionState = iota
	// SessionActive - practice conversation in progress.
	SessionActive
	// SessionClosed - evaluation requested; the session accepts no more turns.
	SessionClosed
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "NOT_STARTED"
	case SessionActive:
		return "ACTIVE"
	case SessionClosed:
		return "CLOSED_WITH_EVALUATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// PruneGreeting drops the local-only greeting turn from a history.
func PruneGreeting(history []Turn) []Turn {
	out := make([]Turn, 0, len(history))
	for _, t := range history {
		if t.ID <= GreetingTurnID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FormatConversation renders a history as "User:"/"Examiner:" lines.
func FormatConversation(history []Turn) string {
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		if t.Sender == SenderUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Examiner: ")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
