package models

const (
	EventTurnCompleted    = "practice.turn.completed"
	EventSessionEvaluated = "practice.session.evaluated"
)

// TurnCompleted is published after the examiner finished streaming a reply.
type TurnCompleted struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	Principal   string `json:"principal"`
	Timestamp   int64  `json:"timestamp"`
	UserText    string `json:"userText"`
	ReplyText   string `json:"replyText"`
	HistorySize int    `json:"historySize"`
	Fragments   int    `json:"fragments"`
	DurationMs  int64  `json:"durationMs"`
}

// SessionEvaluated is published after a session was scored.
type SessionEvaluated struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Principal string  `json:"principal"`
	Timestamp int64   `json:"timestamp"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	UserTurns int     `json:"userTurns"`
}
