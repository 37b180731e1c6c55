package models

import "encoding/json"

// SessionHeader carries the client's practice session ID.
const SessionHeader = "X-Practice-Session"

// RequestType discriminates the operation carried by a Request.
type RequestType string

const (
	RequestChat     RequestType = "chat"
	RequestEvaluate RequestType = "evaluate"
	RequestSpeak    RequestType = "speak"
)

// Request is the envelope POSTed to the practice endpoint.
type Request struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatPayload asks for the next examiner reply.
type ChatPayload struct {
	History        []Turn `json:"history"`
	NewUserMessage string `json:"newUserMessage"`
}

// EvaluatePayload asks for the final evaluation of a conversation.
type EvaluatePayload struct {
	History []Turn `json:"history"`
}

// SpeakPayload asks for synthesized speech.
type SpeakPayload struct {
	TextToSpeak string `json:"textToSpeak"`
}

// ChatFragment is the JSON body of one event-stream frame.
type ChatFragment struct {
	Text string `json:"text"`
}

// SpeakResponse carries base64 PCM16 mono audio at 24 kHz.
type SpeakResponse struct {
	Audio string `json:"audio"`
}

// ErrorResponse is returned on every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
