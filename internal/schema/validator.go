// Package schema decodes and validates request payloads.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ai-speaking-practice/internal/models"
)

// ErrInvalidPayload wraps every decode or validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Validator enforces payload shape. Size is bounded only by the request body limit.
type Validator struct{}

// New returns a validator.
func New() *Validator {
	return &Validator{}
}

// Chat decodes a chat payload. The new user message must be non-blank.
func (v *Validator) Chat(raw json.RawMessage) (models.ChatPayload, error) {
	var p models.ChatPayload
	if err := decode(raw, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.NewUserMessage) == "" {
		return p, invalid("newUserMessage is required")
	}
	return p, v.history(p.History)
}

// Evaluate decodes an evaluation payload.
func (v *Validator) Evaluate(raw json.RawMessage) (models.EvaluatePayload, error) {
	var p models.EvaluatePayload
	if err := decode(raw, &p); err != nil {
		return p, err
	}
	return p, v.history(p.History)
}

// Speak decodes a speech payload. The text must be non-blank.
func (v *Validator) Speak(raw json.RawMessage) (models.SpeakPayload, error) {
	var p models.SpeakPayload
	if err := decode(raw, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.TextToSpeak) == "" {
		return p, invalid("textToSpeak is required")
	}
	return p, nil
}

func (v *Validator) history(turns []models.Turn) error {
	for i, t := range turns {
		if !t.Sender.Valid() {
			return invalid("history[%d]: unknown sender %q", i, t.Sender)
		}
	}
	return nil
}

func decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return invalid("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}
