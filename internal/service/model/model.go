// Package model defines the boundary to the hosted language model.
package model

import (
	"context"
	"errors"
	"iter"

	"ai-speaking-practice/internal/models"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable output.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrNoAudio is returned when speech synthesis produced no audio.
	ErrNoAudio = errors.New("no audio data received from speech model")
)

// Model produces examiner replies, evaluations, and speech.
type Model interface {
	// StreamReply yields reply fragments for newUserMessage given the prior history.
	// Iteration stops at the first error.
	StreamReply(ctx context.Context, history []models.Turn, newUserMessage string) iter.Seq2[string, error]

	// Evaluate scores the whole conversation.
	Evaluate(ctx context.Context, history []models.Turn) (models.Evaluation, error)

	// Speak returns PCM16 little-endian mono audio at 24 kHz.
	Speak(ctx context.Context, text string) ([]byte, error)
}
