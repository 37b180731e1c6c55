// Package playback decodes synthesized speech and plays it on a lazily
// created audio output.
package playback

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ai-speaking-practice/internal/observability/logging"
)

// SampleRate is the rate of synthesized speech.
const SampleRate = 24000

// Output is an audio output context.
type Output interface {
	Suspended() bool
	Resume() error
	// Play starts playback and returns without waiting for it to finish.
	Play(samples []float32) error
	Close() error
}

// OutputFactory creates the output context at the given sample rate.
type OutputFactory func(sampleRate int) (Output, error)

// Decode converts base64 PCM16 little-endian mono audio to samples in [-1, 1).
// A trailing odd byte is ignored.
func Decode(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return samples, nil
}

// Session plays speech payloads. Plays are not queued: a new payload starts
// immediately and overlaps any audio still playing.
type Session struct {
	factory OutputFactory
	logger  zerolog.Logger

	mu     sync.Mutex
	output Output
}

// NewSession creates a playback session. The output is created on first Play.
func NewSession(factory OutputFactory) *Session {
	return &Session{
		factory: factory,
		logger:  logging.WithComponent("playback"),
	}
}

// Play decodes payload and starts playing it. An empty payload is a no-op.
func (s *Session) Play(ctx context.Context, payload string) error {
	if payload == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := s.ensureOutput()
	if err != nil {
		return err
	}
	if out.Suspended() {
		if err := out.Resume(); err != nil {
			return fmt.Errorf("resume audio output: %w", err)
		}
	}

	samples, err := Decode(payload)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	s.logger.Debug().Int("samples", len(samples)).Msg("Playing speech")
	return out.Play(samples)
}

func (s *Session) ensureOutput() (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output != nil {
		return s.output, nil
	}
	if s.factory == nil {
		return nil, fmt.Errorf("no audio output available")
	}
	out, err := s.factory(SampleRate)
	if err != nil {
		return nil, fmt.Errorf("create audio output: %w", err)
	}
	s.output = out
	return out, nil
}

// Close releases the output context.
func (s *Session) Close() error {
	s.mu.Lock()
	out := s.output
	s.output = nil
	s.mu.Unlock()
	if out == nil {
		return nil
	}
	return out.Close()
}
