package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const drainPoll = 50 * time.Millisecond

// Speaker plays float32 mono samples. Overlapping plays are mixed.
type Speaker struct {
	ctx *oto.Context

	mu        sync.Mutex
	suspended bool
	players   map[*oto.Player]struct{}
	closed    bool
}

// NewSpeaker opens the audio output at sampleRate. Only one Speaker may exist
// per process.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("init audio output: %w", err)
	}
	<-ready
	return &Speaker{ctx: ctx, players: make(map[*oto.Player]struct{})}, nil
}

// Suspended reports whether output is paused.
func (s *Speaker) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Suspend pauses all output.
func (s *Speaker) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ctx.Suspend(); err != nil {
		return err
	}
	s.suspended = true
	return nil
}

// Resume restarts suspended output.
func (s *Speaker) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ctx.Resume(); err != nil {
		return err
	}
	s.suspended = false
	return nil
}

// Play starts playing samples and returns immediately.
func (s *Speaker) Play(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("speaker is closed")
	}

	p := s.ctx.NewPlayer(bytes.NewReader(EncodeFloat32LE(samples)))
	s.players[p] = struct{}{}
	p.Play()

	go s.release(p)
	return nil
}

func (s *Speaker) release(p *oto.Player) {
	for p.IsPlaying() {
		time.Sleep(drainPoll)
	}
	s.mu.Lock()
	_, ok := s.players[p]
	delete(s.players, p)
	s.mu.Unlock()
	if ok {
		_ = p.Close()
	}
}

// Close stops every player and suspends the output. The underlying context
// cannot be reopened.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for p := range s.players {
		p.Pause()
		_ = p.Close()
		delete(s.players, p)
	}
	s.suspended = true
	return s.ctx.Suspend()
}

// EncodeFloat32LE packs samples as little-endian IEEE 754 floats.
func EncodeFloat32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
