// Package audio provides the local microphone and speaker devices.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// ErrBusy is returned by Microphone.Start while a capture is running.
var ErrBusy = errors.New("microphone is already capturing")

const (
	micChannels     = 1
	micPeriodMs     = 20
	micQueuedChunks = 64
)

// Microphone captures PCM16 little-endian mono audio.
type Microphone struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32

	mu     sync.Mutex
	device *malgo.Device
	out    chan []byte
}

// NewMicrophone initializes the audio backend for capture at sampleRate.
func NewMicrophone(sampleRate int) (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Microphone{ctx: ctx, sampleRate: uint32(sampleRate)}, nil
}

// Start opens the default capture device. Chunks are delivered on the returned
// channel, which is closed when ctx is done or Stop is called. Chunks are
// dropped when the consumer falls behind.
func (m *Microphone) Start(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil, ErrBusy
	}

	out := make(chan []byte, micQueuedChunks)
	var dropped atomic.Int64

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = micChannels
	cfg.SampleRate = m.sampleRate
	cfg.PeriodSizeInMilliseconds = micPeriodMs

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := make([]byte, len(input))
			copy(chunk, input)
			select {
			case out <- chunk:
			default:
				dropped.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	m.device = device
	m.out = out

	go func() {
		<-ctx.Done()
		if m.stopDevice(device) && dropped.Load() > 0 {
			log.Debug().Int64("dropped", dropped.Load()).Msg("Microphone chunks dropped")
		}
	}()

	log.Debug().Uint32("sampleRate", m.sampleRate).Msg("Microphone started")
	return out, nil
}

// Stop closes the running capture, if any.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()
	if device != nil {
		m.stopDevice(device)
	}
	return nil
}

// stopDevice tears down device if it is still the active one.
func (m *Microphone) stopDevice(device *malgo.Device) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != device {
		return false
	}
	_ = device.Stop()
	device.Uninit()
	close(m.out)
	m.device = nil
	m.out = nil
	return true
}

// Close stops capture and releases the audio backend.
func (m *Microphone) Close() {
	_ = m.Stop()
	_ = m.ctx.Uninit()
	m.ctx.Free()
}
