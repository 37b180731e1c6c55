// Package mock provides a scripted recognizer for running without a microphone
// or cloud credentials. Each capture cycle emits progressive interim results
// followed by exactly one final result, then goes quiet until stopped.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-speaking-practice/internal/service/capture"
)

// SimulatedUtterance is one scripted utterance.
type SimulatedUtterance struct {
	Interims []string // progressive interim transcripts
	Final    string
}

// DefaultUtterances cycle across capture cycles.
var DefaultUtterances = []SimulatedUtterance{
	{
		Interims: []string{"Ich", "Ich heiße", "Ich heiße Sara"},
		Final:    "Ich heiße Sara und komme aus Syrien.",
	},
	{
		Interims: []string{"In meiner", "In meiner Freizeit", "In meiner Freizeit lese"},
		Final:    "In meiner Freizeit lese ich gern Bücher.",
	},
	{
		Interims: []string{"Letztes", "Letztes Jahr", "Letztes Jahr war ich"},
		Final:    "Letztes Jahr war ich in Hamburg.",
	},
	{
		Interims: []string{"Ich arbeite", "Ich arbeite als"},
		Final:    "Ich arbeite als Krankenpfleger.",
	},
	{
		Interims: []string{"Morgens"},
		Final:    "Morgens trinke ich Kaffee und fahre mit dem Bus zur Arbeit.",
	},
}

// DefaultInterval is the delay between scripted results.
const DefaultInterval = 150 * time.Millisecond

// Recognizer implements capture.Recognizer with scripted results.
type Recognizer struct {
	Utterances []SimulatedUtterance
	Interval   time.Duration
	// StartErr, when set, is returned by Start.
	StartErr error

	mu     sync.Mutex
	next   int
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a recognizer with the default utterances.
func New() *Recognizer {
	return &Recognizer{
		Utterances: DefaultUtterances,
		Interval:   DefaultInterval,
	}
}

// Start begins a scripted capture cycle.
func (r *Recognizer) Start(ctx context.Context, h capture.Handler) error {
	if r.StartErr != nil {
		return r.StartErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if len(r.Utterances) == 0 {
		return capture.ErrUnsupported
	}
	utt := r.Utterances[r.next%len(r.Utterances)]
	r.next++

	cycleCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.run(cycleCtx, h, utt, done)
	return nil
}

func (r *Recognizer) run(ctx context.Context, h capture.Handler, utt SimulatedUtterance, done chan struct{}) {
	defer close(done)
	defer h.OnEnd()

	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.Interval):
			return true
		}
	}

	for _, interim := range utt.Interims {
		if !wait() {
			return
		}
		h.OnResult(capture.ResultEvent{Results: []capture.Result{{Transcript: interim}}})
	}
	if !wait() {
		return
	}
	h.OnResult(capture.ResultEvent{Results: []capture.Result{{Transcript: utt.Final, Final: true}}})

	// quiet until stopped
	<-ctx.Done()
}

// Stop ends the current cycle. OnEnd is delivered from the cycle goroutine.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the most recent cycle has delivered OnEnd.
func (r *Recognizer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
