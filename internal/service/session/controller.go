// Package session owns the practice conversation and coordinates capture,
// transport and playback.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/service/capture"
	"ai-speaking-practice/internal/transport"
)

// Fixed user-facing turn texts.
const (
	GreetingText        = "مرحبًا! أنا مساعدك الآلي للتدريب على امتحان Telc. اضغط على زر الميكروفون لبدء المحادثة."
	OpeningText         = "Sehr gut! Fangen wir an. Erzählen Sie mir bitte ein bisschen über sich."
	ClosingText         = "لقد كانت محادثة رائعة. إليك تقييمي لأدائك."
	DialogueErrorText   = "عذرًا، حدث خطأ أثناء محاولة الاتصال. يرجى المحاولة مرة أخرى."
	EvaluationErrorText = "عذرًا، لم أتمكن من إتمام التقييم. يرجى المحاولة مرة أخرى."
)

var (
	ErrEmptyTurn        = errors.New("turn text is empty")
	ErrSessionClosed    = errors.New("session is closed")
	ErrSessionNotActive = errors.New("session is not active")
	// ErrBusy rejects a submission or evaluation while a reply is streaming
	// or an evaluation is running.
	ErrBusy = errors.New("a reply or evaluation is in progress")
)

// Transport is the backend connection.
type Transport interface {
	DialogueTurn(ctx context.Context, history []models.Turn, newText string) (*transport.Stream, error)
	Evaluate(ctx context.Context, history []models.Turn) models.Evaluation
	Synthesize(ctx context.Context, text string) (string, error)
	SetSession(sessionID string)
}

// Capture is the speech capture session.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	Listening() bool
	Status() capture.Status
	SetCompletionHandler(fn func(text string))
	SetObserver(fn func(capture.Status))
}

// Player plays synthesized speech.
type Player interface {
	Play(ctx context.Context, payload string) error
	Close() error
}

// Snapshot is a deep copy of the controller state.
type Snapshot struct {
	SessionID  string
	State      models.SessionState
	Transcript []models.Turn
	Evaluation *models.Evaluation
	Responding bool
	Capture    capture.Status
}

// Controller owns the transcript and session state. All mutations are
// serialized by one mutex and published to subscribers as snapshots.
type Controller struct {
	transport Transport
	capture   Capture
	player    Player
	seq       *Sequence
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu         sync.Mutex
	sessionID  string
	state      models.SessionState
	transcript []models.Turn
	evaluation *models.Evaluation
	responding bool
	closed     bool

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a controller whose transcript holds only the greeting turn.
func New(t Transport, c Capture, p Player) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	sessionID := uuid.NewString()

	ctrl := &Controller{
		transport: t,
		capture:   c,
		player:    p,
		seq:       NewSequence(),
		logger:    logging.WithSession("session", sessionID),
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sessionID,
		state:     models.SessionNotStarted,
		transcript: []models.Turn{
			{ID: models.GreetingTurnID, Text: GreetingText, Sender: models.SenderAI},
		},
		subs: make(map[int]func(Snapshot)),
	}

	t.SetSession(sessionID)
	c.SetObserver(func(capture.Status) { ctrl.notify() })
	ctrl.bindCapture(models.SessionNotStarted)
	return ctrl
}

// Subscribe registers fn for every state change and returns its unsubscribe.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	snap.Capture = c.capture.Status()
	return snap
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  c.sessionID,
		State:      c.state,
		Transcript: append([]models.Turn(nil), c.transcript...),
		Responding: c.responding,
	}
	if c.evaluation != nil {
		eval := *c.evaluation
		snap.Evaluation = &eval
	}
	return snap
}

func (c *Controller) log() *zerolog.Logger {
	c.mu.Lock()
	l := c.logger
	c.mu.Unlock()
	return &l
}

func (c *Controller) notify() {
	snap := c.Snapshot()

	c.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// SubmitTurn sends a user utterance and streams the examiner reply into the transcript.
func (c *Controller) SubmitTurn(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTurn
	}

	c.mu.Lock()
	if c.state == models.SessionClosed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.responding {
		c.mu.Unlock()
		return ErrBusy
	}
	history := append([]models.Turn(nil), c.transcript...)
	userTurn := models.Turn{ID: c.seq.Next(), Text: text, Sender: models.SenderUser}
	placeholderID := c.seq.Next()
	c.transcript = append(c.transcript,
		userTurn,
		models.Turn{ID: placeholderID, Sender: models.SenderAI, Streaming: true},
	)
	c.responding = true
	c.mu.Unlock()
	c.notify()

	reply, err := c.streamReply(ctx, history, text, placeholderID)

	c.mu.Lock()
	idx := c.indexLocked(placeholderID)
	switch {
	case err != nil:
		if idx >= 0 {
			c.transcript[idx].Text = DialogueErrorText
			c.transcript[idx].Streaming = false
		}
	case reply == "":
		if idx >= 0 {
			c.transcript = append(c.transcript[:idx], c.transcript[idx+1:]...)
		}
	default:
		if idx >= 0 {
			c.transcript[idx].Streaming = false
		}
	}
	c.responding = false
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.log().Error().Err(err).Msg("Dialogue turn failed")
		return err
	}

	c.log().Info().
		Int("historySize", len(history)).
		Int("replyLen", len(reply)).
		Msg("Dialogue turn completed")
	if reply != "" {
		c.speak(reply)
	}
	return nil
}

func (c *Controller) streamReply(ctx context.Context, history []models.Turn, text string, placeholderID int64) (string, error) {
	stream, err := c.transport.DialogueTurn(ctx, history, text)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if err != nil {
			return reply.String(), err
		}
		reply.WriteString(frag)

		c.mu.Lock()
		if idx := c.indexLocked(placeholderID); idx >= 0 {
			c.transcript[idx].Text = reply.String()
		}
		c.mu.Unlock()
		c.notify()
	}
}

func (c *Controller) indexLocked(id int64) int {
	for i := len(c.transcript) - 1; i >= 0; i-- {
		if c.transcript[i].ID == id {
			return i
		}
	}
	return -1
}

// StartSession resets the transcript to the opening turn and speaks it.
func (c *Controller) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.responding {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sessionID = uuid.NewString()
	c.logger = logging.WithSession("session", c.sessionID)
	c.transcript = []models.Turn{
		{ID: c.seq.Next(), Text: OpeningText, Sender: models.SenderAI},
	}
	c.evaluation = nil
	c.state = models.SessionActive
	sessionID := c.sessionID
	c.mu.Unlock()

	c.transport.SetSession(sessionID)
	c.bindCapture(models.SessionActive)
	c.notify()

	c.log().Info().Msg("Practice session started")
	c.speak(OpeningText)
	return nil
}

// EndSession evaluates the transcript and closes the session. The session is
// closed even when evaluation fails.
func (c *Controller) EndSession(ctx context.Context) error {
	c.mu.Lock()
	if c.state != models.SessionActive {
		c.mu.Unlock()
		return ErrSessionNotActive
	}
	if c.responding {
		c.mu.Unlock()
		return ErrBusy
	}
	c.responding = true
	history := append([]models.Turn(nil), c.transcript...)
	c.mu.Unlock()
	c.notify()

	eval := c.transport.Evaluate(ctx, history)
	err := ctx.Err()

	c.mu.Lock()
	if err != nil {
		c.transcript = append(c.transcript, models.Turn{ID: c.seq.Next(), Text: EvaluationErrorText, Sender: models.SenderAI})
	} else {
		c.evaluation = &eval
		c.transcript = append(c.transcript, models.Turn{ID: c.seq.Next(), Text: ClosingText, Sender: models.SenderAI})
	}
	c.state = models.SessionClosed
	c.responding = false
	c.mu.Unlock()

	c.bindCapture(models.SessionClosed)
	c.notify()

	if err != nil {
		c.log().Error().Err(err).Msg("Evaluation failed")
		return err
	}
	c.log().Info().Float64("score", eval.Score).Msg("Practice session evaluated")
	return nil
}

// ToggleCapture stops a running capture, or starts one, opening the session
// first when it has not started. After EndSession it returns ErrSessionClosed
// without touching capture; call StartSession to begin a new session.
func (c *Controller) ToggleCapture(ctx context.Context) error {
	if c.capture.Listening() {
		return c.capture.Stop()
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case models.SessionClosed:
		return ErrSessionClosed
	case models.SessionNotStarted:
		if err := c.StartSession(ctx); err != nil {
			return err
		}
	}
	return c.capture.Start(ctx)
}

// bindCapture points the capture completion slot at a handler for state.
func (c *Controller) bindCapture(state models.SessionState) {
	if state != models.SessionActive {
		c.capture.SetCompletionHandler(func(text string) {
			c.log().Debug().Str("state", state.String()).Msg("Discarding utterance outside an active session")
		})
		return
	}
	c.capture.SetCompletionHandler(func(text string) {
		c.goBackground(func(ctx context.Context) {
			if err := c.SubmitTurn(ctx, text); err != nil {
				c.log().Warn().Err(err).Msg("Captured utterance was not submitted")
			}
		})
	})
}

// speak synthesizes and plays text in the background. Failures are logged.
func (c *Controller) speak(text string) {
	c.goBackground(func(ctx context.Context) {
		audio, err := c.transport.Synthesize(ctx, text)
		if err != nil {
			c.log().Warn().Err(err).Msg("Speech synthesis failed")
			return
		}
		if err := c.player.Play(ctx, audio); err != nil {
			c.log().Warn().Err(err).Msg("Playback failed")
		}
	})
}

func (c *Controller) goBackground(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		fn(c.ctx)
	}()
}

// Wait blocks until background submissions and speech have finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// Close stops capture, cancels background work and releases the audio output.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.capture.Stop(); err != nil {
		c.log().Warn().Err(err).Msg("Failed to stop capture")
	}
	c.cancel()
	c.bg.Wait()
	return c.player.Close()
}
