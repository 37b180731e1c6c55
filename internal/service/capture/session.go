package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-speaking-practice/internal/observability/logging"
)

// DefaultSilenceTimeout stops a capture cycle after this long without results.
const DefaultSilenceTimeout = 1500 * time.Millisecond

// Session runs capture cycles on a recognizer and reports each completed
// utterance to a single registered completion handler.
//
// State transitions:
//
//	IDLE → LISTENING      Start()
//	LISTENING → IDLE      OnEnd (after Stop(), silence timeout, or recognizer end)
//	LISTENING → IDLE      OnError
//
// Events from a cycle other than the current one are ignored.
type Session struct {
	mu         sync.Mutex
	recognizer Recognizer
	silence    time.Duration
	logger     zerolog.Logger

	state     State
	interim   string
	finalized strings.Builder
	lastErr   error

	// cycle increments on every Start; active is the cycle still accepting events.
	cycle  uint64
	active uint64
	timer  *time.Timer

	onComplete func(text string)
	onStatus   func(Status)
}

// Option configures a Session.
type Option func(*Session)

// WithSilenceTimeout overrides DefaultSilenceTimeout.
func WithSilenceTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.silence = d
		}
	}
}

// NewSession creates a capture session. A nil recognizer makes every Start
// fail with ErrUnsupported.
func NewSession(r Recognizer, opts ...Option) *Session {
	s := &Session{
		recognizer: r,
		silence:    DefaultSilenceTimeout,
		logger:     logging.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCompletionHandler replaces the completion handler. It is called with the
// trimmed utterance when a cycle ends with non-empty finalized text.
func (s *Session) SetCompletionHandler(fn func(text string)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// SetObserver replaces the status observer.
func (s *Session) SetObserver(fn func(Status)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Listening reports whether a capture cycle is running.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateListening
}

// Start begins a capture cycle. It is a no-op while listening.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateListening {
		s.mu.Unlock()
		return nil
	}
	if s.recognizer == nil {
		s.lastErr = ErrUnsupported
		s.mu.Unlock()
		s.logger.Warn().Msg("Speech recognition is not available")
		s.notify()
		return ErrUnsupported
	}

	s.cycle++
	id := s.cycle
	s.active = id
	s.state = StateListening
	s.interim = ""
	s.finalized.Reset()
	s.lastErr = nil
	r := s.recognizer
	s.mu.Unlock()

	s.logger.Debug().Uint64("cycle", id).Msg("Capture cycle starting")
	s.notify()

	if err := r.Start(ctx, &cycleHandler{session: s, id: id}); err != nil {
		if !errors.Is(err, ErrUnsupported) && !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrAudioCapture) {
			err = errors.Join(ErrStartFailed, err)
		}
		s.fail(id, err)
		s.mu.Lock()
		if s.active == id {
			s.active = 0
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Stop asks the recognizer to end the current cycle. It is a no-op while idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return nil
	}
	r := s.recognizer
	s.mu.Unlock()

	return r.Stop()
}

func (s *Session) stopCycle(id uint64) {
	s.mu.Lock()
	current := s.active == id && s.state == StateListening
	s.mu.Unlock()
	if !current {
		return
	}
	s.logger.Debug().Uint64("cycle", id).Dur("silence", s.silence).Msg("Silence timeout, stopping capture")
	if err := s.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop recognizer")
	}
}

func (s *Session) handleResult(id uint64, ev ResultEvent) {
	s.mu.Lock()
	if s.active != id {
		s.mu.Unlock()
		return
	}

	var interim strings.Builder
	for _, r := range ev.Results {
		if r.Final {
			if t := strings.TrimSpace(r.Transcript); t != "" {
				s.finalized.WriteString(t)
				s.finalized.WriteString(" ")
			}
			continue
		}
		interim.WriteString(r.Transcript)
	}
	s.interim = interim.String()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.silence, func() { s.stopCycle(id) })
	s.mu.Unlock()

	s.notify()
}

func (s *Session) fail(id uint64, err error) {
	s.mu.Lock()
	if s.active != id {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.state = StateIdle
	s.interim = ""
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Warn().Err(err).Uint64("cycle", id).Msg("Capture error")
	s.notify()
}

func (s *Session) handleEnd(id uint64) {
	s.mu.Lock()
	if s.active != id {
		s.mu.Unlock()
		return
	}
	s.active = 0
	s.stopTimerLocked()
	s.state = StateIdle
	s.interim = ""
	text := strings.TrimSpace(s.finalized.String())
	s.finalized.Reset()
	complete := s.onComplete
	s.mu.Unlock()

	s.logger.Debug().Uint64("cycle", id).Int("textLen", len(text)).Msg("Capture cycle ended")
	s.notify()

	if text != "" && complete != nil {
		complete(text)
	}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) statusLocked() Status {
	return Status{State: s.state, Interim: s.interim, Err: s.lastErr}
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onStatus
	st := s.statusLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// cycleHandler tags recognizer callbacks with the cycle they belong to.
type cycleHandler struct {
	session *Session
	id      uint64
}

func (h *cycleHandler) OnResult(ev ResultEvent) { h.session.handleResult(h.id, ev) }
func (h *cycleHandler) OnError(err error)       { h.session.fail(h.id, err) }
func (h *cycleHandler) OnEnd()                  { h.session.handleEnd(h.id) }
