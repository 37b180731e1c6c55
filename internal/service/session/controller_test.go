package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/capture"
	"ai-speaking-practice/internal/transport"
)

func frames(fragments ...string) string {
	var b strings.Builder
	for _, f := range fragments {
		fmt.Fprintf(&b, "data: {\"text\":%q}\n\n", f)
	}
	return b.String()
}

type fakeTransport struct {
	mu         sync.Mutex
	body       string
	streamErr  error
	dialErr    error
	eval       models.Evaluation
	synthErr   error
	histories  [][]models.Turn
	texts      []string
	synthCalls []string
	sessions   []string
	entered    chan struct{}
	release    chan struct{}
}

func (f *fakeTransport) DialogueTurn(ctx context.Context, history []models.Turn, text string) (*transport.Stream, error) {
	f.mu.Lock()
	f.histories = append(f.histories, history)
	f.texts = append(f.texts, text)
	body, streamErr, dialErr := f.body, f.streamErr, f.dialErr
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if dialErr != nil {
		return nil, dialErr
	}
	var r io.Reader = strings.NewReader(body)
	if streamErr != nil {
		r = io.MultiReader(r, iotest.ErrReader(streamErr))
	}
	return transport.NewStream(io.NopCloser(r)), nil
}

func (f *fakeTransport) Evaluate(ctx context.Context, history []models.Turn) models.Evaluation {
	return f.eval
}

func (f *fakeTransport) Synthesize(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls = append(f.synthCalls, text)
	if f.synthErr != nil {
		return "", f.synthErr
	}
	return "AAAA", nil
}

func (f *fakeTransport) SetSession(id string) {
	f.mu.Lock()
	f.sessions = append(f.sessions, id)
	f.mu.Unlock()
}

func (f *fakeTransport) synthesized() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synthCalls...)
}

type fakeCapture struct {
	mu        sync.Mutex
	listening bool
	startErr  error
	starts    int
	stops     int
	complete  func(string)
}

func (f *fakeCapture) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.listening = true
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.listening = false
	return nil
}

func (f *fakeCapture) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeCapture) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		return capture.Status{State: capture.StateListening}
	}
	return capture.Status{State: capture.StateIdle}
}

func (f *fakeCapture) SetCompletionHandler(fn func(string)) {
	f.mu.Lock()
	f.complete = fn
	f.mu.Unlock()
}

func (f *fakeCapture) SetObserver(fn func(capture.Status)) {}

func (f *fakeCapture) finish(text string) {
	f.mu.Lock()
	fn := f.complete
	f.mu.Unlock()
	fn(text)
}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
	closed bool
}

func (f *fakePlayer) Play(ctx context.Context, payload string) error {
	f.mu.Lock()
	f.played = append(f.played, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakePlayer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

func newTestController(tr *fakeTransport) (*Controller, *fakeCapture, *fakePlayer) {
	c := &fakeCapture{}
	p := &fakePlayer{}
	return New(tr, c, p), c, p
}

func TestNew_SeedsGreeting(t *testing.T) {
	tr := &fakeTransport{}
	ctrl, _, _ := newTestController(tr)

	snap := ctrl.Snapshot()
	if snap.State != models.SessionNotStarted {
		t.Errorf("State = %v, want NOT_STARTED", snap.State)
	}
	if len(snap.Transcript) != 1 {
		t.Fatalf("transcript len = %d, want 1", len(snap.Transcript))
	}
	g := snap.Transcript[0]
	if g.ID != models.GreetingTurnID || g.Text != GreetingText || g.Sender != models.SenderAI {
		t.Errorf("greeting = %+v", g)
	}
	if len(tr.sessions) != 1 || tr.sessions[0] != snap.SessionID {
		t.Errorf("transport sessions = %v, want [%s]", tr.sessions, snap.SessionID)
	}
}

func TestSubmitTurn_StreamsReply(t *testing.T) {
	tr := &fakeTransport{body: frames("Hallo", " Welt")}
	ctrl, _, player := newTestController(tr)

	var mu sync.Mutex
	var partials []string
	ctrl.Subscribe(func(s Snapshot) {
		last := s.Transcript[len(s.Transcript)-1]
		if last.Sender == models.SenderAI && last.Streaming {
			mu.Lock()
			partials = append(partials, last.Text)
			mu.Unlock()
		}
	})

	if err := ctrl.SubmitTurn(context.Background(), "  Ich heiße Anna  "); err != nil {
		t.Fatalf("SubmitTurn() error = %v", err)
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if len(snap.Transcript) != 3 {
		t.Fatalf("transcript len = %d, want 3", len(snap.Transcript))
	}
	user, reply := snap.Transcript[1], snap.Transcript[2]
	if user.Text != "Ich heiße Anna" || user.Sender != models.SenderUser || user.ID != 2 {
		t.Errorf("user turn = %+v", user)
	}
	if reply.Text != "Hallo Welt" || reply.Streaming || reply.ID != 3 {
		t.Errorf("reply turn = %+v", reply)
	}
	if snap.Responding {
		t.Error("Responding should be cleared")
	}

	mu.Lock()
	got := strings.Join(partials, "|")
	mu.Unlock()
	if got != "|Hallo|Hallo Welt" {
		t.Errorf("streaming partials = %q, want %q", got, "|Hallo|Hallo Welt")
	}

	if len(tr.histories) != 1 || len(tr.histories[0]) != 1 {
		t.Errorf("history sent = %v, want greeting only", tr.histories)
	}
	if s := tr.synthesized(); len(s) != 1 || s[0] != "Hallo Welt" {
		t.Errorf("synthesized = %v", s)
	}
	if player.count() != 1 {
		t.Errorf("played = %d, want 1", player.count())
	}
}

func TestSubmitTurn_EmptyReplyRemovesPlaceholder(t *testing.T) {
	tr := &fakeTransport{body: ""}
	ctrl, _, _ := newTestController(tr)

	if err := ctrl.SubmitTurn(context.Background(), "Hallo"); err != nil {
		t.Fatalf("SubmitTurn() error = %v", err)
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if len(snap.Transcript) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(snap.Transcript))
	}
	if snap.Transcript[1].Sender != models.SenderUser {
		t.Errorf("last turn = %+v, want user turn", snap.Transcript[1])
	}
	if s := tr.synthesized(); len(s) != 0 {
		t.Errorf("synthesized = %v, want none", s)
	}
}

func TestSubmitTurn_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		tr   *fakeTransport
	}{
		{"dial error", &fakeTransport{dialErr: boom}},
		{"mid-stream error", &fakeTransport{body: frames("Hal"), streamErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, _, _ := newTestController(tt.tr)

			err := ctrl.SubmitTurn(context.Background(), "Hallo")
			if !errors.Is(err, boom) {
				t.Fatalf("SubmitTurn() error = %v, want %v", err, boom)
			}
			ctrl.Wait()

			snap := ctrl.Snapshot()
			last := snap.Transcript[len(snap.Transcript)-1]
			if last.Text != DialogueErrorText || last.Streaming {
				t.Errorf("last turn = %+v, want error turn", last)
			}
			if snap.Responding {
				t.Error("Responding should be cleared")
			}
			if s := tt.tr.synthesized(); len(s) != 0 {
				t.Errorf("synthesized = %v, want none", s)
			}
		})
	}
}

func TestSubmitTurn_RejectsEmptyText(t *testing.T) {
	ctrl, _, _ := newTestController(&fakeTransport{})
	if err := ctrl.SubmitTurn(context.Background(), " \t "); !errors.Is(err, ErrEmptyTurn) {
		t.Errorf("SubmitTurn() error = %v, want ErrEmptyTurn", err)
	}
	if n := len(ctrl.Snapshot().Transcript); n != 1 {
		t.Errorf("transcript len = %d, want 1", n)
	}
}

func TestSubmitTurn_RejectsClosedSession(t *testing.T) {
	ctrl, _, _ := newTestController(&fakeTransport{eval: models.Evaluation{Score: 70}})
	ctx := context.Background()
	if err := ctrl.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SubmitTurn(ctx, "Hallo"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SubmitTurn() error = %v, want ErrSessionClosed", err)
	}
	ctrl.Wait()
}

func TestSubmitTurn_RejectsOverlap(t *testing.T) {
	tr := &fakeTransport{
		body:    frames("Gut"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ctrl, _, _ := newTestController(tr)

	done := make(chan error, 1)
	go func() { done <- ctrl.SubmitTurn(context.Background(), "Erste") }()

	select {
	case <-tr.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the transport")
	}

	if err := ctrl.SubmitTurn(context.Background(), "Zweite"); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping SubmitTurn() error = %v, want ErrBusy", err)
	}
	if err := ctrl.EndSession(context.Background()); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("EndSession() error = %v, want ErrSessionNotActive", err)
	}

	close(tr.release)
	if err := <-done; err != nil {
		t.Fatalf("first SubmitTurn() error = %v", err)
	}
	ctrl.Wait()

	if n := len(ctrl.Snapshot().Transcript); n != 3 {
		t.Errorf("transcript len = %d, want 3", n)
	}
}

func TestStartSession(t *testing.T) {
	tr := &fakeTransport{}
	ctrl, _, _ := newTestController(tr)
	before := ctrl.Snapshot()

	if err := ctrl.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if snap.State != models.SessionActive {
		t.Errorf("State = %v, want ACTIVE", snap.State)
	}
	if len(snap.Transcript) != 1 || snap.Transcript[0].Text != OpeningText {
		t.Errorf("transcript = %+v, want opening turn only", snap.Transcript)
	}
	if snap.Transcript[0].ID <= models.GreetingTurnID {
		t.Errorf("opening turn ID = %d, want > %d", snap.Transcript[0].ID, models.GreetingTurnID)
	}
	if snap.SessionID == before.SessionID {
		t.Error("StartSession should allocate a new session ID")
	}
	if last := tr.sessions[len(tr.sessions)-1]; last != snap.SessionID {
		t.Errorf("transport session = %s, want %s", last, snap.SessionID)
	}
	if s := tr.synthesized(); len(s) != 1 || s[0] != OpeningText {
		t.Errorf("synthesized = %v, want opening text", s)
	}
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()

	t.Run("requires active session", func(t *testing.T) {
		ctrl, _, _ := newTestController(&fakeTransport{})
		if err := ctrl.EndSession(ctx); !errors.Is(err, ErrSessionNotActive) {
			t.Errorf("EndSession() error = %v, want ErrSessionNotActive", err)
		}
	})

	t.Run("stores evaluation", func(t *testing.T) {
		tr := &fakeTransport{eval: models.Evaluation{Score: 82, Feedback: "جيد"}}
		ctrl, _, _ := newTestController(tr)
		if err := ctrl.StartSession(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.EndSession(ctx); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		ctrl.Wait()

		snap := ctrl.Snapshot()
		if snap.State != models.SessionClosed {
			t.Errorf("State = %v, want CLOSED_WITH_EVALUATION", snap.State)
		}
		if snap.Evaluation == nil || snap.Evaluation.Score != 82 {
			t.Errorf("Evaluation = %+v, want score 82", snap.Evaluation)
		}
		if last := snap.Transcript[len(snap.Transcript)-1]; last.Text != ClosingText {
			t.Errorf("last turn = %q, want closing text", last.Text)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctrl, _, _ := newTestController(&fakeTransport{})
		if err := ctrl.StartSession(ctx); err != nil {
			t.Fatal(err)
		}
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if err := ctrl.EndSession(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("EndSession() error = %v, want context.Canceled", err)
		}
		ctrl.Wait()

		snap := ctrl.Snapshot()
		if snap.State != models.SessionClosed {
			t.Errorf("State = %v, want CLOSED_WITH_EVALUATION", snap.State)
		}
		if snap.Evaluation != nil {
			t.Errorf("Evaluation = %+v, want nil", snap.Evaluation)
		}
		if last := snap.Transcript[len(snap.Transcript)-1]; last.Text != EvaluationErrorText {
			t.Errorf("last turn = %q, want evaluation error text", last.Text)
		}
		if snap.Responding {
			t.Error("Responding should be cleared")
		}
	})
}

func TestToggleCapture(t *testing.T) {
	ctx := context.Background()
	ctrl, capt, _ := newTestController(&fakeTransport{})

	if err := ctrl.ToggleCapture(ctx); err != nil {
		t.Fatalf("ToggleCapture() error = %v", err)
	}
	if ctrl.Snapshot().State != models.SessionActive {
		t.Error("first toggle should start the session")
	}
	if !capt.Listening() {
		t.Error("first toggle should start capture")
	}

	if err := ctrl.ToggleCapture(ctx); err != nil {
		t.Fatalf("ToggleCapture() error = %v", err)
	}
	if capt.Listening() {
		t.Error("second toggle should stop capture")
	}

	if err := ctrl.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	starts := capt.starts
	if err := ctrl.ToggleCapture(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("ToggleCapture() after close error = %v, want ErrSessionClosed", err)
	}
	if capt.starts != starts || capt.Listening() {
		t.Error("ToggleCapture() after close should not start capture")
	}
	if st := ctrl.Snapshot().State; st != models.SessionClosed {
		t.Errorf("State = %v, want CLOSED_WITH_EVALUATION", st)
	}
	ctrl.Wait()
}

func TestToggleCapture_StartFailure(t *testing.T) {
	ctrl, capt, _ := newTestController(&fakeTransport{})
	capt.startErr = capture.ErrPermissionDenied

	if err := ctrl.ToggleCapture(context.Background()); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("ToggleCapture() error = %v, want ErrPermissionDenied", err)
	}
	ctrl.Wait()
}

func TestCaptureCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("submitted while active", func(t *testing.T) {
		tr := &fakeTransport{body: frames("Schön")}
		ctrl, capt, _ := newTestController(tr)
		if err := ctrl.StartSession(ctx); err != nil {
			t.Fatal(err)
		}

		capt.finish("Ich wohne in Berlin")
		ctrl.Wait()

		snap := ctrl.Snapshot()
		if len(snap.Transcript) != 3 {
			t.Fatalf("transcript len = %d, want 3", len(snap.Transcript))
		}
		if snap.Transcript[1].Text != "Ich wohne in Berlin" {
			t.Errorf("user turn = %q", snap.Transcript[1].Text)
		}
	})

	t.Run("discarded before start", func(t *testing.T) {
		tr := &fakeTransport{body: frames("Schön")}
		ctrl, capt, _ := newTestController(tr)

		capt.finish("Hallo")
		ctrl.Wait()

		if n := len(ctrl.Snapshot().Transcript); n != 1 {
			t.Errorf("transcript len = %d, want 1", n)
		}
	})

	t.Run("discarded after close", func(t *testing.T) {
		tr := &fakeTransport{body: frames("Schön")}
		ctrl, capt, _ := newTestController(tr)
		if err := ctrl.StartSession(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.EndSession(ctx); err != nil {
			t.Fatal(err)
		}
		before := len(ctrl.Snapshot().Transcript)

		capt.finish("Noch etwas")
		ctrl.Wait()

		if n := len(ctrl.Snapshot().Transcript); n != before {
			t.Errorf("transcript len = %d, want %d", n, before)
		}
		if len(tr.texts) != 0 {
			t.Errorf("transport received %v, want nothing", tr.texts)
		}
	})
}

func TestTurnIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{body: frames("Ja")}
	ctrl, _, _ := newTestController(tr)

	if err := ctrl.SubmitTurn(ctx, "Eins"); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SubmitTurn(ctx, "Zwei"); err != nil {
		t.Fatal(err)
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	var prev int64 = models.GreetingTurnID
	for _, turn := range snap.Transcript {
		if turn.ID <= prev {
			t.Errorf("turn ID %d not greater than %d", turn.ID, prev)
		}
		prev = turn.ID
	}
	if snap.Transcript[0].ID <= 3 {
		t.Errorf("opening turn ID = %d, want IDs to continue after earlier turns", snap.Transcript[0].ID)
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	ctx := context.Background()
	ctrl, _, _ := newTestController(&fakeTransport{eval: models.Evaluation{Score: 50}})
	if err := ctrl.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.EndSession(ctx); err != nil {
		t.Fatal(err)
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	snap.Transcript[0].Text = "changed"
	snap.Evaluation.Score = 1

	again := ctrl.Snapshot()
	if again.Transcript[0].Text != OpeningText {
		t.Error("transcript mutation leaked into controller state")
	}
	if again.Evaluation.Score != 50 {
		t.Error("evaluation mutation leaked into controller state")
	}
}

func TestSubmitTurn_SynthesisFailureIsNotFatal(t *testing.T) {
	tr := &fakeTransport{body: frames("Gut"), synthErr: errors.New("tts down")}
	ctrl, _, player := newTestController(tr)

	if err := ctrl.SubmitTurn(context.Background(), "Hallo"); err != nil {
		t.Fatalf("SubmitTurn() error = %v", err)
	}
	ctrl.Wait()

	if player.count() != 0 {
		t.Errorf("played = %d, want 0", player.count())
	}
	if last := ctrl.Snapshot().Transcript[2]; last.Text != "Gut" {
		t.Errorf("reply = %q, want Gut", last.Text)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctrl, _, _ := newTestController(&fakeTransport{})

	calls := 0
	unsubscribe := ctrl.Subscribe(func(Snapshot) { calls++ })
	if err := ctrl.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl.Wait()
	if calls == 0 {
		t.Fatal("subscriber was not notified")
	}

	unsubscribe()
	seen := calls
	if err := ctrl.SubmitTurn(context.Background(), "Hallo"); err != nil {
		t.Fatal(err)
	}
	ctrl.Wait()
	if calls != seen {
		t.Errorf("calls after unsubscribe = %d, want %d", calls, seen)
	}
}

func TestClose(t *testing.T) {
	tr := &fakeTransport{body: frames("Gut")}
	ctrl, capt, player := newTestController(tr)
	if err := ctrl.StartSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if capt.stops == 0 {
		t.Error("Close should stop capture")
	}
	if !player.closed {
		t.Error("Close should release the player")
	}

	capt.finish("Zu spät")
	ctrl.Wait()
	if len(tr.texts) != 0 {
		t.Errorf("transport received %v after Close", tr.texts)
	}
	if err := ctrl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence()
	if got := s.Next(); got != models.GreetingTurnID+1 {
		t.Errorf("first Next() = %d, want %d", got, models.GreetingTurnID+1)
	}
	if got := s.Next(); got != models.GreetingTurnID+2 {
		t.Errorf("second Next() = %d, want %d", got, models.GreetingTurnID+2)
	}
}
