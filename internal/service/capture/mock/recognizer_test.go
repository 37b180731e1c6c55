package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-speaking-practice/internal/service/capture"
)

type testHandler struct {
	mu      sync.Mutex
	interim []string
	finals  []string
	errs    []error
	ends    int
}

func (h *testHandler) OnResult(ev capture.ResultEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range ev.Results {
		if r.Final {
			h.finals = append(h.finals, r.Transcript)
		} else {
			h.interim = append(h.interim, r.Transcript)
		}
	}
}

func (h *testHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *testHandler) OnEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
}

func (h *testHandler) snapshot() (interim, finals []string, ends int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.interim...), append([]string{}, h.finals...), h.ends
}

func TestRecognizer_EmitsInterimsThenOneFinal(t *testing.T) {
	r := &Recognizer{
		Utterances: []SimulatedUtterance{{Interims: []string{"Guten", "Guten Tag"}, Final: "Guten Tag!"}},
		Interval:   5 * time.Millisecond,
	}
	h := &testHandler{}

	if err := r.Start(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	interim, finals, ends := h.snapshot()
	if len(interim) != 2 || interim[1] != "Guten Tag" {
		t.Errorf("unexpected interims %v", interim)
	}
	if len(finals) != 1 || finals[0] != "Guten Tag!" {
		t.Errorf("expected exactly one final, got %v", finals)
	}
	if ends != 0 {
		t.Error("recognizer should stay open until stopped")
	}

	_ = r.Stop()
	r.Wait()
	if _, _, ends := h.snapshot(); ends != 1 {
		t.Errorf("expected one OnEnd after stop, got %d", ends)
	}
}

func TestRecognizer_StopBeforeFinal(t *testing.T) {
	r := &Recognizer{
		Utterances: []SimulatedUtterance{{Interims: []string{"a", "b", "c"}, Final: "abc"}},
		Interval:   time.Hour,
	}
	h := &testHandler{}

	_ = r.Start(context.Background(), h)
	_ = r.Stop()
	r.Wait()

	_, finals, ends := h.snapshot()
	if len(finals) != 0 {
		t.Errorf("expected no final, got %v", finals)
	}
	if ends != 1 {
		t.Errorf("expected one OnEnd, got %d", ends)
	}
}

func TestRecognizer_CyclesUtterances(t *testing.T) {
	r := &Recognizer{
		Utterances: []SimulatedUtterance{{Final: "eins"}, {Final: "zwei"}},
		Interval:   time.Millisecond,
	}

	var got []string
	for range 3 {
		h := &testHandler{}
		_ = r.Start(context.Background(), h)
		time.Sleep(20 * time.Millisecond)
		_ = r.Stop()
		r.Wait()
		_, finals, _ := h.snapshot()
		got = append(got, finals...)
	}

	want := []string{"eins", "zwei", "eins"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRecognizer_StartError(t *testing.T) {
	r := &Recognizer{StartErr: capture.ErrPermissionDenied}
	if err := r.Start(context.Background(), &testHandler{}); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestRecognizer_WithSession(t *testing.T) {
	r := &Recognizer{
		Utterances: []SimulatedUtterance{{Interims: []string{"Ich"}, Final: "Ich bin Lehrer."}},
		Interval:   5 * time.Millisecond,
	}
	s := capture.NewSession(r, capture.WithSilenceTimeout(20*time.Millisecond))
	done := make(chan string, 1)
	s.SetCompletionHandler(func(text string) { done <- text })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case text := <-done:
		if text != "Ich bin Lehrer." {
			t.Errorf("unexpected utterance %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("utterance was not completed")
	}
}
