package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/capture"
	"ai-speaking-practice/internal/service/session"
)

var greeting = models.Turn{ID: models.GreetingTurnID, Text: session.GreetingText, Sender: models.SenderAI}

func snapshot(turns ...models.Turn) session.Snapshot {
	return session.Snapshot{SessionID: "s-1", Transcript: append([]models.Turn{greeting}, turns...)}
}

func TestRenderer_StreamsReplyAsDeltas(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	user := models.Turn{ID: 2, Text: "Hallo", Sender: models.SenderUser}
	r.render(snapshot())
	r.render(snapshot(user, models.Turn{ID: 3, Sender: models.SenderAI, Streaming: true}))
	r.render(snapshot(user, models.Turn{ID: 3, Text: "Guten", Sender: models.SenderAI, Streaming: true}))
	r.render(snapshot(user, models.Turn{ID: 3, Text: "Guten Tag", Sender: models.SenderAI}))
	r.render(snapshot(user, models.Turn{ID: 3, Text: "Guten Tag", Sender: models.SenderAI}))

	got := out.String()
	if strings.Count(got, session.GreetingText) != 1 {
		t.Errorf("greeting should be printed once, got %q", got)
	}
	if !strings.Contains(got, "Sie: Hallo\n") {
		t.Errorf("missing user turn in %q", got)
	}
	if !strings.Contains(got, "Prüfer: Guten Tag\n") {
		t.Errorf("missing streamed reply in %q", got)
	}
	if strings.Count(got, "Guten") != 1 {
		t.Errorf("reply fragments should not be repeated, got %q", got)
	}
}

func TestRenderer_ReplacedReply(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	user := models.Turn{ID: 2, Text: "Hallo", Sender: models.SenderUser}
	r.render(snapshot(user, models.Turn{ID: 3, Text: "Gu", Sender: models.SenderAI, Streaming: true}))
	r.render(snapshot(user, models.Turn{ID: 3, Text: session.DialogueErrorText, Sender: models.SenderAI}))

	got := out.String()
	if !strings.Contains(got, "Prüfer: Gu\n") {
		t.Errorf("partial reply should be terminated, got %q", got)
	}
	if !strings.Contains(got, session.DialogueErrorText) {
		t.Errorf("missing error turn in %q", got)
	}
}

func TestRenderer_RemovedPlaceholder(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	user := models.Turn{ID: 2, Text: "Hallo", Sender: models.SenderUser}
	r.render(snapshot(user, models.Turn{ID: 3, Sender: models.SenderAI, Streaming: true}))
	r.render(snapshot(user))
	r.render(snapshot(user, models.Turn{ID: 4, Text: "Noch da?", Sender: models.SenderUser}))

	if r.streamingID != 0 {
		t.Errorf("streamingID = %d, want 0", r.streamingID)
	}
	if !strings.Contains(out.String(), "\nSie: Noch da?\n") {
		t.Errorf("next turn should start on a new line, got %q", out.String())
	}
}

func TestRenderer_EvaluationShownOnce(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	snap := snapshot()
	snap.Evaluation = &models.Evaluation{Score: 78, Feedback: "أداء جيد"}
	r.render(snap)
	r.render(snap)

	got := out.String()
	if strings.Count(got, "78/100") != 1 {
		t.Errorf("evaluation should be printed once, got %q", got)
	}
	if !strings.Contains(got, "أداء جيد") {
		t.Errorf("missing feedback in %q", got)
	}
}

func TestRenderer_CaptureStatus(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	snap := snapshot()
	snap.Capture = capture.Status{State: capture.StateIdle, Err: capture.ErrPermissionDenied}
	r.render(snap)
	r.render(snap)

	msg := capture.Message(capture.ErrPermissionDenied)
	if got := strings.Count(out.String(), msg); got != 1 {
		t.Errorf("capture error printed %d times, want 1", got)
	}

	snap.Capture = capture.Status{State: capture.StateListening, Interim: "Ich hei"}
	r.render(snap)
	if !strings.Contains(out.String(), "Ich hei") {
		t.Errorf("missing interim transcript in %q", out.String())
	}
}

func TestRunCommand_Quit(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"/quit", true},
		{"q", true},
		{"   ", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := runCommand(context.Background(), nil, tt.line); got != tt.want {
			t.Errorf("runCommand(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
