// Package mock provides a scripted model for running the service without credentials.
// Replies cycle through German examiner questions and are streamed word by word.
package mock

import (
	"context"
	"encoding/binary"
	"iter"
	"math"
	"strings"
	"sync"
	"time"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/model"
)

// DefaultReplies are the scripted examiner replies.
var DefaultReplies = []string{
	"Sehr schön. Erzählen Sie mir bitte etwas über Ihre Hobbys.",
	"Interessant! Wie oft machen Sie das in der Woche?",
	"Reisen Sie gern? Wohin sind Sie zuletzt gereist?",
	"Und was machen Sie beruflich?",
	"Wie sieht ein normaler Tag bei Ihnen aus?",
}

const (
	sampleRate   = 24000
	toneHz       = 440.0
	toneAmp      = 0.2
	msPerRune    = 40
	maxToneMs    = 4000
	defaultDelay = 30 * time.Millisecond
)

// Model implements model.Model with scripted output.
type Model struct {
	Replies []string
	// FragmentDelay is slept between streamed fragments.
	FragmentDelay time.Duration

	mu   sync.Mutex
	next int
}

var _ model.Model = (*Model)(nil)

// New creates a mock model with the default replies.
func New() *Model {
	return &Model{
		Replies:       DefaultReplies,
		FragmentDelay: defaultDelay,
	}
}

// StreamReply streams the next scripted reply one word at a time.
func (m *Model) StreamReply(ctx context.Context, history []models.Turn, newUserMessage string) iter.Seq2[string, error] {
	reply := m.nextReply()

	return func(yield func(string, error) bool) {
		for i, word := range strings.Fields(reply) {
			if i > 0 {
				word = " " + word
			}
			if m.FragmentDelay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(m.FragmentDelay):
				}
			} else if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}

func (m *Model) nextReply() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Replies) == 0 {
		return ""
	}
	r := m.Replies[m.next%len(m.Replies)]
	m.next++
	return r
}

// Evaluate scores by how much the user said. Deterministic for a given history.
func (m *Model) Evaluate(ctx context.Context, history []models.Turn) (models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return models.Evaluation{}, err
	}

	var turns, words int
	for _, t := range history {
		if t.Sender != models.SenderUser {
			continue
		}
		turns++
		words += len(strings.Fields(t.Text))
	}

	eval := models.Evaluation{
		Score:    float64(40 + turns*5 + words),
		Feedback: "أداء جيد. حاول استخدام جمل أطول وتنويع المفردات في المحادثة القادمة.",
	}
	if turns == 0 {
		eval.Score = 0
		eval.Feedback = "لم تشارك في المحادثة. حاول الإجابة عن أسئلة الممتحن في المرة القادمة."
	}
	return eval.ClampScore(), nil
}

// Speak returns a sine tone whose length follows the text length.
func (m *Model) Speak(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.ErrNoAudio
	}

	ms := min(len([]rune(text))*msPerRune, maxToneMs)
	n := sampleRate * ms / 1000
	buf := make([]byte, n*2)
	for i := range n {
		v := toneAmp * math.Sin(2*math.Pi*toneHz*float64(i)/sampleRate)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return buf, nil
}
