package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/capture"
	"ai-speaking-practice/internal/service/session"
)

var (
	examinerLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true).Render("Prüfer")
	userLabel     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true).Render("Sie")
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	interimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	listenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	scoreStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("246")).
			Padding(0, 1)
)

// renderer prints transcript changes incrementally. Streaming replies are
// written as deltas so fragments appear as they arrive.
type renderer struct {
	out io.Writer

	mu          sync.Mutex
	printed     map[int64]bool
	streamingID int64
	streamed    string
	status      string
	evalShown   string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, printed: make(map[int64]bool)}
}

func (r *renderer) render(s session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.renderCapture(s.Capture)

	present := false
	for _, turn := range s.Transcript {
		if turn.ID == r.streamingID {
			present = true
		}
		if r.printed[turn.ID] {
			continue
		}
		r.renderTurn(turn)
	}
	if r.streamingID != 0 && !present {
		// An empty reply removes its placeholder.
		fmt.Fprintln(r.out)
		r.streamingID, r.streamed = 0, ""
	}

	if s.Evaluation != nil && r.evalShown != s.SessionID {
		r.evalShown = s.SessionID
		fmt.Fprintln(r.out, renderEvaluation(*s.Evaluation))
	}
}

func (r *renderer) renderTurn(turn models.Turn) {
	if turn.ID == r.streamingID {
		if !strings.HasPrefix(turn.Text, r.streamed) {
			// The partial reply was replaced, typically by an error text.
			fmt.Fprintln(r.out)
			r.streamingID, r.streamed = 0, ""
			r.printTurn(turn)
			return
		}
		fmt.Fprint(r.out, turn.Text[len(r.streamed):])
		r.streamed = turn.Text
		if !turn.Streaming {
			fmt.Fprintln(r.out)
			r.printed[turn.ID] = true
			r.streamingID, r.streamed = 0, ""
		}
		return
	}

	if turn.Streaming {
		r.streamingID = turn.ID
		r.streamed = turn.Text
		fmt.Fprintf(r.out, "%s: %s", examinerLabel, turn.Text)
		return
	}
	r.printTurn(turn)
}

func (r *renderer) printTurn(turn models.Turn) {
	r.printed[turn.ID] = true
	fmt.Fprintln(r.out, formatTurn(turn))
}

func (r *renderer) renderCapture(st capture.Status) {
	var line string
	switch {
	case st.Err != nil:
		line = errorStyle.Render(st.Message())
	case st.State == capture.StateListening && st.Interim != "":
		line = interimStyle.Render("… " + st.Interim)
	case st.State == capture.StateListening:
		line = listenStyle.Render("● Ich höre zu …")
	}
	if line == "" || line == r.status {
		r.status = line
		return
	}
	r.status = line
	if r.streamingID != 0 {
		return
	}
	fmt.Fprintln(r.out, line)
}

func formatTurn(turn models.Turn) string {
	label := examinerLabel
	if turn.Sender == models.SenderUser {
		label = userLabel
	}
	text := turn.Text
	if turn.Text == session.DialogueErrorText || turn.Text == session.EvaluationErrorText {
		text = errorStyle.Render(text)
	}
	return fmt.Sprintf("%s: %s", label, text)
}

func renderEvaluation(e models.Evaluation) string {
	return scoreStyle.Render(fmt.Sprintf("Ergebnis: %.0f/100\n\n%s", e.Score, e.Feedback))
}

func helpText() string {
	return helpStyle.Render(strings.Join([]string{
		"/mic    Aufnahme starten oder beenden",
		"/start  neue Sitzung beginnen",
		"/end    Sitzung beenden und bewerten",
		"/quit   beenden",
		"Jede andere Eingabe wird als Antwort gesendet.",
	}, "\n"))
}
