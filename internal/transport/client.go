// Package transport is the practice client's connection to the backend endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/sse"
)

// FallbackFeedback is returned by Evaluate when no evaluation could be obtained.
const FallbackFeedback = "عذرًا، حدث خطأ أثناء إنشاء التقييم. يرجى التحقق من اتصالك بالإنترنت والمحاولة مرة أخرى."

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected response status")

// Client posts typed requests to the practice endpoint.
type Client struct {
	url        string
	mu         sync.RWMutex
	sessionID  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a client for the endpoint at url.
func New(url, sessionID string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		sessionID: sessionID,
		// no overall timeout: dialogue streams stay open until the reply ends
		httpClient: &http.Client{},
		logger:     logging.WithComponent("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSession changes the session ID sent with subsequent requests.
func (c *Client) SetSession(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// Session returns the current session ID.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Stream is a single-pass sequence of reply fragments.
type Stream struct {
	body   io.ReadCloser
	reader *sse.Reader
	logger zerolog.Logger
}

// NewStream reads reply fragments from an event-stream body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		reader: sse.NewReader(body),
		logger: logging.WithComponent("transport"),
	}
}

// Next returns the next non-empty fragment, or io.EOF when the reply is complete.
// Malformed frames are skipped.
func (s *Stream) Next() (string, error) {
	for {
		data, err := s.reader.Next()
		if err != nil {
			return "", err
		}
		var frag models.ChatFragment
		if err := json.Unmarshal([]byte(data), &frag); err != nil {
			s.logger.Warn().Err(err).Str("frame", data).Msg("Skipping malformed stream frame")
			continue
		}
		if frag.Text == "" {
			continue
		}
		return frag.Text, nil
	}
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

// DialogueTurn requests the next examiner reply. The greeting turn is pruned from history.
func (c *Client) DialogueTurn(ctx context.Context, history []models.Turn, newText string) (*Stream, error) {
	resp, err := c.do(ctx, models.RequestChat, models.ChatPayload{
		History:        models.PruneGreeting(history),
		NewUserMessage: newText,
	})
	if err != nil {
		return nil, err
	}
	return NewStream(resp.Body), nil
}

// Evaluate requests the final evaluation. It never fails: any error yields a
// zero score with FallbackFeedback.
func (c *Client) Evaluate(ctx context.Context, history []models.Turn) models.Evaluation {
	fallback := models.Evaluation{Score: 0, Feedback: FallbackFeedback}

	resp, err := c.do(ctx, models.RequestEvaluate, models.EvaluatePayload{History: history})
	if err != nil {
		c.logger.Error().Err(err).Msg("Evaluation request failed")
		return fallback
	}
	defer resp.Body.Close()

	var eval models.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&eval); err != nil {
		c.logger.Error().Err(err).Msg("Failed to decode evaluation")
		return fallback
	}
	if eval.Feedback == "" {
		eval.Feedback = FallbackFeedback
	}
	return eval.ClampScore()
}

// Synthesize returns base64 PCM16 audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := c.do(ctx, models.RequestSpeak, models.SpeakPayload{TextToSpeak: text})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out models.SpeakResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode speech response: %w", err)
	}
	c.logger.Debug().
		Int("audioLen", len(out.Audio)).
		Dur("duration", time.Since(start)).
		Msg("Speech synthesized")
	return out.Audio, nil
}

// do posts the envelope and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, typ models.RequestType, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	body, err := json.Marshal(models.Request{Type: typ, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", typ, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := c.Session(); id != "" {
		req.Header.Set(models.SessionHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", typ, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s %d: %s", ErrStatus, typ, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
