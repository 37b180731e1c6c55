// Package sse writes and reads server-sent event streams.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer emits data-only SSE frames and flushes after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// New prepares w for streaming. It sets the event-stream headers but does not
// write the status line, so callers can still fail with a JSON error.
func New(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &Writer{w: w, flusher: f}, nil
}

// Send marshals data and writes it as a single "data:" frame.
func (sw *Writer) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
