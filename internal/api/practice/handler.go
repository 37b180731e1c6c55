// Package practice serves the single discriminated practice endpoint.
package practice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/observability"
	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/observability/metrics"
	"ai-speaking-practice/internal/schema"
	"ai-speaking-practice/internal/service/model"
	"ai-speaking-practice/internal/sse"
)

const (
	maxBodyBytes   = 1 << 20
	publishTimeout = 5 * time.Second
)

// Publisher receives conversation events.
type Publisher interface {
	PublishTurn(ctx context.Context, event models.TurnCompleted) error
	PublishEvaluation(ctx context.Context, event models.SessionEvaluated) error
}

// Handler dispatches chat, evaluate and speak requests to the model.
type Handler struct {
	model     model.Model
	validator *schema.Validator
	publisher Publisher
	metrics   *metrics.Metrics
	principal string
	timeout   time.Duration

	wg sync.WaitGroup
}

// Config configures a Handler. Publisher and Metrics may be nil.
type Config struct {
	Model          model.Model
	Validator      *schema.Validator
	Publisher      Publisher
	Metrics        *metrics.Metrics
	Principal      string
	RequestTimeout time.Duration
}

// NewHandler creates the endpoint handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		model:     cfg.Model,
		validator: cfg.Validator,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		principal: cfg.Principal,
		timeout:   cfg.RequestTimeout,
	}
	if h.validator == nil {
		h.validator = schema.New()
	}
	if h.metrics == nil {
		h.metrics = metrics.DefaultMetrics
	}
	return h
}

// Close waits for in-flight event publishes.
func (h *Handler) Close() {
	h.wg.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req models.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	w.Header().Set(observability.RequestTypeHeader, string(req.Type))

	sessionID := r.Header.Get(models.SessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := logging.WithRequest(middleware.GetReqID(r.Context()), sessionID, string(req.Type))

	switch req.Type {
	case models.RequestChat:
		h.handleChat(w, r, logger, sessionID, req.Payload)
	case models.RequestEvaluate:
		h.handleEvaluate(w, r, logger, sessionID, req.Payload)
	case models.RequestSpeak:
		h.handleSpeak(w, r, logger, req.Payload)
	default:
		writeError(w, http.StatusBadRequest, "Invalid request type", "")
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, sessionID string, raw json.RawMessage) {
	payload, err := h.validator.Chat(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}

	ctx, cancel := h.modelContext(r.Context())
	defer cancel()

	start := time.Now()
	h.metrics.RecordStreamStart()

	var (
		sw        *sse.Writer
		reply     []byte
		fragments int
		streamErr error
	)
	for text, err := range h.model.StreamReply(ctx, payload.History, payload.NewUserMessage) {
		if err != nil {
			streamErr = err
			break
		}
		if text == "" {
			continue
		}
		if sw == nil {
			if sw, err = sse.New(w); err != nil {
				streamErr = err
				break
			}
			w.WriteHeader(http.StatusOK)
			h.metrics.RecordFirstFragment(time.Since(start).Seconds())
		}
		if err := sw.Send(models.ChatFragment{Text: text}); err != nil {
			streamErr = err
			break
		}
		reply = append(reply, text...)
		fragments++
		h.metrics.RecordFragment()
	}

	abandoned := r.Context().Err() != nil
	h.metrics.RecordStreamEnd(abandoned)

	if streamErr != nil {
		h.metrics.RecordModelError("chat")
		if sw == nil {
			logger.Error().Err(streamErr).Msg("Chat stream failed before first fragment")
			writeError(w, http.StatusInternalServerError, "Internal server error", streamErr.Error())
			return
		}
		logger.Error().Err(streamErr).Int("fragments", fragments).Msg("Chat stream interrupted")
		return
	}

	if sw == nil {
		// empty reply: an event stream with no frames
		if _, err := sse.New(w); err == nil {
			w.WriteHeader(http.StatusOK)
		}
	}

	logger.Info().
		Int("fragments", fragments).
		Int("historySize", len(payload.History)).
		Dur("duration", time.Since(start)).
		Msg("Chat reply streamed")

	h.publish(func(ctx context.Context) error {
		if h.publisher == nil {
			return nil
		}
		return h.publisher.PublishTurn(ctx, models.TurnCompleted{
			EventType:   models.EventTurnCompleted,
			SessionID:   sessionID,
			Principal:   h.principal,
			Timestamp:   time.Now().UnixMilli(),
			UserText:    payload.NewUserMessage,
			ReplyText:   string(reply),
			HistorySize: len(payload.History),
			Fragments:   fragments,
			DurationMs:  time.Since(start).Milliseconds(),
		})
	}, logger)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, sessionID string, raw json.RawMessage) {
	payload, err := h.validator.Evaluate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}

	ctx, cancel := h.modelContext(r.Context())
	defer cancel()

	eval, err := h.model.Evaluate(ctx, payload.History)
	if err != nil {
		h.metrics.RecordModelError("evaluate")
		logger.Error().Err(err).Msg("Evaluation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	eval = eval.ClampScore()
	h.metrics.RecordEvaluation(eval.Score)

	logger.Info().Float64("score", eval.Score).Msg("Session evaluated")
	writeJSON(w, http.StatusOK, eval)

	userTurns := 0
	for _, t := range payload.History {
		if t.Sender == models.SenderUser {
			userTurns++
		}
	}
	h.publish(func(ctx context.Context) error {
		if h.publisher == nil {
			return nil
		}
		return h.publisher.PublishEvaluation(ctx, models.SessionEvaluated{
			EventType: models.EventSessionEvaluated,
			SessionID: sessionID,
			Principal: h.principal,
			Timestamp: time.Now().UnixMilli(),
			Score:     eval.Score,
			Feedback:  eval.Feedback,
			UserTurns: userTurns,
		})
	}, logger)
}

func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, raw json.RawMessage) {
	payload, err := h.validator.Speak(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}

	ctx, cancel := h.modelContext(r.Context())
	defer cancel()

	audio, err := h.model.Speak(ctx, payload.TextToSpeak)
	if err == nil && len(audio) == 0 {
		err = model.ErrNoAudio
	}
	if err != nil {
		h.metrics.RecordModelError("speak")
		logger.Error().Err(err).Msg("Speech synthesis failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	h.metrics.RecordSpeech(len(audio))

	logger.Debug().Int("bytes", len(audio)).Msg("Speech synthesized")
	writeJSON(w, http.StatusOK, models.SpeakResponse{Audio: base64.StdEncoding.EncodeToString(audio)})
}

func (h *Handler) modelContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(parent, h.timeout)
	}
	return context.WithCancel(parent)
}

// publish runs fn in the background, detached from the request lifetime.
func (h *Handler) publish(fn func(ctx context.Context) error, logger zerolog.Logger) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("Failed to publish conversation event")
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Details: details})
}
