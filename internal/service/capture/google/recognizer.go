// Package google provides a Google Cloud Speech-to-Text streaming recognizer.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/service/capture"
)

// AudioSource delivers PCM chunks until ctx is done or Stop is called, then
// closes the channel.
type AudioSource interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

// Limits bound a single capture cycle.
type Limits struct {
	MaxAudioBytes int64         // max audio sent per cycle
	MaxDuration   time.Duration // max cycle duration
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~160 seconds at 16kHz 16-bit mono)
		MaxDuration:   2 * time.Minute,
	}
}

// Config holds recognition settings.
type Config struct {
	LanguageCode       string
	SampleRateHz       int
	InterimResults     bool
	AudioEncoding      string
	SpeechStartTimeout time.Duration
	Limits             Limits
}

// DefaultConfig returns the German practice defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:       "de-DE",
		SampleRateHz:       16000,
		InterimResults:     true,
		AudioEncoding:      "LINEAR16",
		SpeechStartTimeout: 8 * time.Second,
		Limits:             DefaultLimits(),
	}
}

type dialFunc func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// Recognizer implements capture.Recognizer on streaming recognition.
type Recognizer struct {
	dial   dialFunc
	close  func() error
	source AudioSource
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a recognizer fed by source.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, source AudioSource, cfg Config) (*Recognizer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	r := newRecognizer(func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return c.StreamingRecognize(ctx)
	}, source, cfg)
	r.close = c.Close
	return r, nil
}

func newRecognizer(dial dialFunc, source AudioSource, cfg Config) *Recognizer {
	return &Recognizer{
		dial:   dial,
		source: source,
		cfg:    cfg,
		logger: logging.WithComponent("google-recognizer"),
	}
}

// Start opens a recognition stream and begins sending microphone audio.
func (r *Recognizer) Start(ctx context.Context, h capture.Handler) error {
	cycleCtx, cancel := context.WithCancel(ctx)

	stream, err := r.dial(cycleCtx)
	if err != nil {
		cancel()
		return classify(err)
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(r.cfg),
		},
	}); err != nil {
		cancel()
		return classify(err)
	}

	chunks, err := r.source.Start(cycleCtx)
	if err != nil {
		cancel()
		_ = stream.CloseSend()
		return fmt.Errorf("%w: %v", capture.ErrAudioCapture, err)
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	go r.sendAudio(stream, chunks)
	go r.receive(cycleCtx, cancel, stream, h)
	return nil
}

// Stop ends audio capture. Pending results are still delivered before OnEnd.
func (r *Recognizer) Stop() error {
	return r.source.Stop()
}

// Close releases the speech client.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	if r.close != nil {
		return r.close()
	}
	return nil
}

func (r *Recognizer) sendAudio(stream speechpb.Speech_StreamingRecognizeClient, chunks <-chan []byte) {
	defer stream.CloseSend()

	start := time.Now()
	var sent int64
	limited := false
	for chunk := range chunks {
		if limited {
			continue
		}
		sent += int64(len(chunk))
		if reason := r.cfg.Limits.exceeded(sent, time.Since(start)); reason != "" {
			r.logger.Warn().Str("reason", reason).Msg("Capture limit exceeded, stopping")
			limited = true
			_ = r.source.Stop()
			continue
		}
		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
		}); err != nil {
			// Recv reports the stream error.
			_ = r.source.Stop()
			return
		}
	}
}

func (r *Recognizer) receive(ctx context.Context, cancel context.CancelFunc, stream speechpb.Speech_StreamingRecognizeClient, h capture.Handler) {
	defer cancel()
	defer h.OnEnd()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() == nil || status.Code(err) != codes.Canceled {
				h.OnError(classify(err))
			}
			_ = r.source.Stop()
			return
		}
		if resp.GetError() != nil {
			h.OnError(classify(status.ErrorProto(resp.GetError())))
			_ = r.source.Stop()
			return
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_TIMEOUT {
			h.OnError(capture.ErrNoSpeech)
			_ = r.source.Stop()
			continue
		}
		if ev, ok := toResultEvent(resp); ok {
			h.OnResult(ev)
		}
	}
}

func streamingConfig(cfg Config) *speechpb.StreamingRecognitionConfig {
	sc := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
			SampleRateHertz:            int32(cfg.SampleRateHz),
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
		},
		InterimResults: cfg.InterimResults,
	}
	if cfg.SpeechStartTimeout > 0 {
		sc.EnableVoiceActivityEvents = true
		sc.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
			SpeechStartTimeout: durationpb.New(cfg.SpeechStartTimeout),
		}
	}
	return sc
}

func toResultEvent(resp *speechpb.StreamingRecognizeResponse) (capture.ResultEvent, bool) {
	var ev capture.ResultEvent
	for _, res := range resp.GetResults() {
		alts := res.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		ev.Results = append(ev.Results, capture.Result{
			Transcript: alts[0].GetTranscript(),
			Final:      res.GetIsFinal(),
		})
	}
	return ev, len(ev.Results) > 0
}

func (l Limits) exceeded(bytes int64, elapsed time.Duration) string {
	if l.MaxAudioBytes > 0 && bytes > l.MaxAudioBytes {
		return fmt.Sprintf("max audio bytes exceeded: %d > %d", bytes, l.MaxAudioBytes)
	}
	if l.MaxDuration > 0 && elapsed > l.MaxDuration {
		return fmt.Sprintf("max duration exceeded: %v > %v", elapsed.Round(time.Millisecond), l.MaxDuration)
	}
	return ""
}

// classify maps gRPC failures to capture errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", capture.ErrNetwork, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", capture.ErrNetwork, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}
	return err
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
