// Command practice is the terminal client for Telc speaking practice.
//
// Usage:
//
//	go run ./cmd/practice -server http://localhost:8080/api/gemini
//
// Environment variables are the same as for the server; CAPTURE_PROVIDER
// selects "google" (microphone + Cloud Speech) or "mock" (scripted).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"ai-speaking-practice/internal/audio"
	"ai-speaking-practice/internal/config"
	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/service/capture"
	"ai-speaking-practice/internal/service/capture/google"
	"ai-speaking-practice/internal/service/capture/mock"
	"ai-speaking-practice/internal/service/playback"
	"ai-speaking-practice/internal/service/session"
	"ai-speaking-practice/internal/transport"
)

func main() {
	cfg := config.Load()

	serverURL := flag.String("server", cfg.Client.ServerURL, "practice API endpoint")
	provider := flag.String("capture", cfg.Capture.Provider, "speech capture provider (google, mock)")
	flag.Parse()

	// Logs go to stderr so they do not interleave with the transcript
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: "console",
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Capture.Provider = *provider
	recognizer, closeRecognizer := newRecognizer(ctx, cfg.Capture)
	defer closeRecognizer()

	ctrl := session.New(
		transport.New(*serverURL, ""),
		capture.NewSession(recognizer, capture.WithSilenceTimeout(cfg.Capture.SilenceTimeout)),
		playback.NewSession(newOutput),
	)
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close practice session")
		}
	}()

	r := newRenderer(os.Stdout)
	ctrl.Subscribe(r.render)
	fmt.Println(helpText())
	fmt.Println()
	r.render(ctrl.Snapshot())

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, ctrl, line); quit {
				return
			}
		}
	}
}

// runCommand executes one input line and reports whether the client should exit.
func runCommand(ctx context.Context, ctrl *session.Controller, line string) bool {
	line = strings.TrimSpace(line)

	var err error
	switch line {
	case "":
		return false
	case "/quit", "q":
		return true
	case "/help":
		fmt.Println(helpText())
		return false
	case "/mic":
		err = ctrl.ToggleCapture(ctx)
	case "/start":
		err = ctrl.StartSession(ctx)
	case "/end":
		err = ctrl.EndSession(ctx)
	default:
		err = ctrl.SubmitTurn(ctx, line)
	}

	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionClosed):
		fmt.Println(errorStyle.Render("Die Sitzung ist beendet. Mit /start beginnt eine neue."))
	case errors.Is(err, session.ErrSessionNotActive):
		fmt.Println(errorStyle.Render("Es läuft keine Sitzung. Mit /mic oder /start beginnen."))
	case errors.Is(err, session.ErrBusy):
		fmt.Println(errorStyle.Render("Bitte warten, der Prüfer antwortet noch."))
	default:
		// Capture and transport failures are already shown in the transcript.
		log.Debug().Err(err).Str("input", line).Msg("Command failed")
	}
	return false
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// newRecognizer returns the configured recognizer. A nil recognizer makes
// capture report itself unsupported.
func newRecognizer(ctx context.Context, cfg config.CaptureConfig) (capture.Recognizer, func()) {
	switch cfg.Provider {
	case "google":
		mic, err := audio.NewMicrophone(cfg.SampleRateHz)
		if err != nil {
			log.Warn().Err(err).Msg("Microphone unavailable, speech capture disabled")
			return nil, func() {}
		}
		rec, err := google.New(ctx, mic, google.Config{
			LanguageCode:       cfg.LanguageCode,
			SampleRateHz:       cfg.SampleRateHz,
			InterimResults:     cfg.InterimResults,
			AudioEncoding:      cfg.AudioEncoding,
			SpeechStartTimeout: cfg.SpeechStartTimeout,
			Limits: google.Limits{
				MaxAudioBytes: cfg.MaxAudioBytes,
				MaxDuration:   cfg.MaxDuration,
			},
		})
		if err != nil {
			mic.Close()
			log.Warn().Err(err).Msg("Speech client unavailable, speech capture disabled")
			return nil, func() {}
		}
		return rec, func() {
			if err := rec.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close speech client")
			}
			mic.Close()
		}
	default:
		return mock.New(), func() {}
	}
}

func newOutput(sampleRate int) (playback.Output, error) {
	speaker, err := audio.NewSpeaker(sampleRate)
	if err != nil {
		return nil, err
	}
	return speaker, nil
}
