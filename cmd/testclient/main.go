package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/observability/logging"
	"ai-speaking-practice/internal/service/playback"
	"ai-speaking-practice/internal/transport"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080/api/gemini", "practice API endpoint")
	message := flag.String("message", "Ich heiße Anna und wohne in Köln.", "user utterance to send")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logging.Init(logCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sessionID := uuid.NewString()
	client := transport.New(*serverURL, sessionID)
	log.Info().Str("server", *serverURL).Str("sessionId", sessionID).Msg("Connected to server")

	history := []models.Turn{
		{ID: models.GreetingTurnID, Text: "Greeting", Sender: models.SenderAI},
		{ID: 2, Text: "Sehr gut! Fangen wir an. Erzählen Sie mir bitte ein bisschen über sich.", Sender: models.SenderAI},
	}

	stream, err := client.DialogueTurn(ctx, history, *message)
	if err != nil {
		log.Fatal().Err(err).Msg("Dialogue turn failed")
	}

	var reply strings.Builder
	fragments := 0
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Stream failed")
		}
		fragments++
		reply.WriteString(frag)
		fmt.Print(frag)
	}
	fmt.Println()
	stream.Close()
	log.Info().Int("fragments", fragments).Int("replyLen", reply.Len()).Msg("Received reply")

	history = append(history,
		models.Turn{ID: 3, Text: *message, Sender: models.SenderUser},
		models.Turn{ID: 4, Text: reply.String(), Sender: models.SenderAI},
	)
	eval := client.Evaluate(ctx, history)
	log.Info().Float64("score", eval.Score).Str("feedback", eval.Feedback).Msg("Received evaluation")

	audio, err := client.Synthesize(ctx, reply.String())
	if err != nil {
		log.Fatal().Err(err).Msg("Synthesis failed")
	}
	samples, err := playback.Decode(audio)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid audio payload")
	}
	log.Info().
		Int("samples", len(samples)).
		Dur("duration", time.Duration(len(samples))*time.Second/playback.SampleRate).
		Msg("Received speech")
}
