package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ai-speaking-practice/internal/api/practice"
	"ai-speaking-practice/internal/app"
	"ai-speaking-practice/internal/config"
	"ai-speaking-practice/internal/events"
	router "ai-speaking-practice/internal/http"
	"ai-speaking-practice/internal/observability"
	"ai-speaking-practice/internal/schema"
	"ai-speaking-practice/internal/service/model"
	"ai-speaking-practice/internal/service/model/gemini"
	"ai-speaking-practice/internal/service/model/mock"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mdl, err := newModel(ctx, cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Model.Provider).Msg("Failed to create model")
	}

	// Conversation events go to separate topics for turns and evaluations
	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTurns:       cfg.Kafka.TopicTurns,
		TopicEvaluations: cfg.Kafka.TopicEvaluations,
		Principal:        cfg.Service.Principal,
	})
	defer publisher.Close()

	handler := practice.NewHandler(practice.Config{
		Model:          mdl,
		Validator:      schema.New(),
		Publisher:      publisher,
		Metrics:        application.Metrics,
		Principal:      cfg.Service.Principal,
		RequestTimeout: cfg.Model.RequestTimeout,
	})

	obs := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)
	obs.Start()

	server := &http.Server{
		Addr:              cfg.Service.HTTPAddress,
		Handler:           router.NewRouter(application, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	go func() {
		log.Info().
			Str("addr", cfg.Service.HTTPAddress).
			Str("path", cfg.Service.EndpointPath).
			Msg("Speaking practice API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	application.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	handler.Close()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown failed")
	}
}

func newModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:    cfg.APIKey,
			ChatModel: cfg.ChatModel,
			EvalModel: cfg.EvalModel,
			TTSModel:  cfg.TTSModel,
			Voice:     cfg.Voice,
		})
	default:
		log.Warn().Str("provider", cfg.Provider).Msg("Using mock model")
		return mock.New(), nil
	}
}
