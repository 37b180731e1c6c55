// Package events publishes conversation events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/observability/metrics"
)

// Publisher writes completed turns and session evaluations to separate topics.
// When disabled it only logs the events.
type Publisher struct {
	writerTurns       *kafka.Writer
	writerEvaluations *kafka.Writer
	principal         string
	topicTurns        string
	topicEvaluations  string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTurns       string
	TopicEvaluations string
	Principal        string
	Enabled          bool
}

// New creates a publisher. A nil or disabled config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTurns:       cfg.TopicTurns,
			topicEvaluations: cfg.TopicEvaluations,
			metrics:          m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurns", cfg.TopicTurns).
		Str("topicEvaluations", cfg.TopicEvaluations).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTurns:       newWriter(cfg.Brokers, cfg.TopicTurns, transport),
		writerEvaluations: newWriter(cfg.Brokers, cfg.TopicEvaluations, transport),
		principal:         cfg.Principal,
		topicTurns:        cfg.TopicTurns,
		topicEvaluations:  cfg.TopicEvaluations,
		enabled:           true,
		metrics:           m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Principal returns the service principal stamped on every event.
func (p *Publisher) Principal() string {
	return p.principal
}

// PublishTurn publishes a completed turn keyed by session ID.
func (p *Publisher) PublishTurn(ctx context.Context, event models.TurnCompleted) error {
	if event.EventType == "" {
		event.EventType = models.EventTurnCompleted
	}
	if event.Principal == "" {
		event.Principal = p.principal
	}
	return p.publish(ctx, p.writerTurns, p.topicTurns, event.EventType, event.SessionID, event)
}

// PublishEvaluation publishes a session evaluation keyed by session ID.
func (p *Publisher) PublishEvaluation(ctx context.Context, event models.SessionEvaluated) error {
	if event.EventType == "" {
		event.EventType = models.EventSessionEvaluated
	}
	if event.Principal == "" {
		event.Principal = p.principal
	}
	return p.publish(ctx, p.writerEvaluations, p.topicEvaluations, event.EventType, event.SessionID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	if p.writerEvaluations != nil {
		if e := p.writerEvaluations.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing evaluations writer")
			err = e
		}
	}
	return err
}
