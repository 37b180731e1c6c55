// Package config loads service and client configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the full process configuration.
type Configuration struct {
	Service       ServiceConfig
	Model         ModelConfig
	Kafka         KafkaConfig
	Capture       CaptureConfig
	Client        ClientConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds HTTP server settings.
type ServiceConfig struct {
	Principal    string
	HTTPAddress  string
	MetricsAddr  string
	EndpointPath string
}

// ModelConfig selects and configures the hosted model.
type ModelConfig struct {
	Provider       string // gemini, mock
	APIKey         string
	ChatModel      string
	EvalModel      string
	TTSModel       string
	Voice          string
	RequestTimeout time.Duration
}

// KafkaConfig holds conversation event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTurns       string
	TopicEvaluations string
}

// CaptureConfig configures speech capture in the practice client.
type CaptureConfig struct {
	Provider           string // google, mock
	LanguageCode       string
	SampleRateHz       int
	InterimResults     bool
	AudioEncoding      string
	SilenceTimeout     time.Duration
	SpeechStartTimeout time.Duration
	MaxAudioBytes      int64
	MaxDuration        time.Duration
}

// ClientConfig configures the practice client.
type ClientConfig struct {
	ServerURL string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and the environment, applying defaults.
func Load() *Configuration {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	return &Configuration{
		Service: ServiceConfig{
			Principal:    envOrDefault("SERVICE_PRINCIPAL", "svc-speaking-practice"),
			HTTPAddress:  envOrDefault("HTTP_ADDRESS", ":8080"),
			MetricsAddr:  envOrDefault("METRICS_ADDRESS", ":9090"),
			EndpointPath: envOrDefault("API_PATH", "/api/gemini"),
		},
		Model: ModelConfig{
			Provider:       envOrDefault("MODEL_PROVIDER", "mock"),
			APIKey:         os.Getenv("GEMINI_API_KEY"),
			ChatModel:      envOrDefault("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
			EvalModel:      envOrDefault("GEMINI_EVAL_MODEL", "gemini-2.5-flash"),
			TTSModel:       envOrDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			Voice:          envOrDefault("GEMINI_TTS_VOICE", "Kore"),
			RequestTimeout: envDuration("MODEL_REQUEST_TIMEOUT", 60*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:          envBool("KAFKA_ENABLED", false),
			Brokers:          envList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicTurns:       envOrDefault("KAFKA_TOPIC_TURNS", "practice.turn.completed"),
			TopicEvaluations: envOrDefault("KAFKA_TOPIC_EVALUATIONS", "practice.session.evaluated"),
		},
		Capture: CaptureConfig{
			Provider:           envOrDefault("CAPTURE_PROVIDER", "mock"),
			LanguageCode:       envOrDefault("CAPTURE_LANGUAGE_CODE", "de-DE"),
			SampleRateHz:       envInt("CAPTURE_SAMPLE_RATE_HZ", 16000),
			InterimResults:     envBool("CAPTURE_INTERIM_RESULTS", true),
			AudioEncoding:      envOrDefault("CAPTURE_AUDIO_ENCODING", "LINEAR16"),
			SilenceTimeout:     envDuration("CAPTURE_SILENCE_TIMEOUT", 1500*time.Millisecond),
			SpeechStartTimeout: envDuration("CAPTURE_SPEECH_START_TIMEOUT", 8*time.Second),
			MaxAudioBytes:      envInt64("CAPTURE_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:        envDuration("CAPTURE_MAX_DURATION", 2*time.Minute),
		},
		Client: ClientConfig{
			ServerURL: envOrDefault("PRACTICE_SERVER_URL", "http://localhost:8080/api/gemini"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
