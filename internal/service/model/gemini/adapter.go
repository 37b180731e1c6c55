// Package gemini implements model.Model on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/model"
)

// Config holds Gemini model configuration.
type Config struct {
	APIKey    string
	ChatModel string
	EvalModel string
	TTSModel  string
	Voice     string
}

// DefaultConfig returns the default model selection.
func DefaultConfig() Config {
	return Config{
		ChatModel: "gemini-2.5-flash",
		EvalModel: "gemini-2.5-flash",
		TTSModel:  "gemini-2.5-flash-preview-tts",
		Voice:     "Kore",
	}
}

// Adapter talks to Gemini through the genai SDK.
type Adapter struct {
	client *genai.Client
	config Config
}

var _ model.Model = (*Adapter)(nil)

// New creates a Gemini adapter.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	def := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.EvalModel == "" {
		cfg.EvalModel = def.EvalModel
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = def.TTSModel
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	log.Info().
		Str("chatModel", cfg.ChatModel).
		Str("evalModel", cfg.EvalModel).
		Str("ttsModel", cfg.TTSModel).
		Str("voice", cfg.Voice).
		Msg("Gemini model adapter initialized")

	return &Adapter{client: client, config: cfg}, nil
}

// StreamReply opens a chat seeded with the pruned history and streams the reply.
func (a *Adapter) StreamReply(ctx context.Context, history []models.Turn, newUserMessage string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		chat, err := a.client.Chats.Create(ctx, a.config.ChatModel, chatConfig(), toContents(history))
		if err != nil {
			yield("", fmt.Errorf("gemini: create chat: %w", err))
			return
		}

		for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: newUserMessage}) {
			if err != nil {
				yield("", fmt.Errorf("gemini: stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Evaluate asks for a JSON {score, feedback} object.
func (a *Adapter) Evaluate(ctx context.Context, history []models.Turn) (models.Evaluation, error) {
	prompt := evaluationPrompt(models.FormatConversation(history))

	resp, err := a.client.Models.GenerateContent(ctx, a.config.EvalModel, genai.Text(prompt), evaluationConfig())
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("gemini: evaluate: %w", err)
	}
	return parseEvaluation(resp.Text())
}

// Speak synthesizes text with the prebuilt voice and returns raw PCM bytes.
func (a *Adapter) Speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.config.TTSModel, genai.Text(text), speechConfig(a.config.Voice))
	if err != nil {
		return nil, fmt.Errorf("gemini: speak: %w", err)
	}
	audio := inlineAudio(resp)
	if len(audio) == 0 {
		return nil, model.ErrNoAudio
	}
	return audio, nil
}

func chatConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0.7),
		TopP:              genai.Ptr[float32](0.95),
		TopK:              genai.Ptr[float32](64),
		MaxOutputTokens:   8192,
		SystemInstruction: genai.NewContentFromText(examinerInstruction, genai.RoleUser),
	}
}

func evaluationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.3),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"score": {
					Type:        genai.TypeNumber,
					Description: "The user's final score out of 100.",
				},
				"feedback": {
					Type:        genai.TypeString,
					Description: "Constructive feedback for the user in Arabic.",
				},
			},
			Required: []string{"score", "feedback"},
		},
	}
}

func speechConfig(voice string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
}

// toContents drops the greeting and maps senders to chat roles.
func toContents(history []models.Turn) []*genai.Content {
	pruned := models.PruneGreeting(history)
	contents := make([]*genai.Content, 0, len(pruned))
	for _, t := range pruned {
		role := genai.Role(genai.RoleModel)
		if t.Sender == models.SenderUser {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func parseEvaluation(text string) (models.Evaluation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Evaluation{}, model.ErrEmptyResponse
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var eval models.Evaluation
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &eval); err != nil {
		return models.Evaluation{}, fmt.Errorf("gemini: decode evaluation: %w", err)
	}
	return eval.ClampScore(), nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}
