package gemini

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"ai-speaking-practice/internal/models"
	"ai-speaking-practice/internal/service/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ChatModel != "gemini-2.5-flash" {
		t.Errorf("expected chat model gemini-2.5-flash, got %s", cfg.ChatModel)
	}
	if cfg.TTSModel != "gemini-2.5-flash-preview-tts" {
		t.Errorf("expected tts model gemini-2.5-flash-preview-tts, got %s", cfg.TTSModel)
	}
	if cfg.Voice != "Kore" {
		t.Errorf("expected voice Kore, got %s", cfg.Voice)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(t.Context(), Config{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestToContents(t *testing.T) {
	history := []models.Turn{
		{ID: models.GreetingTurnID, Text: "Willkommen", Sender: models.SenderAI},
		{ID: 2, Text: "Hallo! Wie heißen Sie?", Sender: models.SenderAI},
		{ID: 3, Text: "Ich heiße Omar.", Sender: models.SenderUser},
	}

	contents := toContents(history)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents after pruning greeting, got %d", len(contents))
	}

	tests := []struct {
		role string
		text string
	}{
		{string(genai.RoleModel), "Hallo! Wie heißen Sie?"},
		{string(genai.RoleUser), "Ich heiße Omar."},
	}
	for i, tt := range tests {
		if contents[i].Role != tt.role {
			t.Errorf("content %d: expected role %s, got %s", i, tt.role, contents[i].Role)
		}
		if len(contents[i].Parts) != 1 || contents[i].Parts[0].Text != tt.text {
			t.Errorf("content %d: unexpected parts %+v", i, contents[i].Parts)
		}
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantScore float64
		wantErr   error
	}{
		{"plain json", `{"score": 78, "feedback": "جيد"}`, 78, nil},
		{"fenced json", "```json\n{\"score\": 64.5, \"feedback\": \"x\"}\n```", 64.5, nil},
		{"clamped", `{"score": 130, "feedback": "x"}`, 100, nil},
		{"empty", "   ", 0, model.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEvaluation(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("expected score %v, got %v", tt.wantScore, got.Score)
			}
		})
	}
}

func TestParseEvaluation_Malformed(t *testing.T) {
	if _, err := parseEvaluation("not json"); err == nil {
		t.Error("expected decode error")
	}
}

func TestEvaluationPrompt(t *testing.T) {
	p := evaluationPrompt("User: Hallo")
	if !strings.Contains(p, "Conversation:\nUser: Hallo") {
		t.Errorf("prompt does not embed the conversation: %q", p)
	}
	if !strings.Contains(p, "Arabic") {
		t.Error("prompt should request Arabic feedback")
	}
}

func TestConfigs(t *testing.T) {
	chat := chatConfig()
	if *chat.Temperature != 0.7 || *chat.TopP != 0.95 || *chat.TopK != 64 || chat.MaxOutputTokens != 8192 {
		t.Errorf("unexpected chat sampling config %+v", chat)
	}
	if chat.SystemInstruction == nil {
		t.Error("expected a system instruction")
	}

	eval := evaluationConfig()
	if eval.ResponseMIMEType != "application/json" {
		t.Errorf("expected json mime type, got %s", eval.ResponseMIMEType)
	}
	if len(eval.ResponseSchema.Required) != 2 {
		t.Errorf("expected score and feedback to be required, got %v", eval.ResponseSchema.Required)
	}

	speech := speechConfig("Kore")
	if got := speech.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("expected voice Kore, got %s", got)
	}
}

func TestInlineAudio(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm", Data: []byte{1, 2, 3, 4}}},
			}},
		}},
	}
	if got := inlineAudio(resp); len(got) != 4 {
		t.Errorf("expected 4 audio bytes, got %d", len(got))
	}
	if got := inlineAudio(&genai.GenerateContentResponse{}); got != nil {
		t.Errorf("expected nil audio, got %v", got)
	}
	if got := inlineAudio(nil); got != nil {
		t.Errorf("expected nil audio for nil response, got %v", got)
	}
}
