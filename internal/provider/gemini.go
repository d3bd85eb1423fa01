package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoiceName   = "Kore"
)

// ErrNoAudio is returned when a speech response carries no audio payload.
var ErrNoAudio = errors.New("no audio in speech response")

// GeminiConfig configures the genai client.
type GeminiConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

func newClient(ctx context.Context, cfg GeminiConfig) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// Gemini is the Reasoner backed by the Gemini API.
type Gemini struct {
	client *genai.Client
}

var _ Reasoner = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client}, nil
}

// DialGemini is the production Dialer.
func DialGemini(ctx context.Context, apiKey string) (Reasoner, error) {
	return NewGemini(ctx, GeminiConfig{APIKey: apiKey})
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(req.ThinkingBudget)}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", req.Model, err)
	}
	return resp.Text(), nil
}

// Probe checks that a model exists and the credential can see it.
func (g *Gemini) Probe(ctx context.Context, model string) error {
	if _, err := g.client.Models.Get(ctx, model, nil); err != nil {
		return fmt.Errorf("gemini %s: %w", model, err)
	}
	return nil
}

// GeminiSpeech synthesizes speech with a Gemini TTS model.
type GeminiSpeech struct {
	client *genai.Client
	model  string
	voice  string
}

func NewGeminiSpeech(ctx context.Context, cfg GeminiConfig, model, voice string) (*GeminiSpeech, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultSpeechModel
	}
	if voice == "" {
		voice = DefaultVoiceName
	}
	return &GeminiSpeech{client: client, model: model, voice: voice}, nil
}

// Synthesize returns raw 16-bit PCM for text.
func (s *GeminiSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini speech: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoAudio
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, ErrNoAudio
}
