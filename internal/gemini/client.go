// Package gemini builds the Google GenAI client shared by speech synthesis and
// the assist services, plus helpers for the request shapes they send.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ContentGenerator is the generateContent surface of *genai.Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	// Endpoint overrides the API base URL; empty uses the public Gemini API.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewClient returns the models service of a Gemini API client.
func NewClient(ctx context.Context, cfg Config) (*genai.Models, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimSpace(cfg.Endpoint),
		},
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client.Models, nil
}

// UserContent wraps parts in a single user turn.
func UserContent(parts ...*genai.Part) *genai.Content {
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

// SpeechOutput configures an audio-only answer spoken by a prebuilt voice.
func SpeechOutput(voice string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
}

// FirstAudio returns the first audio-bearing part of the first candidate.
// Later audio parts are ignored.
func FirstAudio(resp *genai.GenerateContentResponse) (*genai.Blob, bool) {
	for _, p := range firstParts(resp) {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData, true
		}
	}
	return nil, false
}

// Text concatenates the non-thought text parts of the first candidate.
func Text(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, p := range firstParts(resp) {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}
