// Package assist wraps the text-producing model calls that surround synthesis:
// transcription of recordings, voice analysis and bilingual transcript cleanup.
package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-studio/internal/gemini"
	"google.golang.org/genai"
)

const (
	transcribePrompt = "Please transcribe this audio exactly as spoken. Output only the transcript text."
	analyzePrompt    = "Analyze the tone, pitch, and energy of the speaker in this audio. Describe the vocal profile in one concise sentence."
	extractSystem    = "You are a professional script editor. Extract only the English text, ensuring it forms a cohesive monologue. No headers, no metadata, just the speech."
	extractPrompt    = "The following text is bilingual. Extract and consolidate ONLY the English sections into a clean monologue transcript. Maintain the original message. Transcript: \n\n "

	// DefaultVoiceAnalysis is returned when the model gives no description.
	DefaultVoiceAnalysis = "Vocal profile analyzed."
)

// ErrNoInput is returned for empty audio or text.
var ErrNoInput = errors.New("assist: input is empty")

type Service struct {
	client gemini.ContentGenerator
	model  string
}

func New(client gemini.ContentGenerator, model string) *Service {
	return &Service{client: client, model: model}
}

// Transcribe returns the spoken text of an audio recording.
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoInput
	}
	resp, err := s.client.GenerateContent(ctx, s.model, []*genai.Content{gemini.UserContent(
		genai.NewPartFromBytes(audio, mimeType),
		genai.NewPartFromText(transcribePrompt),
	)}, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return gemini.Text(resp), nil
}

// AnalyzeVoice describes the speaker of a reference sample in one sentence.
func (s *Service) AnalyzeVoice(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoInput
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	resp, err := s.client.GenerateContent(ctx, s.model, []*genai.Content{gemini.UserContent(
		genai.NewPartFromBytes(audio, mimeType),
		genai.NewPartFromText(analyzePrompt),
	)}, nil)
	if err != nil {
		return "", fmt.Errorf("analyze voice: %w", err)
	}
	if text := strings.TrimSpace(gemini.Text(resp)); text != "" {
		return text, nil
	}
	return DefaultVoiceAnalysis, nil
}

// ExtractEnglish keeps only the English passages of a bilingual transcript.
func (s *Service) ExtractEnglish(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoInput
	}
	resp, err := s.client.GenerateContent(ctx, s.model,
		[]*genai.Content{gemini.UserContent(genai.NewPartFromText(extractPrompt + text))},
		&genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(extractSystem, genai.RoleUser)})
	if err != nil {
		return "", fmt.Errorf("extract english: %w", err)
	}
	return strings.TrimSpace(gemini.Text(resp)), nil
}
