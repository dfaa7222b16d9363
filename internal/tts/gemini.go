package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/gemini"
	"google.golang.org/genai"
)

type geminiSynth struct {
	client         gemini.ContentGenerator
	studioModel    string
	referenceModel string
}

// NewGeminiSynth sends StudioRequests to studioModel and ReferenceRequests to
// the native-audio referenceModel.
func NewGeminiSynth(client gemini.ContentGenerator, studioModel, referenceModel string) Synthesizer {
	return &geminiSynth{client: client, studioModel: studioModel, referenceModel: referenceModel}
}

func (g *geminiSynth) Synthesize(ctx context.Context, req Request) (Response, error) {
	var (
		model string
		parts []*genai.Part
		voice string
	)
	switch r := req.(type) {
	case StudioRequest:
		model, voice = g.studioModel, r.Voice
		parts = []*genai.Part{genai.NewPartFromText(r.Text)}
	case ReferenceRequest:
		model, voice = g.referenceModel, r.Voice
		parts = []*genai.Part{
			genai.NewPartFromBytes(r.Reference.Data, r.Reference.MIMEType),
			genai.NewPartFromText(ImitationPrompt(r.Text)),
		}
	default:
		return Response{}, fmt.Errorf("unsupported tts request %T", req)
	}
	if model == "" {
		return Response{}, fmt.Errorf("gemini model not configured for %T", req)
	}

	resp, err := g.client.GenerateContent(ctx, model, []*genai.Content{gemini.UserContent(parts...)}, gemini.SpeechOutput(voice))
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate content: %w", err)
	}
	audio, ok := gemini.FirstAudio(resp)
	if !ok {
		return Response{}, nil
	}
	// the SDK hands back raw bytes; Response carries the transport encoding
	return Response{Payload: codec.Encode(audio.Data), MIMEType: audio.MIMEType}, nil
}
