package tts

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/loqa-studio/internal/codec"
)

type mockSynth struct {
	sampleRate int
	latency    time.Duration
}

// NewMockSynth returns a backend that answers every request with silence lasting
// 10ms per character of input.
func NewMockSynth(sampleRate int, latency time.Duration) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, latency: latency}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Response, error) {
	text, _, err := describe(req)
	if err != nil {
		return Response{}, err
	}
	if m.latency > 0 {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(m.latency):
		}
	}
	bytesPerChar := m.sampleRate / 100 * 2
	pcm := make([]byte, utf8.RuneCountInString(text)*bytesPerChar)
	return Response{Payload: codec.Encode(pcm), MIMEType: "audio/L16"}, nil
}
