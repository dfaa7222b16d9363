package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/gemini"
)

// New builds the backend selected by cfg.Mode.
func New(ctx context.Context, cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockSynth(cfg.SampleRate, 0), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  time.Duration(cfg.RequestTimeout) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		return NewGeminiSynth(client, cfg.StudioModel, cfg.ReferenceModel), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode: %s", cfg.Mode)
	}
}
