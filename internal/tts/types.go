package tts

import (
	"context"
	"fmt"
)

// ReferenceAudio is a recorded voice sample the service should imitate.
type ReferenceAudio struct {
	Data     []byte
	MIMEType string
}

// Request is one of StudioRequest or ReferenceRequest. The two variants reach
// different service capabilities, so backends switch on the concrete type.
type Request interface {
	request()
}

// StudioRequest synthesizes text with a prebuilt voice only.
type StudioRequest struct {
	Text  string
	Voice string
}

// ReferenceRequest synthesizes text guided by an inline reference sample.
type ReferenceRequest struct {
	Text      string
	Voice     string
	Reference ReferenceAudio
}

func (StudioRequest) request()    {}
func (ReferenceRequest) request() {}

// ImitationPrompt is the instruction sent with reference-guided requests.
func ImitationPrompt(text string) string {
	return "Read the following text. Imitate the voice identity, tone, and pacing of the attached audio reference exactly: " + text
}

// Response carries base64 encoded 16-bit mono PCM. Payload is empty when the
// service answered without an audio part.
type Response struct {
	Payload  string
	MIMEType string
}

// Synthesizer is the contract for producing audio from one chunk of text.
// Implementations must be safe for use by independent runs concurrently.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Response, error)
}

// Voices lists the prebuilt voices offered by the synthesis service.
var Voices = []string{"Kore", "Puck", "Charon", "Fenrir", "Zephyr"}

// ValidVoice reports whether name is one of Voices.
func ValidVoice(name string) bool {
	for _, v := range Voices {
		if v == name {
			return true
		}
	}
	return false
}

func describe(req Request) (text, voice string, err error) {
	switch r := req.(type) {
	case StudioRequest:
		return r.Text, r.Voice, nil
	case ReferenceRequest:
		return r.Text, r.Voice, nil
	default:
		return "", "", fmt.Errorf("unsupported tts request %T", req)
	}
}
