package protocol

import "time"

// GenerateRequest asks a studio worker to synthesize a transcript. Either Voice
// or Profile selects the voice; ReferenceAudio is base64 (optionally a data URL).
type GenerateRequest struct {
	RunID          string `json:"run_id,omitempty"`
	Transcript     string `json:"transcript"`
	Voice          string `json:"voice,omitempty"`
	Profile        string `json:"profile,omitempty"`
	ReferenceAudio string `json:"reference_audio,omitempty"`
	ReferenceMIME  string `json:"reference_mime,omitempty"`
}

// Progress is published after every completed chunk.
type Progress struct {
	RunID     string    `json:"run_id"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateResult is published once per run. AudioBase64 is a complete WAV file.
type GenerateResult struct {
	RunID       string    `json:"run_id"`
	AudioBase64 string    `json:"audio_base64,omitempty"`
	Chunks      int       `json:"chunks,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Error kinds carried by GenerateResult.
const (
	ErrorKindEmptyInput         = "empty_input"
	ErrorKindEmptyOutput        = "empty_output"
	ErrorKindSynthesis          = "synthesis"
	ErrorKindMalformedTransport = "malformed_transport"
	ErrorKindInvalidRequest     = "invalid_request"
)

const (
	SubjectGenerateRequest  = "studio.generate.request"
	SubjectGenerateProgress = "studio.generate.progress"
	SubjectGenerateDone     = "studio.generate.done"
)
