package studio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput means the transcript trimmed to nothing; no request was made.
	ErrEmptyInput = errors.New("studio: transcript is empty")
	// ErrEmptyOutput means every chunk succeeded but no audio came back at all.
	ErrEmptyOutput = errors.New("studio: audio generation resulted in empty output")
)

// SynthesisError aborts a run when one chunk fails. Chunk is zero based.
type SynthesisError struct {
	Chunk int
	Total int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("studio: synthesis of chunk %d/%d failed: %v", e.Chunk+1, e.Total, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
