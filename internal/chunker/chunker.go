// Package chunker splits transcripts into bounded segments that a synthesis
// backend accepts in a single request.
package chunker

import (
	"errors"
	"strings"
	"unicode"
)

// DefaultMaxChars is the largest segment submitted to the synthesis service.
const DefaultMaxChars = 3000

// ErrInvalidBound is returned when maxChars is not positive.
var ErrInvalidBound = errors.New("chunker: maxChars must be positive")

// boundaries are searched in priority order; the first class with a candidate wins.
var boundaries = []rune{'.', '?', '!', '\n', ' '}

// Chunk is one trimmed segment of a transcript.
type Chunk struct {
	Index int
	Text  string
}

// Split cuts text into chunks of at most maxChars runes, preferring to end each
// chunk right after a sentence terminator, newline or space. A boundary that lies
// before 40% of maxChars is ignored in favour of a hard cut at maxChars.
func Split(text string, maxChars int) ([]Chunk, error) {
	if maxChars <= 0 {
		return nil, ErrInvalidBound
	}
	remaining := []rune(strings.TrimSpace(text))
	chunks := []Chunk{}
	for len(remaining) > 0 {
		if len(remaining) <= maxChars {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(remaining)})
			break
		}
		cut := splitPoint(remaining, maxChars)
		left := trimRunes(remaining[:cut])
		if len(left) > 0 {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(left)})
		}
		remaining = trimRunes(remaining[cut:])
	}
	return chunks, nil
}

// Texts returns the chunk texts in index order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func splitPoint(text []rune, maxChars int) int {
	window := text[:maxChars]
	for _, b := range boundaries {
		idx := lastIndex(window, b)
		if idx < 0 {
			continue
		}
		if idx*10 < maxChars*4 {
			return maxChars
		}
		return idx + 1
	}
	return maxChars
}

func lastIndex(text []rune, r rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == r {
			return i
		}
	}
	return -1
}

func trimRunes(r []rune) []rune {
	start, end := 0, len(r)
	for start < end && unicode.IsSpace(r[start]) {
		start++
	}
	for end > start && unicode.IsSpace(r[end-1]) {
		end--
	}
	return r[start:end]
}
