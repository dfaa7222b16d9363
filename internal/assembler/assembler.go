package assembler

// Concat joins PCM buffers in order without resampling or inserted silence.
func Concat(parts [][]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Accumulator collects per-chunk PCM in arrival order. It is not safe for
// concurrent use; each synthesis run owns its own.
type Accumulator struct {
	parts [][]byte
	size  int
}

// Append records one chunk's samples. Empty buffers are ignored.
func (a *Accumulator) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	a.parts = append(a.parts, pcm)
	a.size += len(pcm)
}

// Len is the total number of accumulated bytes.
func (a *Accumulator) Len() int { return a.size }

// Parts is the number of non-empty buffers appended.
func (a *Accumulator) Parts() int { return len(a.parts) }

// Bytes concatenates everything appended so far.
func (a *Accumulator) Bytes() []byte { return Concat(a.parts) }
