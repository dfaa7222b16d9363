// Package wav wraps raw 16-bit mono PCM in a canonical 44-byte RIFF/WAVE container.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

const (
	// SampleRate is the rate of PCM returned by the synthesis service.
	SampleRate = 24000
	// HeaderSize is the length of the canonical PCM header.
	HeaderSize = 44

	numChannels   = 1
	bitsPerSample = 16
	blockAlign    = numChannels * bitsPerSample / 8
	formatPCM     = 1
)

// Header mirrors the canonical PCM WAVE header layout byte for byte.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// NewHeader describes dataSize bytes of mono 16-bit PCM at sampleRate.
func NewHeader(dataSize, sampleRate int) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}
}

// Wrap prepends the header to samples. The samples slice is copied.
func Wrap(samples []byte, sampleRate int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(samples)))
	// writes into a bytes.Buffer cannot fail
	_ = binary.Write(buf, binary.LittleEndian, NewHeader(len(samples), sampleRate))
	buf.Write(samples)
	return buf.Bytes()
}

// ParseHeader reads and validates the canonical header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("wav data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}
	var h Header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return Header{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" {
		return Header{}, errors.New("invalid wav file: missing RIFF/WAVE markers")
	}
	if string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data" {
		return Header{}, errors.New("invalid wav file: not a canonical fmt/data layout")
	}
	return h, nil
}

// StripHeader returns the PCM payload of a RIFF file, or data unchanged when it
// carries no RIFF marker.
func StripHeader(data []byte) []byte {
	if len(data) >= HeaderSize && bytes.HasPrefix(data, []byte("RIFF")) {
		return data[HeaderSize:]
	}
	return data
}

// Duration is the playback length of pcmBytes of mono 16-bit PCM.
func Duration(pcmBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(pcmBytes/blockAlign) * time.Second / time.Duration(sampleRate)
}

// Info summarizes a WAV file of any layout the go-audio decoder understands.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	// Peak is the loudest absolute sample scaled to [0, 1]. Near zero means
	// the reference is silent.
	Peak float64
}

// Inspect decodes the format chunk of an arbitrary WAV file, such as an uploaded
// reference sample.
func Inspect(data []byte) (Info, error) {
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid wav file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("wav duration: %w", err)
	}
	buf, err := gowav.NewDecoder(bytes.NewReader(data)).FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("wav samples: %w", err)
	}
	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
		Peak:       peakLevel(buf),
	}, nil
}

func peakLevel(buf *audio.IntBuffer) float64 {
	if buf == nil || buf.SourceBitDepth <= 0 {
		return 0
	}
	peak := 0
	for _, v := range buf.Data {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / float64(int(1)<<(buf.SourceBitDepth-1))
}
