// Package studio drives chunked speech synthesis of a transcript and assembles
// the result into one WAV file.
package studio

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-studio/internal/assembler"
	"github.com/loqalabs/loqa-studio/internal/chunker"
	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"github.com/loqalabs/loqa-studio/internal/wav"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-studio/studio"

// VoiceProfile selects the voice for a run. A non-nil Reference switches every
// chunk to reference-guided synthesis.
type VoiceProfile struct {
	Voice     string
	Reference *tts.ReferenceAudio
}

// AudioMaster is the finished WAV file in transport encoding.
type AudioMaster struct {
	Data     string
	Chunks   int
	PCMBytes int
	Duration time.Duration
}

// WAV decodes Data back to the binary file.
func (m AudioMaster) WAV() ([]byte, error) {
	return codec.Decode(m.Data)
}

type Options struct {
	MaxChars   int
	SampleRate int
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = chunker.DefaultMaxChars
	}
	if o.SampleRate <= 0 {
		o.SampleRate = wav.SampleRate
	}
	return o
}

// Generator is stateless between runs; one instance may serve many concurrent
// Generate calls.
type Generator struct {
	synth   tts.Synthesizer
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	runs    metric.Int64Counter
	chunks  metric.Int64Counter
	latency metric.Float64Histogram
}

func NewGenerator(synth tts.Synthesizer, opts Options, logger *slog.Logger) *Generator {
	g := &Generator{
		synth:  synth,
		opts:   opts.withDefaults(),
		logger: logger.With(slog.String("component", "studio")),
		tracer: otel.Tracer(instrumentationName),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if g.runs, err = meter.Int64Counter("loqa.studio.runs", metric.WithDescription("Synthesis runs by outcome")); err != nil {
		g.logger.Warn("failed to create runs counter", slogError(err))
	}
	if g.chunks, err = meter.Int64Counter("loqa.studio.chunks", metric.WithDescription("Chunks synthesized")); err != nil {
		g.logger.Warn("failed to create chunks counter", slogError(err))
	}
	if g.latency, err = meter.Float64Histogram("loqa.studio.chunk.latency_ms", metric.WithUnit("ms")); err != nil {
		g.logger.Warn("failed to create latency histogram", slogError(err))
	}
	return g
}

// Split exposes the chunking used by Generate.
func (g *Generator) Split(transcript string) ([]chunker.Chunk, error) {
	return chunker.Split(transcript, g.opts.MaxChars)
}

// Generate synthesizes transcript chunk by chunk. Exactly one request is in
// flight at a time and chunk order is preserved in the output. progress may be
// nil; otherwise it is called once per chunk with a non-decreasing percent that
// reaches 100 after the last chunk. Any chunk failure aborts the run.
func (g *Generator) Generate(ctx context.Context, transcript string, profile VoiceProfile, progress ProgressObserver) (AudioMaster, error) {
	if strings.TrimSpace(transcript) == "" {
		return AudioMaster{}, ErrEmptyInput
	}
	chunks, err := g.Split(transcript)
	if err != nil {
		return AudioMaster{}, err
	}

	mode := "studio"
	if profile.Reference != nil {
		mode = "reference"
	}
	ctx, span := g.tracer.Start(ctx, "studio.generate", trace.WithAttributes(
		attribute.Int("studio.chunks", len(chunks)),
		attribute.String("studio.voice", profile.Voice),
		attribute.String("studio.mode", mode),
	))
	defer span.End()

	log := g.logger.With(slog.String("mode", mode), slog.String("voice", profile.Voice), slog.Int("chunks", len(chunks)))
	log.Info("synthesis started")
	start := time.Now()

	var acc assembler.Accumulator
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return g.fail(ctx, span, log, &SynthesisError{Chunk: chunk.Index, Total: len(chunks), Err: err})
		}
		pcm, err := g.synthesizeChunk(ctx, chunk, len(chunks), profile)
		if err != nil {
			return g.fail(ctx, span, log, &SynthesisError{Chunk: chunk.Index, Total: len(chunks), Err: err})
		}
		if len(pcm) == 0 {
			log.Warn("chunk returned no audio", slog.Int("chunk", chunk.Index))
		}
		acc.Append(pcm)
		if progress != nil {
			progress.Progress(percentDone(chunk.Index+1, len(chunks)))
		}
	}

	if acc.Len() == 0 {
		return g.fail(ctx, span, log, ErrEmptyOutput)
	}

	samples := acc.Bytes()
	master := AudioMaster{
		Data:     codec.Encode(wav.Wrap(samples, g.opts.SampleRate)),
		Chunks:   len(chunks),
		PCMBytes: len(samples),
		Duration: wav.Duration(len(samples), g.opts.SampleRate),
	}
	g.countRun(ctx, "ok")
	log.Info("synthesis complete",
		slog.Int("pcm_bytes", master.PCMBytes),
		slog.Duration("audio", master.Duration),
		slog.Duration("elapsed", time.Since(start)))
	return master, nil
}

func (g *Generator) synthesizeChunk(ctx context.Context, chunk chunker.Chunk, total int, profile VoiceProfile) ([]byte, error) {
	ctx, span := g.tracer.Start(ctx, "studio.chunk", trace.WithAttributes(
		attribute.Int("studio.chunk.index", chunk.Index),
		attribute.Int("studio.chunk.chars", len(chunk.Text)),
	))
	defer span.End()

	var req tts.Request = tts.StudioRequest{Text: chunk.Text, Voice: profile.Voice}
	if profile.Reference != nil {
		req = tts.ReferenceRequest{Text: chunk.Text, Voice: profile.Voice, Reference: *profile.Reference}
	}

	start := time.Now()
	resp, err := g.synth.Synthesize(ctx, req)
	if g.latency != nil {
		g.latency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Payload == "" {
		return nil, nil
	}
	pcm, err := codec.Decode(resp.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if g.chunks != nil {
		g.chunks.Add(ctx, 1)
	}
	g.logger.Debug("chunk synthesized",
		slog.Int("chunk", chunk.Index),
		slog.Int("total", total),
		slog.Int("pcm_bytes", len(pcm)))
	return pcm, nil
}

func (g *Generator) fail(ctx context.Context, span trace.Span, log *slog.Logger, err error) (AudioMaster, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.countRun(ctx, "error")
	log.Warn("synthesis failed", slogError(err))
	return AudioMaster{}, err
}

func (g *Generator) countRun(ctx context.Context, outcome string) {
	if g.runs != nil {
		g.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
