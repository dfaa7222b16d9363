// Package jobs runs synthesis requests arriving over the bus or the HTTP API,
// publishing progress and journaling every run.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-studio/internal/bus"
	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/eventstore"
	"github.com/loqalabs/loqa-studio/internal/protocol"
	"github.com/loqalabs/loqa-studio/internal/studio"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"github.com/loqalabs/loqa-studio/internal/voices"
	"github.com/loqalabs/loqa-studio/internal/wav"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Bus is the messaging surface the service needs; *bus.Client satisfies it.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (bus.Subscription, error)
}

// ErrInvalidRequest marks requests rejected before synthesis starts.
var ErrInvalidRequest = errors.New("invalid generate request")

type Service struct {
	cfg          config.JobsConfig
	defaultVoice string
	bus          Bus
	gen          *studio.Generator
	store        *eventstore.Store
	catalog      *voices.Catalog
	sub          bus.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	closed       bool
	sema         chan struct{}
	inflight     atomic.Int64
	logger       *slog.Logger
}

// New builds the service. busClient, store and catalog may be nil.
func New(parent context.Context, cfg config.JobsConfig, defaultVoice string, busClient Bus, gen *studio.Generator, store *eventstore.Store, catalog *voices.Catalog, logger *slog.Logger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:          cfg,
		defaultVoice: defaultVoice,
		bus:          busClient,
		gen:          gen,
		store:        store,
		catalog:      catalog,
		ctx:          ctx,
		cancel:       cancel,
		sema:         make(chan struct{}, cfg.Concurrency),
		logger:       logger.With(slog.String("component", "jobs")),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-studio/jobs")
	gauge, err := meter.Int64ObservableGauge("loqa.studio.jobs.inflight", metric.WithDescription("Synthesis runs in progress"))
	if err != nil {
		s.logger.Warn("failed to create inflight gauge", slogError(err))
		return
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, s.inflight.Load())
		return nil
	}, gauge)
	if err != nil {
		s.logger.Warn("failed to register inflight callback", slogError(err))
	}
}

// Start subscribes to generate requests when the service and bus are enabled.
func (s *Service) Start() error {
	if !s.cfg.Enabled || s.bus == nil {
		return nil
	}
	sub, err := s.bus.Subscribe(protocol.SubjectGenerateRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe generate requests: %w", err)
	}
	s.sub = sub
	return nil
}

// Close stops accepting bus requests, cancels queued and running ones and
// waits for their goroutines to return.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.bus == nil || s.sub != nil }

// Wait blocks until every bus-triggered run has finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) handleRequest(data []byte) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	// Drain delivers pending messages after Close, so admission is checked
	// under the same lock that Close uses.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping generate request after close", slog.String("run_id", req.RunID))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		select {
		case s.sema <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer func() { <-s.sema }()
		// select picks at random when both cases are ready
		if s.ctx.Err() != nil {
			return
		}

		ctx := s.ctx
		if s.cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RunTimeout)*time.Millisecond)
			defer cancel()
		}

		result := s.Run(ctx, req, func(p protocol.Progress) {
			s.publish(protocol.SubjectGenerateProgress, p)
		})
		s.publish(protocol.SubjectGenerateDone, result)
	}()
}

// Run executes one request synchronously. onProgress may be nil. The result
// carries either the WAV payload or an error with its kind.
func (s *Service) Run(ctx context.Context, req protocol.GenerateRequest, onProgress func(protocol.Progress)) protocol.GenerateResult {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	log := s.logger.With(slog.String("run_id", req.RunID))
	result := protocol.GenerateResult{RunID: req.RunID}

	run := eventstore.Run{ID: req.RunID, Voice: req.Voice, Reference: req.ReferenceAudio != ""}
	if err := s.store.AppendRun(ctx, run); err != nil {
		log.Warn("failed to journal run", slogError(err))
	}

	profile, err := s.ResolveProfile(req)
	if err != nil {
		return s.finish(ctx, log, result, err)
	}
	chunks, err := s.gen.Split(req.Transcript)
	if err != nil {
		return s.finish(ctx, log, result, err)
	}

	run.Voice, run.Reference, run.Chunks = profile.Voice, profile.Reference != nil, len(chunks)
	if err := s.store.AppendRun(ctx, run); err != nil {
		log.Warn("failed to journal run", slogError(err))
	}

	master, err := s.gen.Generate(ctx, req.Transcript, profile, studio.ProgressFunc(func(percent int) {
		p := protocol.Progress{RunID: req.RunID, Percent: percent, Timestamp: time.Now().UTC()}
		s.journal(ctx, log, req.RunID, "progress", p)
		if onProgress != nil {
			onProgress(p)
		}
	}))
	if err != nil {
		return s.finish(ctx, log, result, err)
	}

	result.AudioBase64 = master.Data
	result.Chunks = master.Chunks
	result.DurationMS = master.Duration.Milliseconds()
	return s.finish(ctx, log, result, nil)
}

// ResolveProfile turns a request's voice fields into a synthesis profile. A named
// profile wins over an inline voice; inline reference audio overrides the
// profile's reference.
func (s *Service) ResolveProfile(req protocol.GenerateRequest) (studio.VoiceProfile, error) {
	profile := studio.VoiceProfile{Voice: s.defaultVoice}
	if req.Profile != "" {
		if s.catalog == nil {
			return studio.VoiceProfile{}, fmt.Errorf("%w: no voice catalog configured for profile %q", ErrInvalidRequest, req.Profile)
		}
		resolved, err := s.catalog.Resolve(req.Profile)
		if err != nil {
			return studio.VoiceProfile{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		profile = resolved
	} else if req.Voice != "" {
		profile.Voice = req.Voice
	}
	if !tts.ValidVoice(profile.Voice) {
		return studio.VoiceProfile{}, fmt.Errorf("%w: unknown voice %q", ErrInvalidRequest, profile.Voice)
	}

	if strings.TrimSpace(req.ReferenceAudio) == "" {
		return profile, nil
	}
	data, mime, err := codec.DecodeDataURL(req.ReferenceAudio)
	if err != nil {
		return studio.VoiceProfile{}, fmt.Errorf("decode reference audio: %w", err)
	}
	if req.ReferenceMIME != "" {
		mime = req.ReferenceMIME
	}
	if mime == "" {
		return studio.VoiceProfile{}, fmt.Errorf("%w: reference_mime is required", ErrInvalidRequest)
	}
	if mime == "audio/wav" || mime == "audio/x-wav" {
		if info, err := wav.Inspect(data); err == nil {
			s.logger.Debug("reference sample",
				slog.Int("sample_rate", info.SampleRate),
				slog.Int("channels", info.Channels),
				slog.Duration("duration", info.Duration),
				slog.Float64("peak", info.Peak))
		}
	}
	profile.Reference = &tts.ReferenceAudio{Data: data, MIMEType: mime}
	return profile, nil
}

func (s *Service) finish(ctx context.Context, log *slog.Logger, result protocol.GenerateResult, err error) protocol.GenerateResult {
	result.Timestamp = time.Now().UTC()
	status := eventstore.StatusCompleted
	if err != nil {
		status = eventstore.StatusFailed
		result.Error = err.Error()
		result.ErrorKind = ErrorKind(err)
		log.Warn("run failed", slog.String("kind", result.ErrorKind), slogError(err))
	}
	// journal writes outlive a cancelled run context
	jctx := context.WithoutCancel(ctx)
	if err := s.store.UpdateRunStatus(jctx, result.RunID, status, result.Error); err != nil {
		log.Warn("failed to update run status", slogError(err))
	}
	s.journal(jctx, log, result.RunID, status, protocol.GenerateResult{
		RunID:      result.RunID,
		Chunks:     result.Chunks,
		DurationMS: result.DurationMS,
		Error:      result.Error,
		ErrorKind:  result.ErrorKind,
		Timestamp:  result.Timestamp,
	})
	return result
}

func (s *Service) journal(ctx context.Context, log *slog.Logger, runID, typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("failed to marshal journal event", slogError(err))
		return
	}
	if err := s.store.AppendEvent(ctx, eventstore.Event{RunID: runID, Type: typ, Payload: data}); err != nil {
		log.Warn("failed to journal event", slogError(err))
	}
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal bus message", slogError(err))
		return
	}
	if err := s.bus.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish bus message", slog.String("subject", subject), slogError(err))
	}
}

// ErrorKind classifies a run failure for bus and HTTP clients.
func ErrorKind(err error) string {
	var malformed *codec.MalformedTransportError
	var synth *studio.SynthesisError
	switch {
	case errors.Is(err, studio.ErrEmptyInput):
		return protocol.ErrorKindEmptyInput
	case errors.Is(err, studio.ErrEmptyOutput):
		return protocol.ErrorKindEmptyOutput
	case errors.As(err, &synth):
		return protocol.ErrorKindSynthesis
	case errors.As(err, &malformed):
		return protocol.ErrorKindMalformedTransport
	default:
		return protocol.ErrorKindInvalidRequest
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
