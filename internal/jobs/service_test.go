package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-studio/internal/bus"
	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/eventstore"
	"github.com/loqalabs/loqa-studio/internal/protocol"
	"github.com/loqalabs/loqa-studio/internal/studio"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"github.com/loqalabs/loqa-studio/internal/voices"
	"github.com/loqalabs/loqa-studio/internal/wav"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type message struct {
	subject string
	data    []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []message
	handlers  map[string]func([]byte)
}

type fakeSub struct{}

func (fakeSub) Drain() error { return nil }

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, message{subject: subject, data: data})
	return nil
}

func (b *fakeBus) Subscribe(subject string, handler func([]byte)) (bus.Subscription, error) {
	if b.handlers == nil {
		b.handlers = make(map[string]func([]byte))
	}
	b.handlers[subject] = handler
	return fakeSub{}, nil
}

func (b *fakeBus) bySubject(subject string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, m := range b.published {
		if m.subject == subject {
			out = append(out, m.data)
		}
	}
	return out
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, tts.Request) (tts.Response, error) {
	return tts.Response{}, errors.New("upstream 503")
}

func newService(t *testing.T, synth tts.Synthesizer, b Bus, catalog *voices.Catalog) (*Service, *eventstore.Store) {
	t.Helper()
	log := newLogger()
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "runs.db"),
		RetentionMode: "session",
	}, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	gen := studio.NewGenerator(synth, studio.Options{MaxChars: 20}, log)
	svc := New(context.Background(), config.JobsConfig{Enabled: true, Concurrency: 2}, "Kore", b, gen, store, catalog, log)
	t.Cleanup(svc.Close)
	return svc, store
}

const transcript = "First sentence here. Second one is here. Third and last."

func TestRunSuccessJournalsProgress(t *testing.T) {
	svc, store := newService(t, tts.NewMockSynth(wav.SampleRate, 0), nil, nil)

	var percents []int
	result := svc.Run(context.Background(), protocol.GenerateRequest{RunID: "run-1", Transcript: transcript, Voice: "Puck"}, func(p protocol.Progress) {
		percents = append(percents, p.Percent)
	})
	if result.Error != "" {
		t.Fatalf("unexpected error %s", result.Error)
	}
	if result.Chunks != 3 || len(percents) != 3 || percents[2] != 100 {
		t.Fatalf("unexpected result %+v progress %v", result, percents)
	}
	data, err := codec.Decode(result.AudioBase64)
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if _, err := wav.ParseHeader(data); err != nil {
		t.Fatalf("result is not a wav file: %v", err)
	}

	run, err := store.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != eventstore.StatusCompleted || run.Voice != "Puck" || run.Chunks != 3 {
		t.Fatalf("unexpected journaled run %+v", run)
	}
	events, err := store.ListRunEvents(context.Background(), "run-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 || events[3].Type != eventstore.StatusCompleted {
		t.Fatalf("expected 3 progress events and a completion, got %+v", events)
	}
}

func TestRunFailureKinds(t *testing.T) {
	svc, store := newService(t, failingSynth{}, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  protocol.GenerateRequest
		kind string
	}{
		{"empty", protocol.GenerateRequest{Transcript: "   "}, protocol.ErrorKindEmptyInput},
		{"synthesis", protocol.GenerateRequest{Transcript: transcript}, protocol.ErrorKindSynthesis},
		{"voice", protocol.GenerateRequest{Transcript: transcript, Voice: "Robot"}, protocol.ErrorKindInvalidRequest},
		{"malformed reference", protocol.GenerateRequest{Transcript: transcript, ReferenceAudio: "@@@"}, protocol.ErrorKindMalformedTransport},
		{"missing mime", protocol.GenerateRequest{Transcript: transcript, ReferenceAudio: codec.Encode([]byte("x"))}, protocol.ErrorKindInvalidRequest},
		{"profile without catalog", protocol.GenerateRequest{Transcript: transcript, Profile: "host"}, protocol.ErrorKindInvalidRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result := svc.Run(ctx, c.req, nil)
			if result.ErrorKind != c.kind {
				t.Fatalf("expected kind %s, got %s (%s)", c.kind, result.ErrorKind, result.Error)
			}
			if result.AudioBase64 != "" {
				t.Fatalf("failed runs must not carry audio")
			}
			run, err := store.GetRun(ctx, result.RunID)
			if err != nil {
				t.Fatalf("get run: %v", err)
			}
			if run.Status != eventstore.StatusFailed {
				t.Fatalf("expected failed status, got %s", run.Status)
			}
		})
	}
}

func TestResolveProfileReferenceAudio(t *testing.T) {
	svc, _ := newService(t, tts.NewMockSynth(wav.SampleRate, 0), nil, nil)
	sample := wav.Wrap(make([]byte, 480), wav.SampleRate)
	profile, err := svc.ResolveProfile(protocol.GenerateRequest{
		Voice:          "Zephyr",
		ReferenceAudio: "data:audio/wav;base64," + codec.Encode(sample),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.Voice != "Zephyr" || profile.Reference == nil || profile.Reference.MIMEType != "audio/wav" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if len(profile.Reference.Data) != len(sample) {
		t.Fatalf("reference bytes not preserved")
	}

	profile, err = svc.ResolveProfile(protocol.GenerateRequest{})
	if err != nil || profile.Voice != "Kore" || profile.Reference != nil {
		t.Fatalf("expected default voice profile, got %+v %v", profile, err)
	}
}

func TestResolveProfileFromCatalog(t *testing.T) {
	catalog := &voices.Catalog{Profiles: []voices.Profile{{Name: "narrator", Voice: "Charon"}}}
	svc, _ := newService(t, tts.NewMockSynth(wav.SampleRate, 0), nil, catalog)
	profile, err := svc.ResolveProfile(protocol.GenerateRequest{Profile: "narrator", Voice: "Puck"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.Voice != "Charon" {
		t.Fatalf("named profile must win, got %s", profile.Voice)
	}
	if _, err := svc.ResolveProfile(protocol.GenerateRequest{Profile: "ghost"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestBusRequestPublishesProgressAndResult(t *testing.T) {
	b := &fakeBus{}
	svc, _ := newService(t, tts.NewMockSynth(wav.SampleRate, 0), b, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.Healthy() {
		t.Fatalf("expected healthy service")
	}

	handler := b.handlers[protocol.SubjectGenerateRequest]
	if handler == nil {
		t.Fatalf("expected subscription on %s", protocol.SubjectGenerateRequest)
	}
	req, _ := json.Marshal(protocol.GenerateRequest{Transcript: transcript})
	handler(req)
	handler([]byte("{not json"))
	svc.Wait()

	progress := b.bySubject(protocol.SubjectGenerateProgress)
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress messages, got %d", len(progress))
	}
	done := b.bySubject(protocol.SubjectGenerateDone)
	if len(done) != 1 {
		t.Fatalf("expected one result, got %d", len(done))
	}
	var result protocol.GenerateResult
	if err := json.Unmarshal(done[0], &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RunID == "" || result.AudioBase64 == "" || result.Error != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	var last protocol.Progress
	if err := json.Unmarshal(progress[2], &last); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if last.Percent != 100 || last.RunID != result.RunID {
		t.Fatalf("unexpected final progress %+v", last)
	}
}

func TestRequestsAfterCloseAreDropped(t *testing.T) {
	b := &fakeBus{}
	svc, _ := newService(t, tts.NewMockSynth(wav.SampleRate, 0), b, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := b.handlers[protocol.SubjectGenerateRequest]
	svc.Close()

	req, _ := json.Marshal(protocol.GenerateRequest{Transcript: transcript})
	for i := 0; i < 10; i++ {
		handler(req)
	}
	svc.Wait()
	if n := len(b.bySubject(protocol.SubjectGenerateDone)); n != 0 {
		t.Fatalf("expected no results after close, got %d", n)
	}
}

func TestCancelledServiceSkipsQueuedRequests(t *testing.T) {
	b := &fakeBus{}
	svc, _ := newService(t, tts.NewMockSynth(wav.SampleRate, 0), b, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := b.handlers[protocol.SubjectGenerateRequest]
	svc.cancel()

	req, _ := json.Marshal(protocol.GenerateRequest{Transcript: transcript})
	for i := 0; i < 50; i++ {
		handler(req)
	}
	svc.Wait()
	if n := len(b.bySubject(protocol.SubjectGenerateDone)); n != 0 {
		t.Fatalf("expected no runs once cancelled, got %d", n)
	}
	if n := len(b.bySubject(protocol.SubjectGenerateProgress)); n != 0 {
		t.Fatalf("expected no progress once cancelled, got %d", n)
	}
}

func TestErrorKind(t *testing.T) {
	if ErrorKind(&studio.SynthesisError{Err: &codec.MalformedTransportError{}}) != protocol.ErrorKindSynthesis {
		t.Fatalf("synthesis errors classify as synthesis even when payload was malformed")
	}
	if ErrorKind(studio.ErrEmptyOutput) != protocol.ErrorKindEmptyOutput {
		t.Fatalf("expected empty output kind")
	}
}
