package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/gemini"
	"google.golang.org/genai"
)

type wireRequest struct {
	Contents         []*genai.Content        `json:"contents"`
	GenerationConfig *genai.GenerationConfig `json:"generationConfig"`
}

func newGeminiTestSynth(t *testing.T, handler http.HandlerFunc) Synthesizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := gemini.NewClient(context.Background(), gemini.Config{Endpoint: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewGeminiSynth(client, "studio-model", "native-model")
}

func TestGeminiStudioAndReferenceShapes(t *testing.T) {
	type seen struct {
		path string
		req  wireRequest
	}
	var calls []seen
	synth := newGeminiTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		calls = append(calls, seen{path: r.URL.Path, req: req})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16","data":"AAEC"}}]}}]}`))
	})

	resp, err := synth.Synthesize(context.Background(), StudioRequest{Text: "hello", Voice: "Puck"})
	if err != nil {
		t.Fatalf("studio: %v", err)
	}
	if resp.Payload != "AAEC" || resp.MIMEType != "audio/L16" {
		t.Fatalf("unexpected response %+v", resp)
	}

	ref := ReferenceAudio{Data: []byte("RIFFsample"), MIMEType: "audio/wav"}
	if _, err := synth.Synthesize(context.Background(), ReferenceRequest{Text: "hello", Voice: "Puck", Reference: ref}); err != nil {
		t.Fatalf("reference: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if !strings.HasSuffix(calls[0].path, "/models/studio-model:generateContent") {
		t.Fatalf("studio request hit %s", calls[0].path)
	}
	if parts := calls[0].req.Contents[0].Parts; len(parts) != 1 || parts[0].Text != "hello" {
		t.Fatalf("studio request must carry text only, got %+v", parts)
	}
	if !strings.HasSuffix(calls[1].path, "/models/native-model:generateContent") {
		t.Fatalf("reference request hit %s", calls[1].path)
	}
	parts := calls[1].req.Contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil {
		t.Fatalf("reference request must carry inline audio first, got %+v", parts)
	}
	if string(parts[0].InlineData.Data) != string(ref.Data) || parts[0].InlineData.MIMEType != "audio/wav" {
		t.Fatalf("unexpected inline reference %+v", parts[0].InlineData)
	}
	if parts[1].Text != ImitationPrompt("hello") {
		t.Fatalf("unexpected instruction %q", parts[1].Text)
	}
	if calls[1].req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Fatalf("voice identity missing from reference request")
	}
}

func TestGeminiNoAudioPart(t *testing.T) {
	synth := newGeminiTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`))
	})
	resp, err := synth.Synthesize(context.Background(), StudioRequest{Text: "x", Voice: "Kore"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payload != "" {
		t.Fatalf("expected empty payload, got %q", resp.Payload)
	}
}

func TestGeminiUpstreamError(t *testing.T) {
	synth := newGeminiTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"model overloaded","status":"UNAVAILABLE"}}`))
	})
	_, err := synth.Synthesize(context.Background(), StudioRequest{Text: "x", Voice: "Kore"})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestMockSynthLength(t *testing.T) {
	synth := NewMockSynth(24000, 0)
	resp, err := synth.Synthesize(context.Background(), StudioRequest{Text: "héllo", Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	pcm, err := codec.Decode(resp.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm) != 5*480 {
		t.Fatalf("expected 2400 bytes, got %d", len(pcm))
	}
}

func TestMockSynthHonorsContext(t *testing.T) {
	synth := NewMockSynth(24000, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := synth.Synthesize(ctx, StudioRequest{Text: "x"}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestExecSynth(t *testing.T) {
	script := filepath.Join(t.TempDir(), "synth.sh")
	body := "#!/bin/sh\ncat > /dev/null\n" +
		"echo '{\"pcm_base64\":\"AAEC\",\"final\":false}'\n" +
		"echo '{\"pcm_base64\":\"AwQF\",\"final\":true}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	synth, err := NewExecSynth("sh "+script, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	resp, err := synth.Synthesize(context.Background(), StudioRequest{Text: "hi", Voice: "Kore"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	pcm, err := codec.Decode(resp.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(pcm) != "\x00\x01\x02\x03\x04\x05" {
		t.Fatalf("unexpected pcm % x", pcm)
	}
}

func TestExecSynthFailure(t *testing.T) {
	synth, err := NewExecSynth("sh -c 'exit 3'", 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), StudioRequest{Text: "hi"}); err == nil {
		t.Fatalf("expected command failure")
	}
	if _, err := NewExecSynth("", 24000); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestExecSynthBadOutputDoesNotBlock(t *testing.T) {
	synth, err := NewExecSynth(`sh -c 'cat >/dev/null; echo notjson; head -c 1000000 /dev/zero | tr "\0" "a"'`, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := synth.Synthesize(context.Background(), StudioRequest{Text: "hi"})
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "decode tts command output") {
			t.Fatalf("expected decode error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("synthesize blocked after malformed output")
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().TTS
	if _, err := New(ctx, cfg); err != nil {
		t.Fatalf("mock: %v", err)
	}
	cfg.Mode = "gemini"
	cfg.APIKey = "k"
	if _, err := New(ctx, cfg); err != nil {
		t.Fatalf("gemini: %v", err)
	}
	cfg.Mode = "carrier-pigeon"
	if _, err := New(ctx, cfg); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestValidVoice(t *testing.T) {
	if !ValidVoice("Zephyr") || ValidVoice("zephyr") || ValidVoice("") {
		t.Fatalf("unexpected voice validation")
	}
}
