package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loqalabs/loqa-studio/internal/assist"
	"github.com/loqalabs/loqa-studio/internal/chunker"
	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/loqalabs/loqa-studio/internal/jobs"
	"github.com/loqalabs/loqa-studio/internal/protocol"
)

// api serves the studio HTTP surface. assist is nil when the assist services
// are disabled, in which case their routes are not registered.
type api struct {
	jobs     *jobs.Service
	assist   *assist.Service
	maxChars int
	maxBody  int64
	logger   *slog.Logger
}

type splitRequest struct {
	Transcript string `json:"transcript"`
	MaxChars   int    `json:"max_chars,omitempty"`
}

type splitChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Chars int    `json:"chars"`
}

type splitResponse struct {
	Chunks []splitChunk `json:"chunks"`
}

type audioRequest struct {
	Audio string `json:"audio_base64"`
	MIME  string `json:"mime,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/generate", a.handleGenerate)
	mux.HandleFunc("POST /v1/split", a.handleSplit)
	if a.assist != nil {
		mux.HandleFunc("POST /v1/transcribe", a.handleTranscribe)
		mux.HandleFunc("POST /v1/analyze-voice", a.handleAnalyzeVoice)
		mux.HandleFunc("POST /v1/extract", a.handleExtract)
	}
}

func (a *api) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	result := a.jobs.Run(r.Context(), req, nil)
	if result.Error != "" {
		a.writeJSON(w, statusForKind(result.ErrorKind), errorResponse{Error: result.Error, ErrorKind: result.ErrorKind})
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "audio/wav") {
		a.writeJSON(w, http.StatusOK, result)
		return
	}
	data, err := codec.Decode(result.AudioBase64)
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Header().Set("X-Loqa-Run-ID", result.RunID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.logger.Warn("failed to write audio response", slogError(err))
	}
}

func (a *api) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.MaxChars == 0 {
		req.MaxChars = a.maxChars
	}
	chunks, err := chunker.Split(req.Transcript, req.MaxChars)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), ErrorKind: protocol.ErrorKindInvalidRequest})
		return
	}
	resp := splitResponse{Chunks: make([]splitChunk, 0, len(chunks))}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, splitChunk{Index: c.Index, Text: c.Text, Chars: len([]rune(c.Text))})
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, mime, ok := a.decodeAudio(w, r)
	if !ok {
		return
	}
	text, err := a.assist.Transcribe(r.Context(), audio, mime)
	a.writeAssist(w, text, err)
}

func (a *api) handleAnalyzeVoice(w http.ResponseWriter, r *http.Request) {
	audio, mime, ok := a.decodeAudio(w, r)
	if !ok {
		return
	}
	text, err := a.assist.AnalyzeVoice(r.Context(), audio, mime)
	a.writeAssist(w, text, err)
}

func (a *api) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !a.decode(w, r, &req) {
		return
	}
	text, err := a.assist.ExtractEnglish(r.Context(), req.Text)
	a.writeAssist(w, text, err)
}

func (a *api) decodeAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	var req audioRequest
	if !a.decode(w, r, &req) {
		return nil, "", false
	}
	audio, mime, err := codec.DecodeDataURL(req.Audio)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), ErrorKind: protocol.ErrorKindMalformedTransport})
		return nil, "", false
	}
	if req.MIME != "" {
		mime = req.MIME
	}
	return audio, mime, true
}

func (a *api) writeAssist(w http.ResponseWriter, text string, err error) {
	switch {
	case errors.Is(err, assist.ErrNoInput):
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), ErrorKind: protocol.ErrorKindEmptyInput})
	case err != nil:
		a.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		a.writeJSON(w, http.StatusOK, textResponse{Text: text})
	}
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		a.writeJSON(w, status, errorResponse{Error: fmt.Sprintf("decode request: %v", err), ErrorKind: protocol.ErrorKindInvalidRequest})
		return false
	}
	return true
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", slogError(err))
	}
}

func statusForKind(kind string) int {
	switch kind {
	case protocol.ErrorKindEmptyInput, protocol.ErrorKindMalformedTransport, protocol.ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case protocol.ErrorKindSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
