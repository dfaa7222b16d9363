package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/loqalabs/loqa-studio/internal/codec"
	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
}

type execRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	ReferenceAudio string `json:"reference_audio,omitempty"`
	ReferenceMIME  string `json:"reference_mime,omitempty"`
	Instruction    string `json:"instruction,omitempty"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs command once per request. The command receives one JSON
// request on stdin and streams JSON lines of base64 PCM on stdout.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Response, error) {
	payload := execRequest{SampleRate: e.sampleRate, Channels: 1}
	switch r := req.(type) {
	case StudioRequest:
		payload.Text, payload.Voice = r.Text, r.Voice
	case ReferenceRequest:
		payload.Text, payload.Voice = r.Text, r.Voice
		payload.ReferenceAudio = codec.Encode(r.Reference.Data)
		payload.ReferenceMIME = r.Reference.MIMEType
		payload.Instruction = ImitationPrompt(r.Text)
	default:
		return Response{}, fmt.Errorf("unsupported tts request %T", req)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Response{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, err
	}
	if err := cmd.Start(); err != nil {
		return Response{}, fmt.Errorf("start tts command: %w", err)
	}
	// abort kills the command before Wait so a child still writing to a
	// full stdout pipe cannot block it; Wait then closes both pipes.
	abort := func(err error) (Response, error) {
		_ = cmd.Process.Kill()
		_ = stdin.Close()
		_ = cmd.Wait()
		return Response{}, err
	}
	if _, err := stdin.Write(data); err != nil {
		return abort(fmt.Errorf("write tts command input: %w", err))
	}
	stdin.Close()

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return abort(fmt.Errorf("decode tts command output: %w", err))
		}
		part, err := codec.Decode(resp.PCMBase64)
		if err != nil {
			return abort(err)
		}
		pcm = append(pcm, part...)
	}
	if err := scanner.Err(); err != nil {
		return abort(err)
	}
	if err := cmd.Wait(); err != nil {
		return Response{}, fmt.Errorf("tts command failed: %w", err)
	}
	if len(pcm) == 0 {
		return Response{}, nil
	}
	return Response{Payload: codec.Encode(pcm), MIMEType: "audio/L16"}, nil
}
