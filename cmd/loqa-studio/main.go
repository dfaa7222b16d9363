package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-studio/internal/chunker"
	"github.com/loqalabs/loqa-studio/internal/config"
	"github.com/loqalabs/loqa-studio/internal/studio"
	"github.com/loqalabs/loqa-studio/internal/tts"
	"github.com/loqalabs/loqa-studio/internal/voices"
	"github.com/loqalabs/loqa-studio/internal/wav"
)

var version = "0.1.0-dev"

type renderOptions struct {
	configPath string
	in         string
	out        string
	voice      string
	profile    string
	catalog    string
	reference  string
	maxChars   int
}

func main() {
	var (
		render   renderOptions
		splitIn  string
		splitMax int
		catalog  string
	)

	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)
	renderCmd.StringVar(&render.configPath, "config", "", "Optional configuration file")
	renderCmd.StringVar(&render.in, "in", "transcript.txt", "Transcript to synthesize")
	renderCmd.StringVar(&render.out, "out", "podcast.wav", "Output WAV file")
	renderCmd.StringVar(&render.voice, "voice", "", "Prebuilt voice (defaults to tts.voice)")
	renderCmd.StringVar(&render.profile, "profile", "", "Named profile from the voice catalog")
	renderCmd.StringVar(&render.catalog, "voices", "", "Voice catalog file (defaults to voices.catalog)")
	renderCmd.StringVar(&render.reference, "ref", "", "Reference sample to imitate")
	renderCmd.IntVar(&render.maxChars, "max", 0, "Maximum characters per chunk (defaults to tts.max_chars)")

	splitCmd := flag.NewFlagSet("split", flag.ExitOnError)
	splitCmd.StringVar(&splitIn, "in", "transcript.txt", "Transcript to split")
	splitCmd.IntVar(&splitMax, "max", chunker.DefaultMaxChars, "Maximum characters per chunk")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&catalog, "file", "voices.yaml", "Path to voice catalog")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'render', 'split', 'validate' or 'version'")
		os.Exit(2)
	}

	// a missing .env is fine
	_ = godotenv.Load()

	switch os.Args[1] {
	case "render":
		renderCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runRender(ctx, render); err != nil {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "split":
		splitCmd.Parse(os.Args[2:])
		if err := runSplit(splitIn, splitMax); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(catalog); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("catalog valid")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runRender(ctx context.Context, opts renderOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.maxChars > 0 {
		cfg.TTS.MaxChars = opts.maxChars
	}
	if opts.catalog == "" {
		opts.catalog = cfg.Voices.Catalog
	}

	transcript, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	profile, err := resolveProfile(cfg, opts)
	if err != nil {
		return err
	}

	synth, err := tts.New(ctx, cfg.TTS)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gen := studio.NewGenerator(synth, studio.Options{MaxChars: cfg.TTS.MaxChars, SampleRate: cfg.TTS.SampleRate}, logger)

	master, err := gen.Generate(ctx, string(transcript), profile, studio.ProgressFunc(func(percent int) {
		fmt.Fprintf(os.Stderr, "\rsynthesizing with %s... %3d%%", profile.Voice, percent)
	}))
	if err != nil {
		return err
	}
	data, err := master.WAV()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Printf("wrote %s (%d chunks, %s)\n", opts.out, master.Chunks, master.Duration.Round(10*time.Millisecond))
	return nil
}

func resolveProfile(cfg config.Config, opts renderOptions) (studio.VoiceProfile, error) {
	profile := studio.VoiceProfile{Voice: cfg.TTS.Voice}
	if opts.profile != "" {
		if opts.catalog == "" {
			return profile, fmt.Errorf("-profile requires a voice catalog (-voices)")
		}
		c, err := voices.Load(opts.catalog)
		if err != nil {
			return profile, err
		}
		if err := voices.Validate(c); err != nil {
			return profile, fmt.Errorf("invalid voice catalog %s: %w", opts.catalog, err)
		}
		if profile, err = c.Resolve(opts.profile); err != nil {
			return profile, err
		}
	} else if opts.voice != "" {
		profile.Voice = opts.voice
	}
	if !tts.ValidVoice(profile.Voice) {
		return profile, fmt.Errorf("unknown voice %q (choose one of %s)", profile.Voice, strings.Join(tts.Voices, ", "))
	}

	if opts.reference != "" {
		data, err := os.ReadFile(opts.reference)
		if err != nil {
			return profile, fmt.Errorf("read reference: %w", err)
		}
		mime := voices.MIMEForPath(opts.reference)
		if mime == "" {
			return profile, fmt.Errorf("cannot infer audio type of %s", opts.reference)
		}
		if mime == "audio/wav" {
			if info, err := wav.Inspect(data); err == nil {
				fmt.Fprintf(os.Stderr, "reference: %d Hz, %d ch, %s, peak %.2f\n", info.SampleRate, info.Channels, info.Duration, info.Peak)
			}
		}
		profile.Reference = &tts.ReferenceAudio{Data: data, MIMEType: mime}
	}
	return profile, nil
}

func runSplit(path string, maxChars int) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	chunks, err := chunker.Split(string(text), maxChars)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		fmt.Printf("--- chunk %d (%d chars)\n%s\n", c.Index+1, len([]rune(c.Text)), c.Text)
	}
	return nil
}

func runValidate(path string) error {
	c, err := voices.Load(path)
	if err != nil {
		return err
	}
	if err := voices.Validate(c); err != nil {
		return err
	}
	for _, name := range c.Names() {
		if _, err := c.Resolve(name); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return nil
}
