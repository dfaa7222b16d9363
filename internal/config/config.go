package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"` // optional dedicated /metrics listener
}

type HTTPConfig struct {
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	TTS         TTSConfig        `yaml:"tts"`
	Assist      AssistConfig     `yaml:"assist"`
	Jobs        JobsConfig       `yaml:"jobs"`
	Voices      VoicesConfig     `yaml:"voices"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TTSConfig struct {
	Mode           string `yaml:"mode"` // mock, exec, gemini
	Command        string `yaml:"command"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	StudioModel    string `yaml:"studio_model"`
	ReferenceModel string `yaml:"reference_model"`
	Voice          string `yaml:"voice"`
	SampleRate     int    `yaml:"sample_rate"`
	MaxChars       int    `yaml:"max_chars"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
}

type AssistConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
}

type JobsConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"max_concurrency"`
	RunTimeout  int  `yaml:"run_timeout_ms"`
}

type VoicesConfig struct {
	Catalog string `yaml:"catalog"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-studio",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 32 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-studio.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		TTS: TTSConfig{
			Mode:           "mock",
			Endpoint:       "https://generativelanguage.googleapis.com/",
			StudioModel:    "gemini-2.5-flash-preview-tts",
			ReferenceModel: "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice:          "Kore",
			SampleRate:     24000,
			MaxChars:       3000,
			RequestTimeout: 120000,
		},
		Assist: AssistConfig{
			Enabled:        false,
			Endpoint:       "https://generativelanguage.googleapis.com/",
			Model:          "gemini-3-flash-preview",
			RequestTimeout: 60000,
		},
		Jobs: JobsConfig{
			Enabled:     true,
			Concurrency: 2,
			RunTimeout:  30 * 60 * 1000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideInt64(&cfg.HTTP.MaxBodyBytes, "LOQA_HTTP_MAX_BODY_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "LOQA_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Endpoint, "LOQA_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "LOQA_TTS_API_KEY")
	overrideString(&cfg.TTS.StudioModel, "LOQA_TTS_STUDIO_MODEL")
	overrideString(&cfg.TTS.ReferenceModel, "LOQA_TTS_REFERENCE_MODEL")
	overrideString(&cfg.TTS.Voice, "LOQA_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.MaxChars, "LOQA_TTS_MAX_CHARS")
	overrideInt(&cfg.TTS.RequestTimeout, "LOQA_TTS_REQUEST_TIMEOUT_MS")
	overrideBool(&cfg.Assist.Enabled, "LOQA_ASSIST_ENABLED")
	overrideString(&cfg.Assist.Endpoint, "LOQA_ASSIST_ENDPOINT")
	overrideString(&cfg.Assist.APIKey, "LOQA_ASSIST_API_KEY")
	overrideString(&cfg.Assist.Model, "LOQA_ASSIST_MODEL")
	overrideInt(&cfg.Assist.RequestTimeout, "LOQA_ASSIST_REQUEST_TIMEOUT_MS")
	overrideBool(&cfg.Jobs.Enabled, "LOQA_JOBS_ENABLED")
	overrideInt(&cfg.Jobs.Concurrency, "LOQA_JOBS_MAX_CONCURRENCY")
	overrideInt(&cfg.Jobs.RunTimeout, "LOQA_JOBS_RUN_TIMEOUT_MS")
	overrideString(&cfg.Voices.Catalog, "LOQA_VOICES_CATALOG")

	// the assist client shares the synthesis credentials unless given its own
	if cfg.Assist.APIKey == "" {
		cfg.Assist.APIKey = cfg.TTS.APIKey
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "gemini":
	default:
		return errors.New("tts.mode must be one of mock|exec|gemini")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "gemini" {
		if cfg.TTS.Endpoint == "" {
			return errors.New("tts.endpoint must be set when mode=gemini")
		}
		if cfg.TTS.APIKey == "" {
			return errors.New("tts.api_key must be set when mode=gemini")
		}
		if cfg.TTS.StudioModel == "" || cfg.TTS.ReferenceModel == "" {
			return errors.New("tts.studio_model and tts.reference_model must be set when mode=gemini")
		}
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.MaxChars <= 0 {
		return errors.New("tts.max_chars must be positive")
	}
	if cfg.TTS.RequestTimeout < 0 {
		return errors.New("tts.request_timeout_ms must be >= 0")
	}
	if cfg.Assist.RequestTimeout < 0 {
		return errors.New("assist.request_timeout_ms must be >= 0")
	}
	if cfg.Assist.Enabled {
		if cfg.Assist.Endpoint == "" || cfg.Assist.Model == "" {
			return errors.New("assist.endpoint and assist.model must be set when assist is enabled")
		}
		if cfg.Assist.APIKey == "" {
			return errors.New("assist.api_key must be set when assist is enabled")
		}
	}
	if cfg.Jobs.Enabled && cfg.Jobs.Concurrency <= 0 {
		return errors.New("jobs.max_concurrency must be >= 1")
	}
	return nil
}
