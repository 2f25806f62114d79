package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind            string `yaml:"bind"`
	Port            int    `yaml:"port"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	DefaultFilename string `yaml:"default_filename"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	TTS         TTSConfig        `yaml:"tts"`
	Assembly    AssemblyConfig   `yaml:"assembly"`
	Workspace   WorkspaceConfig  `yaml:"workspace"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
}

type TTSConfig struct {
	Mode             string `yaml:"mode"` // mock, exec, google
	Command          string `yaml:"command"`
	Voice            string `yaml:"voice"`
	Language         string `yaml:"language"`
	Concurrency      int    `yaml:"concurrency"`
	SegmentTimeoutMS int    `yaml:"segment_timeout_ms"`
	SampleRate       int    `yaml:"sample_rate"`
}

// SegmentTimeout is the deadline applied to a single synthesis call.
func (c TTSConfig) SegmentTimeout() time.Duration {
	return time.Duration(c.SegmentTimeoutMS) * time.Millisecond
}

type AssemblyConfig struct {
	FFmpegPath         string  `yaml:"ffmpeg_path"`
	TimeoutMS          int     `yaml:"timeout_ms"`
	Codec              string  `yaml:"codec"`
	Bitrate            string  `yaml:"bitrate"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`
	StartSilenceSec    float64 `yaml:"start_silence_s"`
	StopSilenceSec     float64 `yaml:"stop_silence_s"`
	PadSec             float64 `yaml:"pad_s"`
}

// Timeout is the deadline applied to each merge attempt.
func (c AssemblyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type WorkspaceConfig struct {
	Dir                   string `yaml:"dir"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRequests   int    `yaml:"max_requests"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Embedded        bool     `yaml:"embedded"`
	Port            int      `yaml:"port"`
	StoreDir        string   `yaml:"store_dir"`
	Servers         []string `yaml:"servers"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	Token           string   `yaml:"token"`
	TLSInsecure     bool     `yaml:"tls_insecure"`
	ConnectTimeout  int      `yaml:"connect_timeout_ms"`
	RequestTimeout  int      `yaml:"request_timeout_ms"`
	MaxPayloadBytes int32    `yaml:"max_payload_bytes"`
}

// RequestTimeoutDuration bounds one narrate request served over the bus.
func (c BusConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrator",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:            "0.0.0.0",
			Port:            8000,
			MaxBodyBytes:    1 << 20,
			DefaultFilename: "ses.mp3",
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		TTS: TTSConfig{
			Mode:             "mock",
			Command:          "edge-tts",
			Voice:            "tr-TR-AhmetNeural",
			Language:         "tr-TR",
			Concurrency:      4,
			SegmentTimeoutMS: 30000,
			SampleRate:       24000,
		},
		Assembly: AssemblyConfig{
			FFmpegPath:         "ffmpeg",
			TimeoutMS:          120000,
			Codec:              "libmp3lame",
			Bitrate:            "320k",
			SilenceThresholdDB: -50,
			StartSilenceSec:    0.05,
			StopSilenceSec:     0.4,
			PadSec:             0.6,
		},
		Workspace: WorkspaceConfig{
			Dir:                   os.TempDir(),
			MaxConcurrentRequests: 8,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrator-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRequests:   10000,
		},
		Bus: BusConfig{
			Enabled:         false,
			Embedded:        true,
			Port:            4222,
			StoreDir:        "./data/nats",
			Servers:         []string{"nats://localhost:4222"},
			ConnectTimeout:  2000,
			RequestTimeout:  300000,
			MaxPayloadBytes: 8 << 20,
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
	overrideString(&cfg.RuntimeName, "NARRATOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NARRATOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideInt64(&cfg.HTTP.MaxBodyBytes, "NARRATOR_HTTP_MAX_BODY_BYTES")
	overrideString(&cfg.HTTP.DefaultFilename, "NARRATOR_HTTP_DEFAULT_FILENAME")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.TTS.Mode, "NARRATOR_TTS_MODE")
	overrideString(&cfg.TTS.Command, "NARRATOR_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "NARRATOR_TTS_VOICE")
	overrideString(&cfg.TTS.Language, "NARRATOR_TTS_LANGUAGE")
	overrideInt(&cfg.TTS.Concurrency, "NARRATOR_TTS_CONCURRENCY")
	overrideInt(&cfg.TTS.SegmentTimeoutMS, "NARRATOR_TTS_SEGMENT_TIMEOUT_MS")
	overrideInt(&cfg.TTS.SampleRate, "NARRATOR_TTS_SAMPLE_RATE")
	overrideString(&cfg.Assembly.FFmpegPath, "NARRATOR_ASSEMBLY_FFMPEG_PATH")
	overrideInt(&cfg.Assembly.TimeoutMS, "NARRATOR_ASSEMBLY_TIMEOUT_MS")
	overrideString(&cfg.Assembly.Codec, "NARRATOR_ASSEMBLY_CODEC")
	overrideString(&cfg.Assembly.Bitrate, "NARRATOR_ASSEMBLY_BITRATE")
	overrideFloat(&cfg.Assembly.SilenceThresholdDB, "NARRATOR_ASSEMBLY_SILENCE_THRESHOLD_DB")
	overrideFloat(&cfg.Assembly.StartSilenceSec, "NARRATOR_ASSEMBLY_START_SILENCE_S")
	overrideFloat(&cfg.Assembly.StopSilenceSec, "NARRATOR_ASSEMBLY_STOP_SILENCE_S")
	overrideFloat(&cfg.Assembly.PadSec, "NARRATOR_ASSEMBLY_PAD_S")
	overrideString(&cfg.Workspace.Dir, "NARRATOR_WORKSPACE_DIR")
	overrideInt(&cfg.Workspace.MaxConcurrentRequests, "NARRATOR_WORKSPACE_MAX_CONCURRENT_REQUESTS")
	overrideString(&cfg.EventStore.Path, "NARRATOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "NARRATOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "NARRATOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRequests, "NARRATOR_EVENT_STORE_MAX_REQUESTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "NARRATOR_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "NARRATOR_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NARRATOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRATOR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRATOR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRATOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRATOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRATOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRATOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRATOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRATOR_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.RequestTimeout, "NARRATOR_BUS_REQUEST_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
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
	if strings.TrimSpace(cfg.HTTP.DefaultFilename) == "" {
		return errors.New("http.default_filename must not be empty")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "google":
	default:
		return errors.New("tts.mode must be one of mock|exec|google")
	}
	if cfg.TTS.Mode == "exec" && strings.TrimSpace(cfg.TTS.Command) == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Voice == "" {
		return errors.New("tts.voice must not be empty")
	}
	if cfg.TTS.Mode == "google" && cfg.TTS.Language == "" {
		return errors.New("tts.language must be set when mode=google")
	}
	if cfg.TTS.Concurrency <= 0 {
		return errors.New("tts.concurrency must be >= 1")
	}
	if cfg.TTS.SegmentTimeoutMS < 0 {
		return errors.New("tts.segment_timeout_ms must be >= 0")
	}
	if cfg.TTS.Mode == "mock" && cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive when mode=mock")
	}
	if cfg.Assembly.FFmpegPath == "" {
		return errors.New("assembly.ffmpeg_path must not be empty")
	}
	if cfg.Assembly.TimeoutMS < 0 {
		return errors.New("assembly.timeout_ms must be >= 0")
	}
	if cfg.Assembly.Codec == "" || cfg.Assembly.Bitrate == "" {
		return errors.New("assembly.codec and assembly.bitrate must not be empty")
	}
	if cfg.Assembly.SilenceThresholdDB > 0 {
		return errors.New("assembly.silence_threshold_db must be <= 0")
	}
	if cfg.Assembly.StartSilenceSec < 0 || cfg.Assembly.StopSilenceSec < 0 || cfg.Assembly.PadSec < 0 {
		return errors.New("assembly silence and pad durations must be >= 0")
	}
	if cfg.Workspace.Dir == "" {
		return errors.New("workspace.dir must not be empty")
	}
	if cfg.Workspace.MaxConcurrentRequests < 0 {
		return errors.New("workspace.max_concurrent_requests must be >= 0")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.RequestTimeout < 0 {
			return errors.New("bus.request_timeout_ms must be >= 0")
		}
		if cfg.Bus.MaxPayloadBytes <= 0 {
			return errors.New("bus.max_payload_bytes must be positive")
		}
	}
	return nil
}
