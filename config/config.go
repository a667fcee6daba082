package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"murmur/log"
)

type PathsConfig struct {
	SharedDir   string `yaml:"shared_dir"`
	ModelsDir   string `yaml:"models_dir"`
	HistoryDB   string `yaml:"history_db"`
	HistoryMax  int    `yaml:"history_max"` // 0 keeps everything
	Preferences string `yaml:"preferences"`
}

type RecordingConfig struct {
	Format           string `yaml:"format"` // wav or flac
	Device           string `yaml:"device"`
	KeepArtifacts    bool   `yaml:"keep_artifacts"`
	OrphanTTLMinutes int    `yaml:"orphan_ttl_minutes"`
	LevelIntervalMS  int    `yaml:"level_interval_ms"`
}

type PermissionConfig struct {
	PollIntervalMS  int `yaml:"poll_interval_ms"`
	SettleTimeoutMS int `yaml:"settle_timeout_ms"`
}

type ModelConfig struct {
	Default  string `yaml:"default"`
	BaseURL  string `yaml:"base_url"`
	Threads  int    `yaml:"threads"`
	Language string `yaml:"language"`
}

type ScreenConfig struct {
	CaptureCommand string `yaml:"capture_command"`
	OCRCommand     string `yaml:"ocr_command"`
}

type OverlayConfig struct {
	BlinkMS     int `yaml:"blink_ms"`
	DwellMS     int `yaml:"dwell_ms"`
	IdleAfterMS int `yaml:"idle_after_ms"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

type BusConfig struct {
	Servers        []string `yaml:"servers"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TelemetryConfig struct {
	MetricsBind  string `yaml:"metrics_bind"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HotkeyConfig struct {
	Hybrid      bool `yaml:"hybrid"`
	LongPressMS int  `yaml:"long_press_ms"`
}

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Recording  RecordingConfig  `yaml:"recording"`
	Permission PermissionConfig `yaml:"permission"`
	Model      ModelConfig      `yaml:"model"`
	Screen     ScreenConfig     `yaml:"screen"`
	Overlay    OverlayConfig    `yaml:"overlay"`
	IPC        IPCConfig        `yaml:"ipc"`
	Bus        BusConfig        `yaml:"bus"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
}

func Default() Config {
	base, err := log.AppDir()
	if err != nil {
		base = ".murmur"
	}
	shared := filepath.Join(base, "shared")
	return Config{
		Paths: PathsConfig{
			SharedDir:   shared,
			ModelsDir:   filepath.Join(base, "models"),
			HistoryDB:   filepath.Join(base, "history.db"),
			HistoryMax:  1000,
			Preferences: filepath.Join(base, "preferences.yaml"),
		},
		Recording: RecordingConfig{
			Format:           "wav",
			OrphanTTLMinutes: 24 * 60,
			LevelIntervalMS:  50,
		},
		Permission: PermissionConfig{
			PollIntervalMS:  250,
			SettleTimeoutMS: 5000,
		},
		Model: ModelConfig{
			Default:  "base.en",
			BaseURL:  "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
			Language: "en",
		},
		Overlay: OverlayConfig{
			BlinkMS:     1000,
			DwellMS:     1500,
			IdleAfterMS: 300,
		},
		IPC: IPCConfig{
			Socket: filepath.Join(shared, "murmur.sock"),
		},
		Bus: BusConfig{
			SubjectPrefix:  "murmur",
			ConnectTimeout: 2000,
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: true,
		},
		Hotkey: HotkeyConfig{
			LongPressMS: 350,
		},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// MURMUR_* environment overrides. An empty path skips the file.
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
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Paths.SharedDir, "MURMUR_SHARED_DIR")
	overrideString(&cfg.Paths.ModelsDir, "MURMUR_MODELS_DIR")
	overrideString(&cfg.Paths.HistoryDB, "MURMUR_HISTORY_DB")
	overrideString(&cfg.Paths.Preferences, "MURMUR_PREFERENCES")
	overrideString(&cfg.Recording.Format, "MURMUR_RECORDING_FORMAT")
	overrideString(&cfg.Recording.Device, "MURMUR_RECORDING_DEVICE")
	overrideBool(&cfg.Recording.KeepArtifacts, "MURMUR_RECORDING_KEEP_ARTIFACTS")
	overrideInt(&cfg.Recording.OrphanTTLMinutes, "MURMUR_RECORDING_ORPHAN_TTL_MINUTES")
	overrideInt(&cfg.Permission.PollIntervalMS, "MURMUR_PERMISSION_POLL_INTERVAL_MS")
	overrideInt(&cfg.Permission.SettleTimeoutMS, "MURMUR_PERMISSION_SETTLE_TIMEOUT_MS")
	overrideString(&cfg.Model.Default, "MURMUR_MODEL")
	overrideString(&cfg.Model.BaseURL, "MURMUR_MODEL_BASE_URL")
	overrideInt(&cfg.Model.Threads, "MURMUR_MODEL_THREADS")
	overrideString(&cfg.Model.Language, "MURMUR_MODEL_LANGUAGE")
	overrideString(&cfg.Screen.CaptureCommand, "MURMUR_SCREEN_CAPTURE_COMMAND")
	overrideString(&cfg.Screen.OCRCommand, "MURMUR_SCREEN_OCR_COMMAND")
	overrideString(&cfg.IPC.Socket, "MURMUR_IPC_SOCKET")
	overrideStringSlice(&cfg.Bus.Servers, "MURMUR_BUS_SERVERS")
	overrideString(&cfg.Bus.SubjectPrefix, "MURMUR_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.Telemetry.MetricsBind, "MURMUR_TELEMETRY_METRICS_BIND")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MURMUR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MURMUR_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Hotkey.Hybrid, "MURMUR_HOTKEY_HYBRID")
	overrideInt(&cfg.Hotkey.LongPressMS, "MURMUR_HOTKEY_LONG_PRESS_MS")
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

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate checks cross-field constraints after every override is applied.
func Validate(cfg Config) error {
	if cfg.Paths.SharedDir == "" {
		return errors.New("paths.shared_dir must not be empty")
	}
	if cfg.Paths.ModelsDir == "" {
		return errors.New("paths.models_dir must not be empty")
	}
	switch cfg.Recording.Format {
	case "wav", "flac":
	default:
		return fmt.Errorf("recording.format must be wav or flac, got %q", cfg.Recording.Format)
	}
	if cfg.Paths.HistoryMax < 0 {
		return errors.New("paths.history_max must be >= 0")
	}
	if cfg.Recording.OrphanTTLMinutes < 0 {
		return errors.New("recording.orphan_ttl_minutes must be >= 0")
	}
	if cfg.Recording.LevelIntervalMS <= 0 {
		return errors.New("recording.level_interval_ms must be positive")
	}
	if cfg.Permission.PollIntervalMS <= 0 {
		return errors.New("permission.poll_interval_ms must be positive")
	}
	if cfg.Permission.SettleTimeoutMS < cfg.Permission.PollIntervalMS {
		return errors.New("permission.settle_timeout_ms must be >= poll interval")
	}
	if cfg.Model.Default == "" {
		return errors.New("model.default must not be empty")
	}
	if cfg.Model.Threads < 0 {
		return errors.New("model.threads must be >= 0")
	}
	if cfg.Overlay.BlinkMS <= 0 || cfg.Overlay.DwellMS <= 0 || cfg.Overlay.IdleAfterMS <= 0 {
		return errors.New("overlay timings must be positive")
	}
	if cfg.IPC.Socket == "" {
		return errors.New("ipc.socket must not be empty")
	}
	if cfg.Hotkey.LongPressMS <= 0 {
		return errors.New("hotkey.long_press_ms must be positive")
	}
	return nil
}

func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
