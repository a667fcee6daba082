package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recording.Format != "wav" {
		t.Fatalf("expected wav default, got %q", cfg.Recording.Format)
	}
	if cfg.Recording.LevelIntervalMS != 50 {
		t.Fatalf("expected 50ms level interval, got %d", cfg.Recording.LevelIntervalMS)
	}
	if !strings.HasPrefix(cfg.IPC.Socket, cfg.Paths.SharedDir) {
		t.Fatalf("socket %q should live in shared dir %q", cfg.IPC.Socket, cfg.Paths.SharedDir)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.yaml")
	body := `
recording:
  format: flac
  keep_artifacts: true
model:
  default: tiny.en
  threads: 4
screen:
  ocr_command: "tesseract {in} stdout -l eng"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recording.Format != "flac" || !cfg.Recording.KeepArtifacts {
		t.Fatalf("recording section not applied: %+v", cfg.Recording)
	}
	if cfg.Model.Default != "tiny.en" || cfg.Model.Threads != 4 {
		t.Fatalf("model section not applied: %+v", cfg.Model)
	}
	// untouched fields keep defaults
	if cfg.Permission.SettleTimeoutMS != 5000 {
		t.Fatalf("expected default settle timeout, got %d", cfg.Permission.SettleTimeoutMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MURMUR_SHARED_DIR", "/tmp/shared")
	t.Setenv("MURMUR_RECORDING_FORMAT", "flac")
	t.Setenv("MURMUR_RECORDING_KEEP_ARTIFACTS", "true")
	t.Setenv("MURMUR_PERMISSION_SETTLE_TIMEOUT_MS", "9000")
	t.Setenv("MURMUR_MODEL", "small")
	t.Setenv("MURMUR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MURMUR_HOTKEY_HYBRID", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Paths.SharedDir != "/tmp/shared" {
		t.Fatalf("expected shared dir override, got %q", cfg.Paths.SharedDir)
	}
	if cfg.Recording.Format != "flac" || !cfg.Recording.KeepArtifacts {
		t.Fatalf("expected recording overrides, got %+v", cfg.Recording)
	}
	if cfg.Permission.SettleTimeoutMS != 9000 {
		t.Fatalf("expected settle timeout 9000, got %d", cfg.Permission.SettleTimeoutMS)
	}
	if cfg.Model.Default != "small" {
		t.Fatalf("expected model override")
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://two:4222" {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if !cfg.Hotkey.Hybrid {
		t.Fatal("expected hybrid override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad format", func(c *Config) { c.Recording.Format = "mp3" }, "recording.format"},
		{"empty shared", func(c *Config) { c.Paths.SharedDir = "" }, "shared_dir"},
		{"settle below poll", func(c *Config) { c.Permission.SettleTimeoutMS = 10 }, "settle_timeout"},
		{"no model", func(c *Config) { c.Model.Default = "" }, "model.default"},
		{"zero blink", func(c *Config) { c.Overlay.BlinkMS = 0 }, "overlay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestPreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "preferences.yaml")

	s, err := OpenPreferences(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Get(); !got.Sound || !got.AutoPaste {
		t.Fatalf("expected defaults, got %+v", got)
	}

	if _, err := s.Update(func(p *Preferences) { p.Sound = false }); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenPreferences(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Get(); got.Sound || !got.AutoPaste {
		t.Fatalf("expected sound off after reload, got %+v", got)
	}
}
