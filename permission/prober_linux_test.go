//go:build linux

package permission

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAutomationState(t *testing.T) {
	dir := t.TempDir()
	writable := filepath.Join(dir, "uinput")
	if err := os.WriteFile(writable, nil, 0600); err != nil {
		t.Fatal(err)
	}

	if got := automation([]string{filepath.Join(dir, "missing")}); got != Restricted {
		t.Errorf("missing device: got %v", got)
	}
	if got := automation([]string{filepath.Join(dir, "missing"), writable}); got != Granted {
		t.Errorf("writable device: got %v", got)
	}
	if path, st := probeUinput([]string{filepath.Join(dir, "missing")}); path != "" || st != Restricted {
		t.Errorf("missing device: got %q, %v", path, st)
	}
	if path, _ := probeUinput([]string{writable}); path != writable {
		t.Errorf("path = %q, want %q", path, writable)
	}
}

func TestScreenState(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		have bool
		want State
	}{
		{"no display", nil, true, Restricted},
		{"wayland with grim", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, true, Granted},
		{"x11 without import", map[string]string{"DISPLAY": ":0"}, false, Restricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &linuxProber{
				getenv: func(k string) string { return tt.env[k] },
				lookPath: func(string) (string, error) {
					if tt.have {
						return "/usr/bin/tool", nil
					}
					return "", errors.New("not found")
				},
			}
			if got := p.screen(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
