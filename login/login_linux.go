//go:build linux

package login

import (
	"fmt"
	"os"
	"path/filepath"
)

func path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", "murmur.desktop")
}

func Enabled() bool {
	_, err := os.Stat(path())
	return err == nil
}

func Enable() error {
	exe, err := executable()
	if err != nil {
		return err
	}
	p := path()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create autostart dir: %w", err)
	}
	if err := os.WriteFile(p, []byte(renderDesktop(exe, Args, forwardedEnv(os.Environ()))), 0644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}
	return nil
}

func Disable() error {
	if err := os.Remove(path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove autostart entry: %w", err)
	}
	return nil
}
