//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppDir returns the per-user application directory that holds
// configuration, models and history.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "murmur"), nil
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "murmur"), nil
}

func getDefaultDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "murmur"), nil
	}
	app, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, "logs"), nil
}
