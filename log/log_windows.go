//go:build windows

package log

import (
	"os"
	"path/filepath"
)

// AppDir returns the per-user application directory that holds
// configuration, models and history.
func AppDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		localAppData = filepath.Join(home, "AppData", "Local")
	}
	return filepath.Join(localAppData, "murmur"), nil
}

func getDefaultDir() (string, error) {
	app, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, "logs"), nil
}
