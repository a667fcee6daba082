//go:build !whisper_cpp

package model

import (
	"errors"
	"fmt"
)

var errNoRuntime = errors.New("built without whisper_cpp support (rebuild with -tags whisper_cpp)")

// NewWhisperRuntime always fails in builds without the whisper_cpp tag.
func NewWhisperRuntime(path string, _ RuntimeOptions) (Runtime, error) {
	return nil, fmt.Errorf("load %s: %w", path, errNoRuntime)
}
