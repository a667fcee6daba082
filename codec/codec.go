// Package codec writes recorded PCM to audio artifacts and reads them back
// as normalized samples for inference.
package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Format string

const (
	WAV  Format = "wav"
	FLAC Format = "flac"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case WAV:
		return WAV, nil
	case FLAC:
		return FLAC, nil
	}
	return "", fmt.Errorf("unknown audio format %q (use wav or flac)", s)
}

func (f Format) Ext() string { return "." + string(f) }

// Writer streams mono 16-bit samples into a file. Close finalizes headers
// and must be called before the file is read.
type Writer interface {
	Write(samples []int16) error
	Close() error
	Frames() uint64
	Path() string
}

// Create opens path for writing in format f.
func Create(path string, f Format) (Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	var w Writer
	switch f {
	case WAV:
		w = newWAVWriter(file)
	case FLAC:
		w, err = newFLACWriter(file)
	default:
		err = fmt.Errorf("unknown audio format %q", f)
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Duration converts a frame count at SampleRate to seconds.
func Duration(frames uint64) float64 {
	return float64(frames) / SampleRate
}
