// Package model downloads, caches, loads and runs whisper.cpp speech models.
package model

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrModelNotDownloaded = errors.New("model not downloaded")
	ErrAudioFileMissing   = errors.New("audio file missing")
	ErrDownloadFailed     = errors.New("model download failed")
	ErrLoadFailed         = errors.New("model load failed")
	ErrUnknownModel       = errors.New("unknown model")
)

const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Variant describes a published model file. Size is the advertised byte
// count and is only a hint until the file is on disk.
type Variant struct {
	Name        string
	Size        int64
	EnglishOnly bool
}

var catalog = map[string]Variant{
	"tiny":           {"tiny", 77691713, false},
	"tiny.en":        {"tiny.en", 77704715, true},
	"base":           {"base", 147951465, false},
	"base.en":        {"base.en", 147964211, true},
	"small":          {"small", 487601967, false},
	"small.en":       {"small.en", 487614201, true},
	"medium":         {"medium", 1533763059, false},
	"medium.en":      {"medium.en", 1533774781, true},
	"large-v3":       {"large-v3", 3095033483, false},
	"large-v3-turbo": {"large-v3-turbo", 1624555275, false},
}

// Catalog returns the known variants sorted by name.
func Catalog() []Variant {
	out := make([]Variant, 0, len(catalog))
	for _, v := range catalog {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Lookup(name string) (Variant, error) {
	v, ok := catalog[name]
	if !ok {
		return Variant{}, ErrUnknownModel
	}
	return v, nil
}

func FileName(name string) string {
	return "ggml-" + name + ".bin"
}

func URL(baseURL, name string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + FileName(name)
}

// validName rejects names that would escape the models directory.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
