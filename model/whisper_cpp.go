//go:build whisper_cpp

package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type whisperRuntime struct {
	model    whisperpkg.Model
	threads  uint
	language string
}

// NewWhisperRuntime loads a ggml model through the whisper.cpp bindings.
func NewWhisperRuntime(path string, opts RuntimeOptions) (Runtime, error) {
	m, err := whisperpkg.New(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	threads := uint(runtime.NumCPU())
	if opts.Threads > 0 {
		threads = uint(opts.Threads)
	}
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	return &whisperRuntime{model: m, threads: threads, language: lang}, nil
}

func (w *whisperRuntime) Process(ctx context.Context, samples []float32) ([]string, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(w.threads)
	if err := wctx.SetLanguage(w.language); err != nil {
		return nil, fmt.Errorf("set language %q: %w", w.language, err)
	}

	// returning false from the encoder-begin callback aborts inference
	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, proceed, nil, nil); err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}

func (w *whisperRuntime) Close() error {
	return w.model.Close()
}
