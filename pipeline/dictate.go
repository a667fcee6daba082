package pipeline

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"murmur/beep"
	"murmur/clipboard"
	"murmur/history"
	"murmur/hotkey"
	"murmur/log"
	"murmur/recorder"
)

// Dictation is the outcome of one stop-and-transcribe cycle.
type Dictation struct {
	Record   history.Record
	Delivery clipboard.Delivery
	// Artifact is set when transcription failed and the recording was kept.
	Artifact string
}

// Dictate stops the active session and transcribes it with name, or the
// default model when name is empty.
func (a *App) Dictate(ctx context.Context, name string) (Dictation, error) {
	art, err := a.StopRecording(ctx)
	if err != nil {
		return Dictation{}, err
	}
	return a.finish(ctx, art, a.modelName(name))
}

// Transcribe runs name over an existing artifact without touching the
// overlay or history.
func (a *App) Transcribe(ctx context.Context, path, name string) (string, error) {
	name = a.modelName(name)
	res, err := a.d.Models.TranscribeResult(ctx, path, name)
	if err != nil {
		a.d.Telemetry.TranscriptionFailed(ctx, name, Code(err))
		return "", err
	}
	a.d.Telemetry.Transcription(ctx, "", name, res.AudioSeconds, res.LoadTime, res.InferenceTime)
	return res.Text, nil
}

// finish owns art: it is deleted after a successful transcription unless
// artifacts are kept, and left in place on failure so it can be retried.
func (a *App) finish(ctx context.Context, art recorder.Artifact, name string) (Dictation, error) {
	ctx, span := a.d.Telemetry.Tracer().Start(ctx, "dictate", trace.WithAttributes(
		attribute.String("mode", string(art.Mode)),
		attribute.String("model", name),
		attribute.Float64("audio.seconds", art.Duration().Seconds()),
	))
	defer span.End()

	start := time.Now()
	a.d.Overlay.Processing()

	var screenText string
	if art.Mode == recorder.Assistant && a.d.Screen != nil {
		txt, err := a.d.Screen.CaptureVisibleText(ctx)
		if err != nil {
			log.Warnf("screen context: %v", err)
		}
		screenText = txt
	}

	res, err := a.d.Models.TranscribeResult(ctx, art.Path, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
		a.d.Overlay.Failed(err)
		a.sound(beep.Error)
		a.d.Telemetry.TranscriptionFailed(ctx, name, Code(err))
		log.Errorf("transcribe %s with %s: %v", art.Path, name, err)
		return Dictation{Artifact: art.Path}, err
	}
	a.d.Overlay.Completed(res.Text)

	if !a.d.KeepArtifacts {
		if err := os.Remove(art.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("remove artifact: %v", err)
		}
	}

	rec := history.Record{
		Mode:         string(art.Mode),
		Model:        name,
		Text:         res.Text,
		Context:      screenText,
		AudioSeconds: res.AudioSeconds,
		LoadMs:       float64(res.LoadTime.Microseconds()) / 1000,
		InferenceMs:  float64(res.InferenceTime.Microseconds()) / 1000,
	}

	var delivery clipboard.Delivery
	if res.Text != "" && a.d.Delivery != nil {
		delivery, err = a.d.Delivery.Deliver(ctx, res.Text, a.Preferences().AutoPaste)
		if err != nil {
			log.Warnf("deliver: %v", err)
		}
		rec.Delivered = string(delivery)
	}

	if a.d.History != nil {
		saved, err := a.d.History.Append(ctx, rec)
		if err != nil {
			log.Warnf("history: %v", err)
			rec.CreatedAt = time.Now()
		} else {
			rec = saved
		}
	} else {
		rec.CreatedAt = time.Now()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.TranscriptionMetrics(log.Metrics{
		AudioLengthS:   res.AudioSeconds,
		ArtifactSizeKB: float64(art.Size) / 1024,
		LoadTimeMs:     rec.LoadMs,
		InferenceMs:    rec.InferenceMs,
		TotalTimeMs:    float64(time.Since(start).Microseconds()) / 1000,
		MemoryAllocMB:  float64(mem.Alloc) / 1024 / 1024,
	}, rec.Mode, name)
	if res.Text != "" {
		log.TranscriptionText(res.Text)
	}
	a.d.Telemetry.Transcription(ctx, rec.Mode, name, res.AudioSeconds, res.LoadTime, res.InferenceTime)
	a.publish(Event{Type: EventTranscript, Transcript: TranscriptOf(rec)})

	return Dictation{Record: rec, Delivery: delivery}, nil
}

// RunHotkeys drives sessions from hotkey events until ctx is done or every
// source closes. Transcriptions run in the background; Wait blocks for them.
func (a *App) RunHotkeys(ctx context.Context, sources ...<-chan hotkey.Event) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan hotkey.Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-src:
					if !ok {
						return
					}
					mu.Lock()
					a.handleHotkey(ctx, ev)
					mu.Unlock()
				}
			}
		}(src)
	}
	wg.Wait()
}

func (a *App) handleHotkey(ctx context.Context, ev hotkey.Event) {
	switch ev.Kind {
	case hotkey.Start:
		if _, err := a.start(ctx, ev.Mode); err != nil {
			log.Warnf("hotkey start %s: %v", ev.Mode, err)
		}
	case hotkey.Promote:
		if err := a.d.Recorder.SetMode(ev.Mode); err != nil {
			return
		}
		a.d.Overlay.ShowRecording(ev.Mode)
	case hotkey.Stop:
		art, err := a.StopRecording(ctx)
		if err != nil {
			if !errors.Is(err, recorder.ErrNoActiveSession) {
				log.Warnf("hotkey stop: %v", err)
			}
			return
		}
		a.inflight.Add(1)
		go func() {
			defer a.inflight.Done()
			a.finish(context.WithoutCancel(ctx), art, a.d.DefaultModel)
		}()
	}
}

// Wait blocks until background transcriptions started by hotkeys finish.
func (a *App) Wait() {
	a.inflight.Wait()
}
