package pipeline

import (
	"context"
	"fmt"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/codec"
	"murmur/config"
	"murmur/history"
	"murmur/log"
	"murmur/model"
	"murmur/overlay"
	"murmur/permission"
	"murmur/recorder"
	"murmur/screen"
	"murmur/telemetry"
)

// Options override the system-facing parts Build would otherwise open.
type Options struct {
	Audio     audio.Context
	Prober    permission.Prober
	Factory   model.Factory
	Telemetry *telemetry.Telemetry
}

// Build constructs every component from cfg. Optional parts that fail to
// open (history, screen capture, synthetic paste) are logged and left out.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	format, err := codec.ParseFormat(cfg.Recording.Format)
	if err != nil {
		return nil, err
	}

	prober := opts.Prober
	if prober == nil {
		prober = permission.NewSystemProber()
	}
	perms := permission.NewOrchestrator(prober,
		permission.WithPollInterval(config.Millis(cfg.Permission.PollIntervalMS)),
		permission.WithSettleTimeout(config.Millis(cfg.Permission.SettleTimeoutMS)),
	)

	ac := opts.Audio
	if ac == nil {
		if ac, err = audio.NewContext(); err != nil {
			return nil, fmt.Errorf("open audio: %w", err)
		}
	}
	device, err := audio.FindDevice(ac, cfg.Recording.Device)
	if err != nil {
		log.Warnf("%v, using the default input", err)
	}

	ov := overlay.New(overlay.Config{
		BlinkInterval: config.Millis(cfg.Overlay.BlinkMS),
		Dwell:         config.Millis(cfg.Overlay.DwellMS),
		IdleAfter:     config.Millis(cfg.Overlay.IdleAfterMS),
	})

	rec := recorder.New(recorder.Config{
		Dir:           cfg.Paths.SharedDir,
		Format:        format,
		Device:        device,
		LevelInterval: config.Millis(cfg.Recording.LevelIntervalMS),
	}, ac, perms)
	rec.SetLevelSink(ov)
	if n, err := rec.SweepOrphans(time.Duration(cfg.Recording.OrphanTTLMinutes) * time.Minute); err != nil {
		log.Warnf("sweep recordings: %v", err)
	} else if n > 0 {
		log.Infof("removed %d stale recordings", n)
	}

	models := model.NewManager(model.Config{
		Dir:     cfg.Paths.ModelsDir,
		BaseURL: cfg.Model.BaseURL,
		Factory: opts.Factory,
		Runtime: model.RuntimeOptions{
			Threads:  cfg.Model.Threads,
			Language: cfg.Model.Language,
		},
	})

	prefs, err := config.OpenPreferences(cfg.Paths.Preferences)
	if err != nil {
		return nil, err
	}

	d := Deps{
		Audio:         ac,
		Permissions:   perms,
		Recorder:      rec,
		Overlay:       ov,
		Models:        models,
		Preferences:   prefs,
		Telemetry:     opts.Telemetry,
		DefaultModel:  cfg.Model.Default,
		KeepArtifacts: cfg.Recording.KeepArtifacts,
	}

	if h, err := screen.New(screen.Config{
		CaptureCommand: cfg.Screen.CaptureCommand,
		OCRCommand:     cfg.Screen.OCRCommand,
	}, perms); err != nil {
		log.Warnf("screen context disabled: %v", err)
	} else {
		d.Screen = h
	}

	if cfg.Paths.HistoryDB != "" {
		if st, err := history.Open(ctx, cfg.Paths.HistoryDB, cfg.Paths.HistoryMax); err != nil {
			log.Warnf("history disabled: %v", err)
		} else {
			d.History = st
		}
	}

	go func() {
		if err := clipboard.Init(); err != nil {
			log.Warnf("paste init: %v, falling back to clipboard only", err)
		}
	}()
	d.Delivery = clipboard.NewDeliverer(perms)

	return New(d), nil
}
