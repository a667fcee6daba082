// Package pipeline holds the single App that wires permissions, recording,
// the overlay and the speech model into dictation operations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/history"
	"murmur/log"
	"murmur/model"
	"murmur/overlay"
	"murmur/permission"
	"murmur/recorder"
	"murmur/telemetry"
)

// ErrInvalidArgument marks malformed caller input such as an unknown mode.
var ErrInvalidArgument = errors.New("invalid argument")

// ScreenReader extracts visible on-screen text.
type ScreenReader interface {
	CaptureVisibleText(ctx context.Context) (string, error)
}

// Deliverer hands finished text to the focused application.
type Deliverer interface {
	Deliver(ctx context.Context, text string, autoPaste bool) (clipboard.Delivery, error)
}

// Deps are the components an App drives. Audio, History, Screen, Delivery,
// Telemetry and Preferences may be nil.
type Deps struct {
	Audio       audio.Context
	Permissions *permission.Orchestrator
	Recorder    *recorder.Manager
	Overlay     *overlay.Overlay
	Models      *model.Manager
	Screen      ScreenReader
	History     *history.Store
	Delivery    Deliverer
	Preferences *config.PreferenceStore
	Telemetry   *telemetry.Telemetry

	DefaultModel  string
	KeepArtifacts bool
}

type App struct {
	d Deps

	// cue plays feedback sounds; replaced in tests.
	cue func(beep.Cue)

	inflight sync.WaitGroup

	subMu       sync.Mutex
	subs        map[int]chan Event
	nextSub     int
	lastOverlay overlay.State
}

func New(d Deps) *App {
	a := &App{
		d:    d,
		cue:  beep.Play,
		subs: make(map[int]chan Event),

		lastOverlay: overlay.Hidden,
	}
	if d.Overlay != nil {
		d.Overlay.AddSink(a)
	}
	return a
}

// Close cancels any recording, waits for background transcriptions, then
// releases the loaded model and closes the history database.
func (a *App) Close() {
	if a.d.Recorder != nil {
		if _, _, ok := a.d.Recorder.Active(); ok {
			a.d.Recorder.Cancel()
		}
	}
	a.inflight.Wait()
	if a.d.Models != nil {
		a.d.Models.Close()
	}
	if a.d.History != nil {
		a.d.History.Close()
	}
	if a.d.Overlay != nil {
		a.d.Overlay.Close()
	}
	if a.d.Audio != nil {
		a.d.Audio.Close()
	}
	a.subMu.Lock()
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.subMu.Unlock()
}

// Components returns the parts the App was built from.
func (a *App) Components() Deps { return a.d }

func (a *App) sound(c beep.Cue) {
	if a.d.Preferences != nil && !a.d.Preferences.Get().Sound {
		return
	}
	a.cue(c)
}

func parseCapability(name string) (permission.Capability, error) {
	c, err := permission.ParseCapability(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return c, nil
}

func parseMode(name string) (recorder.Mode, error) {
	m, err := recorder.ParseMode(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return m, nil
}

func (a *App) CheckPermission(ctx context.Context, capability string) (permission.State, error) {
	c, err := parseCapability(capability)
	if err != nil {
		return permission.Unknown, err
	}
	return a.d.Permissions.Check(ctx, c)
}

func (a *App) RequestPermission(ctx context.Context, capability string) (permission.State, error) {
	c, err := parseCapability(capability)
	if err != nil {
		return permission.Unknown, err
	}
	return a.d.Permissions.Request(ctx, c)
}

func (a *App) OpenSystemSettings(capability string) error {
	c, err := parseCapability(capability)
	if err != nil {
		return err
	}
	return a.d.Permissions.OpenSystemSettings(c)
}

// StartRecording opens a session and shows the recording overlay.
func (a *App) StartRecording(ctx context.Context, mode string) (recorder.Handle, error) {
	m, err := parseMode(mode)
	if err != nil {
		return recorder.Handle{}, err
	}
	return a.start(ctx, m)
}

func (a *App) start(ctx context.Context, m recorder.Mode) (recorder.Handle, error) {
	h, err := a.d.Recorder.Start(ctx, m)
	if err != nil {
		if errors.Is(err, recorder.ErrPermissionDenied) {
			a.d.Overlay.Failed(err)
			a.sound(beep.Error)
		}
		return recorder.Handle{}, err
	}
	a.d.Overlay.ShowRecording(m)
	a.sound(beep.Start)
	a.publish(Event{Type: EventSession, Session: &SessionEvent{Phase: string(recorder.Recording), Mode: string(m), Path: h.Path}})
	return h, nil
}

func (a *App) PauseRecording() error {
	if err := a.d.Recorder.Pause(); err != nil {
		return err
	}
	a.d.Overlay.Paused()
	a.publishPhase(recorder.Paused)
	return nil
}

func (a *App) ResumeRecording() error {
	if err := a.d.Recorder.Resume(); err != nil {
		return err
	}
	if h, _, ok := a.d.Recorder.Active(); ok {
		a.d.Overlay.ShowRecording(h.Mode)
	}
	a.publishPhase(recorder.Recording)
	return nil
}

// StopRecording finalizes the session without transcribing it.
func (a *App) StopRecording(ctx context.Context) (recorder.Artifact, error) {
	art, err := a.d.Recorder.Stop()
	if err != nil {
		return recorder.Artifact{}, err
	}
	a.d.Overlay.Stopped()
	a.sound(beep.Stop)
	a.d.Telemetry.Session(ctx, string(art.Mode), "stopped")
	a.publish(Event{Type: EventSession, Session: &SessionEvent{Phase: string(recorder.Finalizing), Mode: string(art.Mode), Path: art.Path}})
	return art, nil
}

func (a *App) CancelRecording(ctx context.Context) error {
	h, _, ok := a.d.Recorder.Active()
	if err := a.d.Recorder.Cancel(); err != nil {
		return err
	}
	a.d.Overlay.Stopped()
	a.sound(beep.Cancel)
	if ok {
		a.d.Telemetry.Session(ctx, string(h.Mode), "cancelled")
	}
	a.publishPhase(recorder.Discarded)
	return nil
}

func (a *App) RestartRecording(ctx context.Context) (recorder.Handle, error) {
	h, err := a.d.Recorder.Restart(ctx)
	if err != nil {
		return recorder.Handle{}, err
	}
	a.d.Overlay.ShowRecording(h.Mode)
	a.publish(Event{Type: EventSession, Session: &SessionEvent{Phase: string(recorder.Recording), Mode: string(h.Mode), Path: h.Path}})
	return h, nil
}

func (a *App) publishPhase(p recorder.Phase) {
	ev := &SessionEvent{Phase: string(p)}
	if h, _, ok := a.d.Recorder.Active(); ok {
		ev.Mode = string(h.Mode)
		ev.Path = h.Path
	}
	a.publish(Event{Type: EventSession, Session: ev})
}

func (a *App) ShowOverlay(mode string) error {
	m, err := parseMode(mode)
	if err != nil {
		return err
	}
	a.d.Overlay.ShowRecording(m)
	return nil
}

func (a *App) SetOverlayState(state, mode string) error {
	if err := a.d.Overlay.SetState(state, mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

func (a *App) UpdateAudioLevel(level float64) {
	a.d.Overlay.UpdateLevel(level)
}

func (a *App) modelName(name string) string {
	if name == "" {
		return a.d.DefaultModel
	}
	return name
}

func (a *App) DownloadModel(ctx context.Context, name string, onProgress model.Progress) error {
	name = a.modelName(name)
	err := a.d.Models.Download(ctx, name, onProgress)
	a.d.Telemetry.Download(ctx, name, err)
	return err
}

func (a *App) ListDownloadedModels() ([]string, error) {
	return a.d.Models.ListDownloaded()
}

func (a *App) DeleteModel(name string) (bool, error) {
	return a.d.Models.Delete(name)
}

// ModelSize returns the byte size of name, or -1 when it is unknown.
func (a *App) ModelSize(name string) int64 {
	n, ok := a.d.Models.SizeOf(name)
	if !ok {
		return -1
	}
	return n
}

func (a *App) PreloadModel(ctx context.Context, name string) error {
	return a.d.Models.Preload(ctx, a.modelName(name))
}

func (a *App) IsModelInitialized(name string) bool {
	return a.d.Models.IsInitialized(a.modelName(name))
}

// ExtractVisibleText returns the OCR text of the screen.
func (a *App) ExtractVisibleText(ctx context.Context) (string, error) {
	if a.d.Screen == nil {
		return "", errors.New("screen capture is not configured")
	}
	return a.d.Screen.CaptureVisibleText(ctx)
}

func (a *App) Preferences() config.Preferences {
	if a.d.Preferences == nil {
		return config.DefaultPreferences()
	}
	return a.d.Preferences.Get()
}

func (a *App) SetSound(on bool) (config.Preferences, error) {
	return a.updatePreferences(func(p *config.Preferences) { p.Sound = on })
}

func (a *App) SetAutoPaste(on bool) (config.Preferences, error) {
	return a.updatePreferences(func(p *config.Preferences) { p.AutoPaste = on })
}

func (a *App) updatePreferences(fn func(*config.Preferences)) (config.Preferences, error) {
	if a.d.Preferences == nil {
		p := config.DefaultPreferences()
		fn(&p)
		return p, errors.New("preferences are not persisted")
	}
	p, err := a.d.Preferences.Update(fn)
	if err != nil {
		return p, err
	}
	log.Infof("preferences: sound=%v auto_paste=%v", p.Sound, p.AutoPaste)
	return p, nil
}

// History returns the most recent transcriptions, newest first.
func (a *App) History(ctx context.Context, limit int) ([]history.Record, error) {
	if a.d.History == nil {
		return nil, nil
	}
	return a.d.History.List(ctx, limit)
}
