package pipeline

import (
	"murmur/history"
	"murmur/overlay"
)

type EventType string

const (
	EventOverlay    EventType = "overlay"
	EventSession    EventType = "session"
	EventTranscript EventType = "transcript"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 64

type Event struct {
	Type       EventType       `json:"type"`
	Overlay    *OverlayEvent   `json:"overlay,omitempty"`
	Session    *SessionEvent   `json:"session,omitempty"`
	Transcript *TranscriptView `json:"transcript,omitempty"`
}

type OverlayEvent struct {
	State   string    `json:"state"`
	Mode    string    `json:"mode"`
	Color   string    `json:"color"`
	Glyph   string    `json:"glyph"`
	Label   string    `json:"label"`
	Visible bool      `json:"visible"`
	Bars    []float64 `json:"bars,omitempty"`
	Level   float64   `json:"level"`
	Idle    bool      `json:"idle"`
	Text    string    `json:"text,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type SessionEvent struct {
	Phase string `json:"phase"`
	Mode  string `json:"mode,omitempty"`
	Path  string `json:"path,omitempty"`
}

type TranscriptView struct {
	ID           string  `json:"id"`
	Mode         string  `json:"mode"`
	Model        string  `json:"model"`
	Text         string  `json:"text"`
	Context      string  `json:"context,omitempty"`
	AudioSeconds float64 `json:"audio_seconds"`
	Delivered    string  `json:"delivered,omitempty"`
	CreatedAt    int64   `json:"created_at"`
}

func TranscriptOf(r history.Record) *TranscriptView {
	return &TranscriptView{
		ID:           r.ID,
		Mode:         r.Mode,
		Model:        r.Model,
		Text:         r.Text,
		Context:      r.Context,
		AudioSeconds: r.AudioSeconds,
		Delivered:    r.Delivered,
		CreatedAt:    r.CreatedAt.UnixMilli(),
	}
}

func OverlayEventOf(f overlay.Frame) *OverlayEvent {
	return &OverlayEvent{
		State:   string(f.State),
		Mode:    string(f.Mode),
		Color:   f.Theme.Hex(),
		Glyph:   f.Theme.Glyph,
		Label:   f.Theme.Label,
		Visible: f.Visible,
		Bars:    f.Bars,
		Level:   f.Level,
		Idle:    f.Idle,
		Text:    f.Text,
		Error:   f.Err,
	}
}

// Render forwards overlay frames to subscribers. Repeated hidden frames are
// dropped.
func (a *App) Render(f overlay.Frame) {
	a.subMu.Lock()
	skip := f.State == overlay.Hidden && a.lastOverlay == overlay.Hidden
	a.lastOverlay = f.State
	a.subMu.Unlock()
	if skip {
		return
	}
	a.publish(Event{Type: EventOverlay, Overlay: OverlayEventOf(f)})
}

// Subscribe returns a stream of overlay frames, session changes and
// transcripts. cancel closes the stream.
func (a *App) Subscribe() (events <-chan Event, cancel func()) {
	ch := make(chan Event, subscriberBuffer)
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subMu.Unlock()
	return ch, func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		if c, ok := a.subs[id]; ok {
			close(c)
			delete(a.subs, id)
		}
	}
}

func (a *App) publish(ev Event) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
