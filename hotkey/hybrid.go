package hotkey

import (
	"time"

	"murmur/recorder"
)

type EventKind int

const (
	// Start begins a session in Event.Mode.
	Start EventKind = iota
	// Promote reports that a held press turned the running session into Event.Mode.
	Promote
	// Stop ends the running session.
	Stop
)

func (k EventKind) String() string {
	switch k {
	case Start:
		return "start"
	case Promote:
		return "promote"
	case Stop:
		return "stop"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	Mode recorder.Mode
}

// Controller turns key presses of one Hotkey into recording events.
type Controller struct {
	events chan Event
	done   chan struct{}
}

func newController() *Controller {
	return &Controller{
		events: make(chan Event, 4),
		done:   make(chan struct{}),
	}
}

func (c *Controller) Events() <-chan Event { return c.events }

// Close stops the controller goroutine. The Hotkey is left registered.
func (c *Controller) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Controller) emit(kind EventKind, mode recorder.Mode) bool {
	select {
	case c.events <- Event{Kind: kind, Mode: mode}:
		return true
	case <-c.done:
		return false
	}
}

// wait blocks for ch or Close and reports whether ch fired.
func (c *Controller) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-c.done:
		return false
	}
}

// NewHybrid shares one key between tap-to-toggle and hold-to-talk. Every
// press starts a hands-free session at once; holding past longPress promotes
// it to push-to-talk and releasing stops it. A shorter tap leaves it running
// until the next press and release.
func NewHybrid(hk Hotkey, longPress time.Duration) *Controller {
	c := newController()
	go c.runHybrid(hk, longPress)
	return c
}

type hybridState int

const (
	stIdle hybridState = iota
	stToggleRecording
)

func (c *Controller) runHybrid(hk Hotkey, longPress time.Duration) {
	state := stIdle
	for {
		switch state {
		case stIdle:
			if !c.wait(hk.Keydown()) || !c.emit(Start, recorder.HandsFree) {
				return
			}
			timer := time.NewTimer(longPress)
			select {
			case <-timer.C:
				if !c.emit(Promote, recorder.PushToTalk) || !c.wait(hk.Keyup()) {
					return
				}
				if !c.emit(Stop, recorder.PushToTalk) {
					return
				}
			case <-hk.Keyup():
				timer.Stop()
				state = stToggleRecording
			case <-c.done:
				timer.Stop()
				return
			}
		case stToggleRecording:
			if !c.wait(hk.Keydown()) || !c.wait(hk.Keyup()) {
				return
			}
			if !c.emit(Stop, recorder.HandsFree) {
				return
			}
			state = stIdle
		}
	}
}

// NewPushToTalk records in push-to-talk mode while the key is held.
func NewPushToTalk(hk Hotkey) *Controller {
	c := newController()
	go func() {
		for {
			if !c.wait(hk.Keydown()) || !c.emit(Start, recorder.PushToTalk) {
				return
			}
			if !c.wait(hk.Keyup()) || !c.emit(Stop, recorder.PushToTalk) {
				return
			}
		}
	}()
	return c
}

// NewToggle starts a session in mode on one press and stops it on the next.
func NewToggle(hk Hotkey, mode recorder.Mode) *Controller {
	c := newController()
	go func() {
		recording := false
		for {
			if !c.wait(hk.Keydown()) {
				return
			}
			kind := Start
			if recording {
				kind = Stop
			}
			if !c.emit(kind, mode) {
				return
			}
			recording = !recording
		}
	}()
	return c
}
