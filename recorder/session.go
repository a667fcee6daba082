package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/codec"
	"murmur/permission"
)

var (
	ErrSessionAlreadyActive = errors.New("a recording session is already active")
	ErrNoActiveSession      = errors.New("no active recording session")
	// ErrPermissionDenied is returned by Start when the microphone is not granted.
	ErrPermissionDenied = permission.ErrPermissionDenied
)

type Mode string

const (
	HandsFree  Mode = "hands-free"
	PushToTalk Mode = "push-to-talk"
	Assistant  Mode = "assistant"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case HandsFree, PushToTalk, Assistant:
		return m, nil
	}
	return "", fmt.Errorf("unknown recording mode %q", s)
}

type Phase string

const (
	Idle       Phase = "idle"
	Recording  Phase = "recording"
	Paused     Phase = "paused"
	Finalizing Phase = "finalizing"
	Discarded  Phase = "discarded"
)

// Handle identifies a started session.
type Handle struct {
	ID        string
	Path      string
	Mode      Mode
	StartedAt time.Time
}

// Artifact is the finalized audio produced by Stop.
type Artifact struct {
	Path      string
	Format    codec.Format
	Mode      Mode
	StartedAt time.Time
	Frames    uint64
	Size      int64
}

func (a Artifact) Duration() time.Duration {
	return time.Duration(codec.Duration(a.Frames) * float64(time.Second))
}

// LevelSink receives RMS input levels in [0, 1] while recording.
type LevelSink interface {
	UpdateLevel(level float64)
}

// Gate confirms a capability before the recorder touches the device.
type Gate interface {
	Ensure(ctx context.Context, c permission.Capability) error
}
