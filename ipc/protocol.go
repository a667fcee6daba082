// Package ipc serves the App over newline-delimited JSON on a Unix socket
// and optionally mirrors its events to NATS.
package ipc

import (
	"encoding/json"

	"murmur/pipeline"
)

// Command is one request line. ID is echoed verbatim on every line the
// server writes for it.
type Command struct {
	ID         json.RawMessage `json:"id,omitempty"`
	Cmd        string          `json:"cmd"`
	Capability string          `json:"capability,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	State      string          `json:"state,omitempty"`
	Model      string          `json:"model,omitempty"`
	Path       string          `json:"path,omitempty"`
	Level      *float64        `json:"level,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

type Session struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Mode      string `json:"mode"`
	StartedAt int64  `json:"startedAt"`
}

type Preferences struct {
	Sound     bool `json:"sound"`
	AutoPaste bool `json:"autoPaste"`
}

// Response is the final line for a command.
type Response struct {
	ID          json.RawMessage            `json:"id,omitempty"`
	OK          bool                       `json:"ok"`
	Error       string                     `json:"error,omitempty"`
	Code        string                     `json:"code,omitempty"`
	State       string                     `json:"state,omitempty"`
	Session     *Session                   `json:"session,omitempty"`
	Path        string                     `json:"path,omitempty"`
	Duration    *float64                   `json:"duration,omitempty"`
	Text        *string                    `json:"text,omitempty"`
	Context     string                     `json:"context,omitempty"`
	Delivered   string                     `json:"delivered,omitempty"`
	Models      []string                   `json:"models,omitempty"`
	Deleted     *bool                      `json:"deleted,omitempty"`
	Size        *int64                     `json:"size,omitempty"`
	Initialized *bool                      `json:"initialized,omitempty"`
	Preferences *Preferences               `json:"preferences,omitempty"`
	History     []*pipeline.TranscriptView `json:"history,omitempty"`
}

// Event is an intermediate line: download progress for a command, or a
// stream item for a subscriber.
type Event struct {
	ID         json.RawMessage          `json:"id,omitempty"`
	Event      string                   `json:"event"`
	Progress   *float64                 `json:"progress,omitempty"`
	Overlay    *pipeline.OverlayEvent   `json:"overlay,omitempty"`
	Session    *pipeline.SessionEvent   `json:"session,omitempty"`
	Transcript *pipeline.TranscriptView `json:"transcript,omitempty"`
}

const EventProgress = "progress"

func BoolPtr(b bool) *bool          { return &b }
func Float64Ptr(f float64) *float64 { return &f }
func StringPtr(s string) *string    { return &s }
