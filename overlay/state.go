// Package overlay turns session and model events into animation frames for
// the on-screen feedback indicator.
package overlay

import (
	"fmt"
	"image/color"

	"murmur/recorder"
)

type State string

const (
	Hidden     State = "hidden"
	Recording  State = "recording"
	Stopped    State = "stopped"
	Processing State = "processing"
	Completed  State = "completed"
	Error      State = "error"
)

func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case Hidden, Recording, Stopped, Processing, Completed, Error:
		return st, nil
	}
	return "", fmt.Errorf("unknown overlay state %q", s)
}

// Blinks reports whether the indicator pulses in this state.
func (s State) Blinks() bool {
	return s == Recording || s == Processing
}

// Terminal states dwell briefly and then hide themselves.
func (s State) Terminal() bool {
	return s == Stopped || s == Completed || s == Error
}

// Theme is the visual identity of a state.
type Theme struct {
	Color color.RGBA
	Glyph string
	Label string
}

var modeColors = map[recorder.Mode]color.RGBA{
	recorder.HandsFree:  {46, 204, 113, 255},
	recorder.PushToTalk: {231, 76, 60, 255},
	recorder.Assistant:  {155, 89, 182, 255},
}

var errorColor = color.RGBA{241, 196, 15, 255}

// ThemeFor derives the theme from the state and the mode that produced it.
func ThemeFor(s State, mode recorder.Mode) Theme {
	c, ok := modeColors[mode]
	if !ok {
		c = modeColors[recorder.HandsFree]
	}
	switch s {
	case Recording:
		return Theme{Color: c, Glyph: "●", Label: string(mode)}
	case Stopped:
		return Theme{Color: dim(c), Glyph: "■", Label: "stopped"}
	case Processing:
		return Theme{Color: c, Glyph: "◌", Label: "transcribing"}
	case Completed:
		return Theme{Color: c, Glyph: "✓", Label: "done"}
	case Error:
		return Theme{Color: errorColor, Glyph: "!", Label: "failed"}
	}
	return Theme{}
}

func dim(c color.RGBA) color.RGBA {
	return color.RGBA{c.R / 2, c.G / 2, c.B / 2, c.A}
}

// Hex renders the color as #rrggbb for terminal styles.
func (t Theme) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", t.Color.R, t.Color.G, t.Color.B)
}
