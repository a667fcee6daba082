// Package hotkey turns global key combinations into recording events.
package hotkey

// Hotkey delivers press and release of one global key combination.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo names a supported key combination.
type Combo int

const (
	// Dictate is Ctrl+Shift+Space.
	Dictate Combo = iota
	// Assist is Ctrl+Shift+A.
	Assist
)

func (c Combo) String() string {
	switch c {
	case Dictate:
		return "Ctrl+Shift+Space"
	case Assist:
		return "Ctrl+Shift+A"
	}
	return "unknown"
}
