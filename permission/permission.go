// Package permission gates microphone, screen capture and input automation
// behind the operating system's grant state.
package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapability reports a capability value outside the known set.
	ErrInvalidCapability = errors.New("invalid capability")
	// ErrPermissionDenied reports a capability that is denied or restricted.
	ErrPermissionDenied = errors.New("permission denied")
)

type Capability int

const (
	Microphone Capability = iota + 1
	ScreenCapture
	AutomationControl
)

var capabilityNames = map[Capability]string{
	Microphone:        "microphone",
	ScreenCapture:     "screen-capture",
	AutomationControl: "automation-control",
}

func (c Capability) String() string {
	if s, ok := capabilityNames[c]; ok {
		return s
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

func (c Capability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

// Capabilities lists every known capability in declaration order.
func Capabilities() []Capability {
	return []Capability{Microphone, ScreenCapture, AutomationControl}
}

func ParseCapability(s string) (Capability, error) {
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCapability, s)
}

type State int

const (
	Unknown State = iota
	Granted
	Denied
	Restricted
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Definitive is true for every state except Unknown.
func (s State) Definitive() bool {
	return s != Unknown
}
