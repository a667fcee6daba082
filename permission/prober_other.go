//go:build !linux && !darwin

package permission

import (
	"context"

	"github.com/gen2brain/malgo"
)

// otherProber covers platforms without per-app consent for screen capture
// and input injection. Microphone access is granted when a capture device
// is visible.
type otherProber struct{}

func NewSystemProber() Prober {
	return otherProber{}
}

func (otherProber) Status(_ context.Context, c Capability) (State, error) {
	switch c {
	case Microphone:
		mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return Restricted, nil
		}
		defer func() {
			mctx.Uninit()
			mctx.Free()
		}()
		devices, err := mctx.Devices(malgo.Capture)
		if err != nil || len(devices) == 0 {
			return Denied, nil
		}
		return Granted, nil
	case ScreenCapture, AutomationControl:
		return Granted, nil
	}
	return Unknown, ErrInvalidCapability
}

func (otherProber) Prompt(context.Context, Capability) error { return nil }

func (otherProber) SettingsCommand(c Capability) []string {
	switch c {
	case Microphone:
		return []string{"cmd", "/c", "start", "ms-settings:privacy-microphone"}
	case ScreenCapture:
		return []string{"cmd", "/c", "start", "ms-settings:privacy-graphicscaptureprogrammatic"}
	}
	return nil
}
