//go:build linux

package clipboard

import (
	"fmt"
	"time"

	"github.com/micmonay/keybd_event"

	"murmur/permission"
)

const pasteCombo = "Ctrl+V"

// The compositor ignores events from a uinput keyboard for a moment after
// it appears.
const deviceSettle = 2 * time.Second

func pasteModifier(kb *keybd_event.KeyBonding) {
	kb.HasCTRL(true)
}

// checkDevice uses the same uinput probe as the automation capability, so
// doctor, permission checks and paste agree on why paste is off.
func checkDevice() error {
	return deviceError(permission.AutomationDevice())
}

func deviceError(path string, st permission.State) error {
	switch {
	case st == permission.Granted:
		return nil
	case path == "":
		return fmt.Errorf("%w: uinput device not found, try: sudo modprobe uinput", ErrPasteUnavailable)
	default:
		return fmt.Errorf("%w: %s is %s", ErrPasteUnavailable, path, st)
	}
}
