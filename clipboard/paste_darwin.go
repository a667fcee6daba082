//go:build darwin

package clipboard

import "github.com/micmonay/keybd_event"

const (
	pasteCombo   = "Cmd+V"
	deviceSettle = 0
)

func pasteModifier(kb *keybd_event.KeyBonding) {
	kb.HasSuper(true)
}

// The accessibility grant is checked by the deliverer; there is no device
// to probe here.
func checkDevice() error {
	return nil
}
