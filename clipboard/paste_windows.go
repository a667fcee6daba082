//go:build windows

package clipboard

import "github.com/micmonay/keybd_event"

const (
	pasteCombo   = "Ctrl+V"
	deviceSettle = 0
)

func pasteModifier(kb *keybd_event.KeyBonding) {
	kb.HasCTRL(true)
}

func checkDevice() error {
	return nil
}
