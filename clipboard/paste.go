package clipboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// ErrPasteUnavailable reports that no virtual keyboard can be created, so
// transcripts are left on the clipboard for the user to paste.
var ErrPasteUnavailable = errors.New("synthetic paste unavailable")

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

// Init creates the virtual keyboard once. It blocks while the new device
// settles, so callers on the startup path run it in the background.
func Init() error {
	kbOnce.Do(func() {
		if kbErr = checkDevice(); kbErr != nil {
			return
		}
		b, err := keybd_event.NewKeyBonding()
		if err != nil {
			kbErr = fmt.Errorf("%w: %v", ErrPasteUnavailable, err)
			return
		}
		kb = b
		time.Sleep(deviceSettle)
	})
	return kbErr
}

// Paste sends the platform paste combo to the focused window.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.Clear()
	kb.SetKeys(keybd_event.VK_V)
	pasteModifier(&kb)
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("send %s: %w", pasteCombo, err)
	}
	return nil
}

// Verify reports whether the keyboard binding is usable, without typing.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return fmt.Sprintf("keyboard event binding OK (%s)", pasteCombo), nil
}
