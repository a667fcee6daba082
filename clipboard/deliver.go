package clipboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/log"
	"murmur/permission"
)

type Delivery string

const (
	NotDelivered Delivery = ""
	Copied       Delivery = "clipboard"
	Pasted       Delivery = "paste"
)

// restoreDelay gives the target application time to read the clipboard
// before the previous contents are put back.
const restoreDelay = 600 * time.Millisecond

// Checker reports permission state without prompting.
type Checker interface {
	Check(ctx context.Context, c permission.Capability) (permission.State, error)
}

type Deliverer struct {
	checker      Checker
	read         func() (string, error)
	copy         func(string) error
	paste        func() error
	restoreDelay time.Duration
}

func NewDeliverer(checker Checker) *Deliverer {
	return &Deliverer{
		checker:      checker,
		read:         Read,
		copy:         Copy,
		paste:        Paste,
		restoreDelay: restoreDelay,
	}
}

// Deliver copies text to the clipboard and, when autoPaste is set and the
// automation capability is granted, pastes it into the focused window and
// restores the previous clipboard afterwards.
func (d *Deliverer) Deliver(ctx context.Context, text string, autoPaste bool) (Delivery, error) {
	if text == "" {
		return NotDelivered, nil
	}
	if !autoPaste {
		if err := d.copy(text); err != nil {
			return NotDelivered, fmt.Errorf("copy: %w", err)
		}
		return Copied, nil
	}

	prev, _ := d.read()
	if err := d.copy(text); err != nil {
		return NotDelivered, fmt.Errorf("copy: %w", err)
	}
	if d.checker != nil {
		st, err := d.checker.Check(ctx, permission.AutomationControl)
		if err != nil || st != permission.Granted {
			log.Warnf("auto-paste skipped: automation %s", st)
			return Copied, nil
		}
	}
	if err := d.paste(); err != nil {
		if errors.Is(err, ErrPasteUnavailable) {
			log.Warnf("auto-paste skipped: %v", err)
		} else {
			log.Errorf("paste failed: %v", err)
		}
		return Copied, nil
	}
	if prev != "" && prev != text {
		time.AfterFunc(d.restoreDelay, func() {
			if err := d.copy(prev); err != nil {
				log.Warnf("clipboard restore: %v", err)
			}
		})
	}
	return Pasted, nil
}
