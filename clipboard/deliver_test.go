package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"murmur/permission"
)

type fakeBoard struct {
	mu       sync.Mutex
	contents string
	pastes   int
	pasteErr error
	copyErr  error
}

func (b *fakeBoard) read() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents, nil
}

func (b *fakeBoard) copy(s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.copyErr != nil {
		return b.copyErr
	}
	b.contents = s
	return nil
}

func (b *fakeBoard) paste() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pastes++
	return b.pasteErr
}

func (b *fakeBoard) snapshot() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents, b.pastes
}

type staticChecker permission.State

func (c staticChecker) Check(context.Context, permission.Capability) (permission.State, error) {
	return permission.State(c), nil
}

func newTestDeliverer(b *fakeBoard, c Checker) *Deliverer {
	return &Deliverer{
		checker:      c,
		read:         b.read,
		copy:         b.copy,
		paste:        b.paste,
		restoreDelay: 10 * time.Millisecond,
	}
}

func TestDeliver(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		autoPaste  bool
		checker    Checker
		pasteErr   error
		want       Delivery
		wantPastes int
	}{
		{"empty text", "", true, nil, nil, NotDelivered, 0},
		{"copy only", "hello", false, nil, nil, Copied, 0},
		{"paste granted", "hello", true, staticChecker(permission.Granted), nil, Pasted, 1},
		{"paste denied", "hello", true, staticChecker(permission.Denied), nil, Copied, 0},
		{"paste fails", "hello", true, staticChecker(permission.Granted), errors.New("keystroke rejected"), Copied, 1},
		{"no virtual keyboard", "hello", true, staticChecker(permission.Granted), fmt.Errorf("%w: uinput device not found", ErrPasteUnavailable), Copied, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBoard{pasteErr: tt.pasteErr}
			got, err := newTestDeliverer(b, tt.checker).Deliver(context.Background(), tt.text, tt.autoPaste)
			if err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if got != tt.want {
				t.Errorf("delivery = %q, want %q", got, tt.want)
			}
			contents, pastes := b.snapshot()
			if pastes != tt.wantPastes {
				t.Errorf("pastes = %d, want %d", pastes, tt.wantPastes)
			}
			if tt.text != "" && contents != tt.text {
				t.Errorf("clipboard = %q, want %q", contents, tt.text)
			}
		})
	}
}

func TestDeliverRestoresPrevious(t *testing.T) {
	b := &fakeBoard{contents: "earlier"}
	d := newTestDeliverer(b, staticChecker(permission.Granted))
	if got, _ := d.Deliver(context.Background(), "dictated", true); got != Pasted {
		t.Fatalf("delivery = %q", got)
	}
	deadline := time.Now().Add(time.Second)
	for {
		if c, _ := b.snapshot(); c == "earlier" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("previous clipboard never restored")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeliverCopyError(t *testing.T) {
	b := &fakeBoard{copyErr: errors.New("no display")}
	if _, err := newTestDeliverer(b, nil).Deliver(context.Background(), "x", false); err == nil {
		t.Error("expected copy error")
	}
}
