//go:build darwin

package permission

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

const settingsURL = "x-apple.systempreferences:com.apple.preference.security?"

var settingsAnchors = map[Capability]string{
	Microphone:        "Privacy_Microphone",
	ScreenCapture:     "Privacy_ScreenCapture",
	AutomationControl: "Privacy_Accessibility",
}

// darwinProber learns grant state by exercising each capability, since
// TCC state is not readable without entitlements. Status reports what the
// last prompt in this process observed. A prompt that goes unanswered
// records nothing, and a recorded denial is rechecked on the next Request.
type darwinProber struct {
	mu      sync.Mutex
	decided map[Capability]State
}

func NewSystemProber() Prober {
	return &darwinProber{decided: make(map[Capability]State)}
}

func (p *darwinProber) Status(_ context.Context, c Capability) (State, error) {
	if !c.Valid() {
		return Unknown, ErrInvalidCapability
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decided[c], nil
}

func (p *darwinProber) RecheckDenied(Capability) bool {
	return true
}

func (p *darwinProber) set(c Capability, st State) {
	p.mu.Lock()
	p.decided[c] = st
	p.mu.Unlock()
}

func (p *darwinProber) Prompt(ctx context.Context, c Capability) error {
	p.mu.Lock()
	if p.decided[c] == Denied {
		delete(p.decided, c)
	}
	p.mu.Unlock()
	switch c {
	case Microphone:
		go p.probeMicrophone(ctx)
		return nil
	case ScreenCapture:
		go p.probeScreen(ctx)
		return nil
	case AutomationControl:
		go p.probeAutomation(ctx)
		return nil
	}
	return ErrInvalidCapability
}

// probeMicrophone opens a capture device, which raises the consent dialog,
// and treats the first non-silent buffer as proof of a grant. Denied
// devices deliver zeroed buffers, and so does a muted one, so silence until
// the deadline leaves the state undecided.
func (p *darwinProber) probeMicrophone(ctx context.Context) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		p.set(Microphone, Restricted)
		return
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()

	heard := make(chan struct{})
	var once sync.Once
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = 16000
	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			for _, b := range in {
				if b != 0 {
					once.Do(func() { close(heard) })
					return
				}
			}
		},
	})
	if err != nil {
		p.set(Microphone, Denied)
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		p.set(Microphone, Denied)
		return
	}
	defer dev.Stop()

	select {
	case <-heard:
		p.set(Microphone, Granted)
	case <-ctx.Done():
	}
}

func (p *darwinProber) probeScreen(ctx context.Context) {
	out := filepath.Join(os.TempDir(), "murmur-screen-probe.png")
	defer os.Remove(out)
	err := exec.CommandContext(ctx, "screencapture", "-x", out).Run()
	if fi, statErr := os.Stat(out); err == nil && statErr == nil && fi.Size() > 0 {
		p.set(ScreenCapture, Granted)
		return
	}
	p.set(ScreenCapture, Denied)
}

func (p *darwinProber) probeAutomation(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := exec.CommandContext(cctx, "osascript", "-e", `tell application "System Events" to keystroke ""`).Run()
	if err == nil {
		p.set(AutomationControl, Granted)
		return
	}
	p.set(AutomationControl, Denied)
}

func (p *darwinProber) SettingsCommand(c Capability) []string {
	anchor, ok := settingsAnchors[c]
	if !ok {
		return nil
	}
	return []string{"open", settingsURL + anchor}
}
