//go:build linux

package permission

import (
	"context"
	"os"
	"os/exec"

	"github.com/jfreymuth/pulse"
)

var uinputPaths = []string{"/dev/uinput", "/dev/input/uinput"}

// linuxProber derives grant state from what the desktop session exposes.
// Linux has no consent prompt for these capabilities, so Status is
// always definitive and Prompt is a no-op.
type linuxProber struct {
	lookPath func(string) (string, error)
	getenv   func(string) string
}

func NewSystemProber() Prober {
	return &linuxProber{lookPath: exec.LookPath, getenv: os.Getenv}
}

func (p *linuxProber) Status(_ context.Context, c Capability) (State, error) {
	switch c {
	case Microphone:
		return p.microphone(), nil
	case AutomationControl:
		return automation(uinputPaths), nil
	case ScreenCapture:
		return p.screen(), nil
	}
	return Unknown, ErrInvalidCapability
}

func (p *linuxProber) microphone() State {
	client, err := pulse.NewClient(pulse.ClientApplicationName("murmur"))
	if err != nil {
		return Restricted
	}
	defer client.Close()
	sources, err := client.ListSources()
	if err != nil || len(sources) == 0 {
		return Restricted
	}
	return Granted
}

// AutomationDevice reports the uinput node synthetic input would use and
// whether this process may write to it. path is empty when no node exists.
func AutomationDevice() (path string, st State) {
	return probeUinput(uinputPaths)
}

func automation(paths []string) State {
	_, st := probeUinput(paths)
	return st
}

func probeUinput(paths []string) (string, State) {
	for _, path := range paths {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			f.Close()
			return path, Granted
		}
		if os.IsPermission(err) {
			return path, Denied
		}
	}
	return "", Restricted
}

func (p *linuxProber) screen() State {
	tool := ""
	switch {
	case p.getenv("WAYLAND_DISPLAY") != "":
		tool = "grim"
	case p.getenv("DISPLAY") != "":
		tool = "import"
	default:
		return Restricted
	}
	if _, err := p.lookPath(tool); err != nil {
		return Restricted
	}
	return Granted
}

func (p *linuxProber) Prompt(context.Context, Capability) error {
	return nil
}

func (p *linuxProber) SettingsCommand(c Capability) []string {
	if _, err := p.lookPath("gnome-control-center"); err != nil {
		return nil
	}
	switch c {
	case Microphone:
		return []string{"gnome-control-center", "sound"}
	case ScreenCapture, AutomationControl:
		return []string{"gnome-control-center", "privacy"}
	}
	return nil
}
