// Package doctor runs interactive checks of the pieces a dictation needs.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"murmur/hotkey"
	"murmur/permission"
	"murmur/recorder"
)

// Permissions is the part of the orchestrator the doctor uses.
type Permissions interface {
	Check(ctx context.Context, c permission.Capability) (permission.State, error)
	Request(ctx context.Context, c permission.Capability) (permission.State, error)
}

// Models is the part of the model manager the doctor uses.
type Models interface {
	IsDownloaded(name string) bool
	ListDownloaded() ([]string, error)
	Transcribe(ctx context.Context, artifactPath, name string) (string, error)
}

// Recorder is the part of the recording manager the doctor uses.
type Recorder interface {
	Start(ctx context.Context, mode recorder.Mode) (recorder.Handle, error)
	Stop() (recorder.Artifact, error)
}

type Deps struct {
	Permissions Permissions
	Models      Models
	Recorder    Recorder
	Model       string
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(d Deps) int {
	saveTerminal()
	defer resetTerminal()
	setupInterruptHandler()

	out := os.Stdout
	fmt.Fprintln(out, "murmur doctor - interactive system diagnostics")
	fmt.Fprintln(out, "===============================================")

	ctx := context.Background()
	allPass := true

	if !checkPermissions(ctx, out, d.Permissions, true) {
		allPass = false
	}
	if !checkModels(out, d.Models, d.Model) {
		allPass = false
	}
	if allPass && !checkHotkey() {
		allPass = false
	}
	if allPass && !checkMicAndTranscription(ctx, d) {
		allPass = false
	}
	if allPass && !checkClipboardCopy() {
		allPass = false
	}
	if allPass && !checkClipboardPaste() {
		allPass = false
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

// checkPermissions reports every capability. Only the microphone is
// required; the others degrade features and are reported as warnings.
func checkPermissions(ctx context.Context, w io.Writer, p Permissions, request bool) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[1/6] Permissions")

	ok := true
	for _, c := range permission.Capabilities() {
		st, err := p.Check(ctx, c)
		if err != nil {
			fmt.Fprintf(w, "  FAIL: %s: %v\n", c, err)
			ok = false
			continue
		}
		if st == permission.Unknown && request {
			if st, err = p.Request(ctx, c); err != nil {
				fmt.Fprintf(w, "  FAIL: %s: %v\n", c, err)
				ok = false
				continue
			}
		}
		switch {
		case st == permission.Granted:
			fmt.Fprintf(w, "  PASS: %s granted\n", c)
		case c == permission.Microphone:
			fmt.Fprintf(w, "  FAIL: %s %s\n", c, st)
			ok = false
		default:
			fmt.Fprintf(w, "  WARN: %s %s\n", c, st)
		}
	}
	return ok
}

func checkModels(w io.Writer, m Models, name string) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[2/6] Speech models")

	names, err := m.ListDownloaded()
	if err != nil {
		fmt.Fprintf(w, "  FAIL: cannot list models: %v\n", err)
		return false
	}
	if len(names) > 0 {
		fmt.Fprintf(w, "  downloaded: %s\n", strings.Join(names, ", "))
	}
	if !m.IsDownloaded(name) {
		fmt.Fprintf(w, "  FAIL: model %s is not downloaded (run: murmur -download %s)\n", name, name)
		return false
	}
	fmt.Fprintf(w, "  PASS: model %s present\n", name)
	return true
}

func checkHotkey() bool {
	fmt.Println()
	fmt.Println("[3/6] Hotkey detection")
	fmt.Printf("Press %s...\n", hotkey.Dictate)

	hk := hotkey.New(hotkey.Dictate)
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// the evdev reader can leave the terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicAndTranscription(ctx context.Context, d Deps) bool {
	fmt.Println()
	fmt.Println("[4/6] Microphone and on-device transcription")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	if _, err := d.Recorder.Start(ctx, recorder.HandsFree); err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	fmt.Print("  Recording")
	for i := 0; i < 6; i++ {
		time.Sleep(500 * time.Millisecond)
		fmt.Print(".")
	}
	art, err := d.Recorder.Stop()
	fmt.Println(" done")
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	defer os.Remove(art.Path)

	if art.Frames == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Recorded %.1fs (%.1f KB), transcribing with %s...\n",
		art.Duration().Seconds(), float64(art.Size)/1024, d.Model)

	text, err := d.Models.Transcribe(ctx, art.Path, d.Model)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	// fresh reader drops any buffered input
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}
