//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	initCrashLog()

	for _, arg := range os.Args[1:] {
		if arg == "-gui" || arg == "--gui" {
			// fyne owns the main thread; run starts from its ready callback.
			initGUI()
			return
		}
	}
	// Global hotkeys on macOS and Windows are serviced on the main thread.
	mainthread.Init(run)
}
