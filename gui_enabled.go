//go:build gui

package main

import (
	"fmt"
	"os"
	"runtime"

	"murmur/audio"
	"murmur/gui"
)

func initGUI() {
	// Core Audio wants the context opened on the main thread, before
	// fyne takes it over.
	ac, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	presetAudio = ac

	runtime.LockOSThread()

	app := gui.NewApp(func() {
		run()
		os.Exit(0)
	})
	guiSink = app
	guiQuit = app.Quit
	guiDone = app.Done()
	if err := gui.Run(app); err != nil {
		ac.Close()
		panic(err)
	}
}
