//go:build linux

package main

import "os"

func main() {
	initCrashLog()

	// The window overlay needs the main thread, so it must claim it
	// before flags are parsed.
	for _, arg := range os.Args[1:] {
		if arg == "-gui" || arg == "--gui" {
			initGUI()
			return
		}
	}
	run()
}
