package doctor

import (
	"os"
	"sync"

	"golang.org/x/term"

	"murmur/shutdown"
)

var (
	termMu    sync.Mutex
	termState *term.State
)

// saveTerminal records the stdin mode so checks that grab the keyboard can
// put it back. It does nothing when stdin is not a terminal.
func saveTerminal() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	st, err := term.GetState(fd)
	if err != nil {
		return
	}
	termMu.Lock()
	termState = st
	termMu.Unlock()
}

func resetTerminal() {
	termMu.Lock()
	st := termState
	termMu.Unlock()
	if st != nil {
		term.Restore(int(os.Stdin.Fd()), st)
	}
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}
