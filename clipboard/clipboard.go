// Package clipboard delivers transcripts to the focused application through
// the system clipboard and a synthesized paste keystroke.
package clipboard

import cb "github.com/atotto/clipboard"

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}
