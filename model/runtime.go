package model

import "context"

// Runtime is a loaded inference engine bound to one model file.
type Runtime interface {
	// Process returns the transcript segments of 16 kHz mono samples in
	// temporal order.
	Process(ctx context.Context, samples []float32) ([]string, error)
	Close() error
}

type RuntimeOptions struct {
	Threads  int
	Language string
}

// Factory constructs a runtime for the model file at path.
type Factory func(path string, opts RuntimeOptions) (Runtime, error)
