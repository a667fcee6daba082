package codec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

type flacWriter struct {
	file        *os.File
	enc         *flac.Encoder
	pending     []int16
	totalFrames uint64
	mu          sync.Mutex
	closed      bool
}

func newFLACWriter(file *os.File) (*flacWriter, error) {
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(file, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &flacWriter{file: file, enc: enc, pending: make([]int16, 0, BlockSize)}, nil
}

func (w *flacWriter) Path() string { return w.file.Name() }

// Write buffers samples and emits one frame per full block.
func (w *flacWriter) Write(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("flac writer closed")
	}
	for len(samples) > 0 {
		n := min(BlockSize-len(w.pending), len(samples))
		w.pending = append(w.pending, samples[:n]...)
		samples = samples[n:]
		if len(w.pending) == BlockSize {
			if err := w.encodeBlock(w.pending); err != nil {
				return err
			}
			w.pending = w.pending[:0]
		}
	}
	return nil
}

func (w *flacWriter) encodeBlock(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := w.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	w.totalFrames += uint64(len(block))
	return nil
}

// Close flushes the partial block and rewrites StreamInfo. The encoder
// closes the file itself since *os.File is an io.Closer.
func (w *flacWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if len(w.pending) > 0 {
		errs = append(errs, w.encodeBlock(w.pending))
		w.pending = nil
	}
	errs = append(errs, w.enc.Close())
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *flacWriter) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalFrames + uint64(len(w.pending))
}

func decodeFLAC(path string) ([]float32, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("parse flac: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	if channels == 0 {
		return nil, 0, errors.New("flac stream has no channels")
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	var out []float32
	if info.NSamples > 0 {
		out = make([]float32, 0, info.NSamples)
	}
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("parse flac frame: %w", err)
		}
		for i := 0; i < int(f.BlockSize); i++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += float32(f.Subframes[ch].Samples[i])
			}
			out = append(out, sum/float32(channels)/scale)
		}
	}
	return out, int(info.SampleRate), nil
}
