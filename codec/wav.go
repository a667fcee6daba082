package codec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type wavWriter struct {
	file        *os.File
	enc         *wav.Encoder
	buf         *audio.IntBuffer
	totalFrames uint64
	mu          sync.Mutex
	closed      bool
}

func newWAVWriter(file *os.File) *wavWriter {
	return &wavWriter{
		file: file,
		enc:  wav.NewEncoder(file, SampleRate, BitsPerSample, Channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
			SourceBitDepth: BitsPerSample,
		},
	}
}

func (w *wavWriter) Path() string { return w.file.Name() }

func (w *wavWriter) Write(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("wav writer closed")
	}
	if len(samples) == 0 {
		return nil
	}
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	w.totalFrames += uint64(len(samples))
	return nil
}

// Close patches the RIFF sizes and closes the file.
func (w *wavWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if err := w.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wav encoder: %w", err))
	}
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *wavWriter) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalFrames
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	if buf == nil {
		return nil, 0, errors.New("empty wav buffer")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = BitsPerSample
	}
	scale := float32(int64(1) << (bitDepth - 1))

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	out := make([]float32, len(buf.Data)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch])
		}
		out[i] = sum / float32(channels) / scale
	}

	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = SampleRate
	}
	return out, sr, nil
}
