package codec

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Decode reads a WAV or FLAC artifact and returns mono float32 samples in
// [-1, 1] at SampleRate.
func Decode(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var (
		samples []float32
		rate    int
	)
	switch {
	case bytes.Equal(magic, []byte("fLaC")):
		samples, rate, err = decodeFLAC(path)
	case bytes.Equal(magic, []byte("RIFF")):
		samples, rate, err = decodeWAV(f)
	default:
		return nil, fmt.Errorf("unrecognized audio container %q", magic)
	}
	if err != nil {
		return nil, err
	}
	return ResampleLinear(samples, rate, SampleRate), nil
}

// ResampleLinear resamples from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := max(int(float64(len(samples))*ratio), 1)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}

// PCM16 converts little-endian 16-bit PCM bytes to samples. A trailing odd
// byte is dropped.
func PCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}
