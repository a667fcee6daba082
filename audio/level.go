package audio

import (
	"encoding/binary"
	"math"
)

// Level returns the RMS of a 16-bit little-endian PCM buffer in [0, 1].
func Level(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Min(1, math.Sqrt(sumSquares/float64(n)))
}
