// Package beep plays short audible cues for recording state changes.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

const sampleRate = 44100

type Cue int

const (
	Start Cue = iota
	Stop
	Cancel
	Error
)

type tone struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	repeats  int
	gap      float64
}

var cues = map[Cue]tone{
	Start:  {freq: 1200, duration: 0.2, volume: 0.5, decay: 60, repeats: 1},
	Stop:   {freq: 900, duration: 0.2, volume: 0.5, decay: 40, repeats: 1},
	Cancel: {freq: 600, duration: 0.12, volume: 0.4, decay: 50, repeats: 1},
	Error:  {freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeats: 2, gap: 0.05},
}

var (
	enabled   atomic.Bool
	cache     map[Cue][]int16
	cacheOnce sync.Once

	// play is swapped out in tests.
	play = platformPlay
)

func init() {
	enabled.Store(true)
}

// SetEnabled follows the sound preference.
func SetEnabled(on bool) { enabled.Store(on) }

func Enabled() bool { return enabled.Load() }

// Init synthesizes every cue and opens the output device ahead of first use.
func Init() {
	cacheOnce.Do(synthesize)
	platformInit()
}

// Play sounds c without blocking the caller. Disabled cues are dropped.
func Play(c Cue) {
	if !enabled.Load() {
		return
	}
	cacheOnce.Do(synthesize)
	samples, ok := cache[c]
	if !ok {
		return
	}
	go play(samples)
}

func synthesize() {
	cache = make(map[Cue][]int16, len(cues))
	for c, t := range cues {
		cache[c] = t.samples(sampleRate)
	}
}

// samples renders the tone as mono PCM: each beep is a sine with an
// exponential decay envelope, repeated with silent gaps.
func (t tone) samples(rate int) []int16 {
	n := int(math.Round(float64(rate) * t.duration))
	beep := make([]int16, n)
	for i := range beep {
		x := float64(i) / float64(rate)
		envelope := math.Exp(-x * t.decay)
		beep[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * envelope)
	}
	repeats := max(t.repeats, 1)
	gap := make([]int16, int(math.Round(float64(rate)*t.gap)))
	out := make([]int16, 0, repeats*len(beep)+(repeats-1)*len(gap))
	for i := range repeats {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, beep...)
	}
	return out
}
