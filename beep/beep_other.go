//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	initOnce sync.Once

	// playback state, read from the device callback
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func platformInit() {
	initOnce.Do(func() {
		var err error
		malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return
		}
		if err := initDevice(); err != nil {
			malgoCtx.Uninit()
			malgoCtx = nil
		}
	})
}

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate
	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	samples := current.Load()
	written := uint32(0)
	if samples != nil {
		p := pos.Load()
		if remaining := uint32(len(*samples)) - p; remaining > 0 {
			written = min(want, remaining)
			copy(out[:written], (*samples)[p:p+written])
			pos.Store(p + written)
		} else {
			current.Store(nil)
		}
	}
	clear(out[written:want])
}

func platformPlay(samples []int16) {
	platformInit()
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	pos.Store(0)
	current.Store(&buf)
	if err := device.Start(); err != nil {
		// recreate after sleep/wake invalidated the device
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
