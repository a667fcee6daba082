package overlay

import (
	"math"
	"sync"
	"time"

	"murmur/log"
	"murmur/recorder"
)

const (
	DefaultBlinkInterval = time.Second
	DefaultDwell         = 1500 * time.Millisecond
	DefaultIdleAfter     = 300 * time.Millisecond
	DefaultFrameInterval = 50 * time.Millisecond
	DefaultBars          = 12

	idleFloor     = 0.02
	idleAmplitude = 0.08
)

type Config struct {
	BlinkInterval time.Duration
	Dwell         time.Duration
	IdleAfter     time.Duration
	FrameInterval time.Duration
	Bars          int
}

func (c *Config) defaults() {
	if c.BlinkInterval <= 0 {
		c.BlinkInterval = DefaultBlinkInterval
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.Bars <= 0 {
		c.Bars = DefaultBars
	}
}

// Frame is one rendered snapshot of the overlay.
type Frame struct {
	State   State
	Mode    recorder.Mode
	Theme   Theme
	Visible bool // false during the dark half of a blink
	Bars    []float64
	Level   float64
	Idle    bool
	Text    string
	Err     string
}

// Sink receives frames from the animation loop. Render must not block.
type Sink interface {
	Render(Frame)
}

type Overlay struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	mode       recorder.Mode
	text       string
	errMsg     string
	entered    time.Time
	level      float64
	lastSample time.Time
	gen        uint64
	held       bool
	hideTimer  *time.Timer
	sinks      []Sink

	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func New(cfg Config) *Overlay {
	cfg.defaults()
	return &Overlay{
		cfg:   cfg,
		now:   time.Now,
		state: Hidden,
		mode:  recorder.HandsFree,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (o *Overlay) AddSink(s Sink) {
	o.mu.Lock()
	o.sinks = append(o.sinks, s)
	o.mu.Unlock()
}

// Run starts the frame ticker. It is safe to call more than once.
func (o *Overlay) Run() {
	o.startOnce.Do(func() { go o.animate() })
}

func (o *Overlay) Close() {
	select {
	case <-o.stop:
		return
	default:
		close(o.stop)
	}
	o.mu.Lock()
	if o.hideTimer != nil {
		o.hideTimer.Stop()
	}
	o.mu.Unlock()
	o.startOnce.Do(func() { close(o.done) })
	<-o.done
}

func (o *Overlay) animate() {
	defer close(o.done)
	ticker := time.NewTicker(o.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.publish()
		}
	}
}

func (o *Overlay) publish() {
	o.mu.Lock()
	f := o.frameLocked(o.now())
	sinks := append([]Sink(nil), o.sinks...)
	o.mu.Unlock()
	for _, s := range sinks {
		s.Render(f)
	}
}

// ShowRecording enters the recording state for mode. Repeating the call for
// the mode already showing keeps the running animation.
func (o *Overlay) ShowRecording(mode recorder.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Recording && o.mode == mode {
		return
	}
	o.mode = mode
	o.level = 0
	o.lastSample = time.Time{}
	o.enterLocked(Recording)
}

func (o *Overlay) Stopped() {
	o.set(Stopped)
}

// Paused shows the stopped theme without the dwell, so the indicator stays
// up until the session resumes or ends.
func (o *Overlay) Paused() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enterLocked(Stopped)
	if o.hideTimer != nil {
		o.hideTimer.Stop()
		o.hideTimer = nil
	}
	o.held = true
}

func (o *Overlay) Processing() {
	o.set(Processing)
}

func (o *Overlay) Completed(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.text = text
	o.enterLocked(Completed)
}

func (o *Overlay) Failed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errMsg = ""
	if err != nil {
		o.errMsg = err.Error()
	}
	o.enterLocked(Error)
}

// SetState drives the overlay by name, as the command channel does.
// mode is only consulted for the recording state and may be empty.
func (o *Overlay) SetState(name string, mode string) error {
	st, err := ParseState(name)
	if err != nil {
		return err
	}
	if st == Recording {
		m := recorder.HandsFree
		if mode != "" {
			if m, err = recorder.ParseMode(mode); err != nil {
				return err
			}
		}
		o.ShowRecording(m)
		return nil
	}
	if mode != "" {
		m, err := recorder.ParseMode(mode)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.mode = m
		o.mu.Unlock()
	}
	o.set(st)
	return nil
}

func (o *Overlay) set(st State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == st && !st.Terminal() {
		return
	}
	o.enterLocked(st)
}

func (o *Overlay) enterLocked(st State) {
	prev := o.state
	o.state = st
	o.entered = o.now()
	o.gen++
	o.held = false
	if o.hideTimer != nil {
		o.hideTimer.Stop()
		o.hideTimer = nil
	}
	if st != Completed {
		o.text = ""
	}
	if st != Error {
		o.errMsg = ""
	}
	if st.Terminal() {
		gen := o.gen
		o.hideTimer = time.AfterFunc(o.cfg.Dwell, func() { o.autoHide(gen) })
	}
	if prev != st {
		log.Infof("overlay %s -> %s", prev, st)
	}
}

func (o *Overlay) autoHide(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	o.enterLocked(Hidden)
}

// UpdateLevel feeds one amplitude sample in [0, 1]. Samples outside the
// recording state are ignored.
func (o *Overlay) UpdateLevel(l float64) {
	l = math.Max(0, math.Min(1, l))
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Recording {
		return
	}
	if l > o.level {
		o.level = o.level*0.2 + l*0.8
	} else {
		o.level = o.level*0.7 + l*0.3
	}
	o.lastSample = o.now()
}

// Current renders the frame for the present instant.
func (o *Overlay) Current() Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frameLocked(o.now())
}

func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Overlay) frameLocked(now time.Time) Frame {
	f := Frame{
		State:   o.state,
		Mode:    o.mode,
		Theme:   ThemeFor(o.state, o.mode),
		Visible: o.state != Hidden,
		Text:    o.text,
		Err:     o.errMsg,
	}
	if o.held {
		f.Theme.Label = "paused"
	}
	if o.state == Hidden {
		return f
	}
	elapsed := now.Sub(o.entered)
	if o.state.Blinks() {
		f.Visible = (elapsed/o.cfg.BlinkInterval)%2 == 0
	}
	if o.state != Recording {
		return f
	}

	f.Level = o.level
	f.Idle = o.lastSample.IsZero() || now.Sub(o.lastSample) > o.cfg.IdleAfter || o.level < idleFloor
	phase := elapsed.Seconds() * 2 * math.Pi
	f.Bars = make([]float64, o.cfg.Bars)
	for i := range f.Bars {
		offset := float64(i) * 0.6
		if f.Idle {
			f.Bars[i] = idleAmplitude * (0.5 + 0.5*math.Sin(phase+offset))
			continue
		}
		f.Bars[i] = o.level * (0.6 + 0.4*math.Abs(math.Sin(phase*1.5+offset)))
	}
	return f
}
