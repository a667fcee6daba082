// Package recorder owns the single audio capture session and the artifact
// it writes.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/audio"
	"murmur/codec"
	"murmur/log"
	"murmur/permission"
)

const (
	DefaultLevelInterval = 50 * time.Millisecond
	artifactPrefix       = "rec-"
)

type Config struct {
	// Dir is the shared directory; artifacts go under Dir/recordings.
	Dir           string
	Format        codec.Format
	Device        *audio.DeviceInfo
	LevelInterval time.Duration
}

type Manager struct {
	cfg   Config
	audio audio.Context
	gate  Gate
	now   func() time.Time

	sink atomic.Pointer[LevelSink]

	mu   sync.Mutex
	sess *session
}

type session struct {
	handle  Handle
	phase   Phase
	capture audio.CaptureDevice
	writer  codec.Writer

	// guarded by writeMu, taken from the capture callback
	writeMu  sync.Mutex
	writeErr error
	closed   bool

	paused atomic.Bool
	level  atomic.Uint64
	seq    atomic.Uint64

	tickStop chan struct{}
	tickDone chan struct{}
}

// New returns a Manager that opens captures on ac. gate may be nil.
func New(cfg Config, ac audio.Context, gate Gate) *Manager {
	if cfg.Format == "" {
		cfg.Format = codec.WAV
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultLevelInterval
	}
	return &Manager{cfg: cfg, audio: ac, gate: gate, now: time.Now}
}

// SetLevelSink replaces the receiver of level samples. nil disables them.
func (m *Manager) SetLevelSink(s LevelSink) {
	if s == nil {
		m.sink.Store(nil)
		return
	}
	m.sink.Store(&s)
}

// SetDevice selects the input device for the next session.
func (m *Manager) SetDevice(d *audio.DeviceInfo) {
	m.mu.Lock()
	m.cfg.Device = d
	m.mu.Unlock()
}

func (m *Manager) Dir() string {
	return filepath.Join(m.cfg.Dir, "recordings")
}

// Start opens the capture device and begins writing a new artifact.
func (m *Manager) Start(ctx context.Context, mode Mode) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx, mode)
}

func (m *Manager) startLocked(ctx context.Context, mode Mode) (Handle, error) {
	if m.sess != nil {
		return Handle{}, ErrSessionAlreadyActive
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return Handle{}, err
	}
	if m.gate != nil {
		if err := m.gate.Ensure(ctx, permission.Microphone); err != nil {
			return Handle{}, err
		}
	}

	started := m.now()
	id := uuid.NewString()
	path := filepath.Join(m.Dir(), fmt.Sprintf("%s%d-%s%s", artifactPrefix, started.UnixMilli(), id, m.cfg.Format.Ext()))

	capture, err := m.audio.NewCapture(m.cfg.Device, audio.CaptureConfig{
		SampleRate: codec.SampleRate,
		Channels:   codec.Channels,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("open capture: %w", err)
	}
	writer, err := codec.Create(path, m.cfg.Format)
	if err != nil {
		capture.Close()
		return Handle{}, err
	}

	s := &session{
		handle:   Handle{ID: id, Path: path, Mode: mode, StartedAt: started},
		capture:  capture,
		writer:   writer,
		tickStop: make(chan struct{}),
		tickDone: make(chan struct{}),
	}
	capture.SetCallback(s.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		writer.Close()
		os.Remove(path)
		return Handle{}, fmt.Errorf("start capture: %w", err)
	}

	s.phase = Recording
	m.sess = s
	go m.publishLevels(s)

	log.Recording(string(Recording), string(mode), path)
	return s.handle, nil
}

func (s *session) onData(data []byte, _ uint32) {
	if s.paused.Load() || len(data) < 2 {
		return
	}
	s.writeMu.Lock()
	if !s.closed && s.writeErr == nil {
		s.writeErr = s.writer.Write(codec.PCM16(data))
	}
	s.writeMu.Unlock()

	s.level.Store(math.Float64bits(audio.Level(data)))
	s.seq.Add(1)
}

// publishLevels forwards the latest level once per interval, and only when
// a new buffer arrived since the previous tick.
func (m *Manager) publishLevels(s *session) {
	defer close(s.tickDone)
	ticker := time.NewTicker(m.cfg.LevelInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-s.tickStop:
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			seq := s.seq.Load()
			if seq == lastSeq {
				continue
			}
			lastSeq = seq
			if sink := m.sink.Load(); sink != nil {
				(*sink).UpdateLevel(math.Float64frombits(s.level.Load()))
			}
		}
	}
}

func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil {
		return ErrNoActiveSession
	}
	if s.phase == Paused {
		return nil
	}
	s.paused.Store(true)
	s.capture.Stop()
	s.phase = Paused
	log.Recording(string(Paused), string(s.handle.Mode), "")
	return nil
}

func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil {
		return ErrNoActiveSession
	}
	if s.phase == Recording {
		return nil
	}
	if err := s.capture.Start(); err != nil {
		return fmt.Errorf("resume capture: %w", err)
	}
	s.paused.Store(false)
	s.phase = Recording
	log.Recording(string(Recording), string(s.handle.Mode), "")
	return nil
}

// Stop finalizes the artifact and ends the session.
func (m *Manager) Stop() (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sess
	if s == nil {
		return Artifact{}, ErrNoActiveSession
	}
	s.phase = Finalizing
	m.sess = nil

	closeErr := s.release()
	s.writeMu.Lock()
	writeErr := s.writeErr
	s.writeMu.Unlock()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(s.handle.Path)
		return Artifact{}, fmt.Errorf("finalize recording: %w", err)
	}

	a := Artifact{
		Path:      s.handle.Path,
		Format:    m.cfg.Format,
		Mode:      s.handle.Mode,
		StartedAt: s.handle.StartedAt,
		Frames:    s.writer.Frames(),
	}
	if fi, err := os.Stat(a.Path); err == nil {
		a.Size = fi.Size()
	}
	log.Recording("stopped", string(a.Mode), a.Path)
	return a, nil
}

// Cancel ends the session and deletes its artifact before returning.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.cancelLocked()
	return err
}

func (m *Manager) cancelLocked() (Mode, error) {
	s := m.sess
	if s == nil {
		return "", ErrNoActiveSession
	}
	s.phase = Discarded
	m.sess = nil

	if err := s.release(); err != nil {
		log.Warnf("cancel: closing artifact: %v", err)
	}
	if err := os.Remove(s.handle.Path); err != nil && !os.IsNotExist(err) {
		return s.handle.Mode, fmt.Errorf("remove artifact: %w", err)
	}
	log.Recording(string(Discarded), string(s.handle.Mode), s.handle.Path)
	return s.handle.Mode, nil
}

// Restart discards the active session and starts a new one in the same mode.
func (m *Manager) Restart(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, err := m.cancelLocked()
	if err != nil {
		return Handle{}, err
	}
	return m.startLocked(ctx, mode)
}

// Active returns the current session, if any.
func (m *Manager) Active() (Handle, Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return Handle{}, Idle, false
	}
	return m.sess.handle, m.sess.phase, true
}

// SetMode relabels the active session, as when a held hotkey turns a
// hands-free recording into push-to-talk.
func (m *Manager) SetMode(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ErrNoActiveSession
	}
	if m.sess.handle.Mode != mode {
		m.sess.handle.Mode = mode
		log.Recording("mode", string(mode), "")
	}
	return nil
}

// release stops the device, the level ticker and the writer. No capture
// callback runs after it returns.
func (s *session) release() error {
	close(s.tickStop)
	s.capture.Stop()
	s.capture.ClearCallback()
	s.capture.Close()
	<-s.tickDone

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
	return s.writer.Close()
}

// SweepOrphans removes artifacts older than ttl left behind by earlier runs.
// The active session's file is never touched.
func (m *Manager) SweepOrphans(ttl time.Duration) (int, error) {
	m.mu.Lock()
	active := ""
	if m.sess != nil {
		active = m.sess.handle.Path
	}
	m.mu.Unlock()

	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := m.now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) {
			continue
		}
		path := filepath.Join(m.Dir(), e.Name())
		if path == active {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Infof("swept %d orphaned recordings", removed)
	}
	return removed, nil
}
