package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"murmur/codec"
	"murmur/log"
)

// verifySamples is one second of silence used to prove a freshly loaded
// runtime can run inference before it is swapped in.
const verifySamples = codec.SampleRate

type Config struct {
	Dir     string
	BaseURL string
	Runtime RuntimeOptions
	Factory Factory
	Client  *http.Client
}

type handle struct {
	name string
	rt   Runtime
}

// Manager owns the model files and the single loaded runtime.
type Manager struct {
	store   *Store
	dl      *Downloader
	factory Factory
	opts    RuntimeOptions

	mu     sync.Mutex
	active *handle
}

func NewManager(cfg Config) *Manager {
	store := NewStore(cfg.Dir)
	factory := cfg.Factory
	if factory == nil {
		factory = NewWhisperRuntime
	}
	return &Manager{
		store:   store,
		dl:      NewDownloader(store, cfg.BaseURL, cfg.Client),
		factory: factory,
		opts:    cfg.Runtime,
	}
}

func (m *Manager) Download(ctx context.Context, name string, onProgress Progress) error {
	return m.dl.Download(ctx, name, onProgress)
}

func (m *Manager) ListDownloaded() ([]string, error) {
	return m.store.List()
}

func (m *Manager) IsDownloaded(name string) bool {
	return m.store.IsDownloaded(name)
}

// SizeOf returns the on-disk size, or the advertised size for a known
// model that is not downloaded yet.
func (m *Manager) SizeOf(name string) (int64, bool) {
	if n, ok := m.store.SizeOf(name); ok {
		return n, true
	}
	if v, err := Lookup(name); err == nil {
		return v.Size, true
	}
	return 0, false
}

func (m *Manager) Path(name string) string {
	return m.store.Path(name)
}

// Delete removes a model from disk. Deleting the loaded model waits for any
// running inference, then closes it; the next use reloads from disk.
func (m *Manager) Delete(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.name == name {
		m.closeActiveLocked()
	}
	existed, err := m.store.Remove(name)
	log.ModelEvent("delete", name, 0, err)
	return existed, err
}

func (m *Manager) IsInitialized(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.name == name
}

// Loaded returns the name of the loaded model, if any.
func (m *Manager) Loaded() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.name, true
}

func (m *Manager) Preload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.ensureLocked(ctx, name)
	return err
}

// ensureLocked returns the load time, zero on a cache hit.
func (m *Manager) ensureLocked(ctx context.Context, name string) (time.Duration, error) {
	if !m.store.IsDownloaded(name) {
		return 0, fmt.Errorf("%w: %s", ErrModelNotDownloaded, name)
	}
	if m.active != nil && m.active.name == name {
		return 0, nil
	}

	start := time.Now()
	rt, err := m.factory(m.store.Path(name), m.opts)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrLoadFailed, name, err)
		log.ModelEvent("load", name, time.Since(start), err)
		return 0, err
	}
	if _, err := rt.Process(ctx, make([]float32, verifySamples)); err != nil {
		rt.Close()
		err = fmt.Errorf("%w: %s: verification: %w", ErrLoadFailed, name, err)
		log.ModelEvent("load", name, time.Since(start), err)
		return 0, err
	}

	m.closeActiveLocked()
	m.active = &handle{name: name, rt: rt}
	d := time.Since(start)
	log.ModelEvent("load", name, d, nil)
	return d, nil
}

func (m *Manager) closeActiveLocked() {
	if m.active == nil {
		return
	}
	if err := m.active.rt.Close(); err != nil {
		log.Warnf("close model %s: %v", m.active.name, err)
	}
	m.active = nil
}

// Result is a transcript with the timings that produced it.
type Result struct {
	Text          string
	AudioSeconds  float64
	LoadTime      time.Duration
	InferenceTime time.Duration
}

func (m *Manager) Transcribe(ctx context.Context, artifactPath, name string) (string, error) {
	r, err := m.TranscribeResult(ctx, artifactPath, name)
	return r.Text, err
}

func (m *Manager) TranscribeResult(ctx context.Context, artifactPath, name string) (Result, error) {
	if !m.store.IsDownloaded(name) {
		return Result{}, fmt.Errorf("%w: %s", ErrModelNotDownloaded, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	load, err := m.ensureLocked(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(artifactPath); errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("%w: %s", ErrAudioFileMissing, artifactPath)
	}
	samples, err := codec.Decode(artifactPath)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	segments, err := m.active.rt.Process(ctx, samples)
	r := Result{
		AudioSeconds:  float64(len(samples)) / codec.SampleRate,
		LoadTime:      load,
		InferenceTime: time.Since(start),
	}
	if err != nil {
		return r, fmt.Errorf("transcribe %s: %w", artifactPath, err)
	}
	r.Text = joinSegments(segments)
	return r, nil
}

func joinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Close releases the loaded runtime.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeActiveLocked()
}
