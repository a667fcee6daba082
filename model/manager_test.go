package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"murmur/codec"
)

type fakeRuntime struct {
	name   string
	closed bool
}

type fakeFactory struct {
	mu        sync.Mutex
	loads     []string
	runtimes  []*fakeRuntime
	loadErr   error
	verifyErr error
}

func (f *fakeFactory) new(path string, _ RuntimeOptions) (Runtime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(filepath.Dir(path))
	f.loads = append(f.loads, name)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	rt := &fakeRuntime{name: name}
	f.runtimes = append(f.runtimes, rt)
	return &countingRuntime{fakeRuntime: rt, verifyErr: f.verifyErr}, nil
}

func (f *fakeFactory) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

type countingRuntime struct {
	*fakeRuntime
	verifyErr error
}

// Process returns nothing for silence and " <name> said hi " otherwise.
func (r *countingRuntime) Process(_ context.Context, samples []float32) ([]string, error) {
	if r.closed {
		return nil, errors.New("runtime used after close")
	}
	silent := true
	for _, s := range samples {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		return nil, r.verifyErr
	}
	return []string{" " + r.name, "", "said hi "}, nil
}

func (r *countingRuntime) Close() error {
	r.closed = true
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	m := NewManager(Config{Dir: t.TempDir(), Factory: f.new})
	t.Cleanup(m.Close)
	return m, f
}

func install(t *testing.T, m *Manager, name string) {
	t.Helper()
	p := m.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeWAV(t *testing.T, seconds float64, amp int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	w, err := codec.Create(path, codec.WAV)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]int16, int(seconds*codec.SampleRate))
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	if err := w.Write(samples); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeNotDownloadedNeverLoads(t *testing.T) {
	m, f := newTestManager(t)
	clip := writeWAV(t, 1, 1000)
	_, err := m.Transcribe(context.Background(), clip, "base.en")
	if !errors.Is(err, ErrModelNotDownloaded) {
		t.Fatalf("err = %v, want ErrModelNotDownloaded", err)
	}
	if err := m.Preload(context.Background(), "base.en"); !errors.Is(err, ErrModelNotDownloaded) {
		t.Fatalf("Preload err = %v", err)
	}
	if f.loadCount() != 0 {
		t.Errorf("loads = %d, want 0", f.loadCount())
	}
}

func TestTranscribeSilenceIsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	install(t, m, "tiny")
	clip := writeWAV(t, 2, 0)
	text, err := m.Transcribe(context.Background(), clip, "tiny")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribeJoinsSegments(t *testing.T) {
	m, _ := newTestManager(t)
	install(t, m, "tiny")
	r, err := m.TranscribeResult(context.Background(), writeWAV(t, 1, 3000), "tiny")
	if err != nil {
		t.Fatal(err)
	}
	if r.Text != "tiny said hi" {
		t.Errorf("text = %q", r.Text)
	}
	if r.AudioSeconds < 0.99 || r.AudioSeconds > 1.01 {
		t.Errorf("audio seconds = %v", r.AudioSeconds)
	}
	if r.LoadTime <= 0 {
		t.Error("first transcription should report load time")
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	m, _ := newTestManager(t)
	install(t, m, "tiny")
	_, err := m.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.wav"), "tiny")
	if !errors.Is(err, ErrAudioFileMissing) {
		t.Errorf("err = %v, want ErrAudioFileMissing", err)
	}
}

func TestSwapReloads(t *testing.T) {
	m, f := newTestManager(t)
	install(t, m, "tiny")
	install(t, m, "base")
	clip := writeWAV(t, 1, 2000)
	ctx := context.Background()

	for _, name := range []string{"tiny", "base", "tiny"} {
		text, err := m.Transcribe(ctx, clip, name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if want := name + " said hi"; text != want {
			t.Errorf("%s: text = %q, want %q", name, text, want)
		}
	}
	if f.loadCount() != 3 {
		t.Errorf("loads = %v, want 3", f.loads)
	}
	for _, rt := range f.runtimes[:2] {
		if !rt.closed {
			t.Errorf("replaced runtime %s not closed", rt.name)
		}
	}
	if f.runtimes[2].closed {
		t.Error("active runtime closed")
	}
}

func TestPreloadCacheHit(t *testing.T) {
	m, f := newTestManager(t)
	install(t, m, "small")
	ctx := context.Background()
	if m.IsInitialized("small") {
		t.Fatal("initialized before preload")
	}
	for range 3 {
		if err := m.Preload(ctx, "small"); err != nil {
			t.Fatal(err)
		}
	}
	if f.loadCount() != 1 {
		t.Errorf("loads = %d, want 1", f.loadCount())
	}
	if !m.IsInitialized("small") || m.IsInitialized("tiny") {
		t.Error("IsInitialized wrong")
	}
	if name, ok := m.Loaded(); !ok || name != "small" {
		t.Errorf("Loaded = %q, %v", name, ok)
	}
}

func TestPreloadFailures(t *testing.T) {
	tests := []struct {
		name      string
		loadErr   error
		verifyErr error
	}{
		{"load", errors.New("bad magic"), nil},
		{"verification", nil, errors.New("inference crashed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f := newTestManager(t)
			f.loadErr, f.verifyErr = tt.loadErr, tt.verifyErr
			install(t, m, "tiny")
			err := m.Preload(context.Background(), "tiny")
			if !errors.Is(err, ErrLoadFailed) {
				t.Fatalf("err = %v, want ErrLoadFailed", err)
			}
			if m.IsInitialized("tiny") {
				t.Error("failed load marked initialized")
			}
			for _, rt := range f.runtimes {
				if !rt.closed {
					t.Error("unverified runtime left open")
				}
			}
		})
	}
}

func TestFailedLoadKeepsPrevious(t *testing.T) {
	m, f := newTestManager(t)
	install(t, m, "tiny")
	install(t, m, "base")
	ctx := context.Background()
	if err := m.Preload(ctx, "tiny"); err != nil {
		t.Fatal(err)
	}
	f.loadErr = errors.New("oom")
	if err := m.Preload(ctx, "base"); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("err = %v", err)
	}
	if !m.IsInitialized("tiny") {
		t.Error("previous model lost after failed swap")
	}
}

func TestDeleteActiveInvalidates(t *testing.T) {
	m, f := newTestManager(t)
	install(t, m, "tiny")
	ctx := context.Background()
	if err := m.Preload(ctx, "tiny"); err != nil {
		t.Fatal(err)
	}
	existed, err := m.Delete("tiny")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if m.IsInitialized("tiny") || m.IsDownloaded("tiny") {
		t.Error("deleted model still present")
	}
	if !f.runtimes[0].closed {
		t.Error("active runtime not closed on delete")
	}
	if _, err := m.Transcribe(ctx, writeWAV(t, 1, 100), "tiny"); !errors.Is(err, ErrModelNotDownloaded) {
		t.Errorf("err = %v, want ErrModelNotDownloaded", err)
	}

	existed, err = m.Delete("tiny")
	if err != nil || existed {
		t.Errorf("second Delete = %v, %v", existed, err)
	}
}

func TestListAndSize(t *testing.T) {
	m, _ := newTestManager(t)
	install(t, m, "small.en")
	install(t, m, "base")
	// a leftover partial download is not listed
	if err := os.MkdirAll(filepath.Join(m.store.Dir(), "tiny"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(m.store.partialPath("tiny"), []byte("half"), 0o644)

	names, err := m.ListDownloaded()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "base" || names[1] != "small.en" {
		t.Errorf("ListDownloaded = %v", names)
	}

	tests := []struct {
		name string
		size int64
		ok   bool
	}{
		{"base", 4, true},
		{"tiny", 77691713, true},
		{"nonesuch", 0, false},
	}
	for _, tt := range tests {
		size, ok := m.SizeOf(tt.name)
		if size != tt.size || ok != tt.ok {
			t.Errorf("SizeOf(%s) = %d, %v, want %d, %v", tt.name, size, ok, tt.size, tt.ok)
		}
	}
}

func TestCatalog(t *testing.T) {
	vs := Catalog()
	if len(vs) != 10 {
		t.Fatalf("catalog has %d entries", len(vs))
	}
	for i := 1; i < len(vs); i++ {
		if vs[i-1].Name >= vs[i].Name {
			t.Error("catalog not sorted")
		}
	}
	if got := URL("https://example.com/m/", "base.en"); got != "https://example.com/m/ggml-base.en.bin" {
		t.Errorf("URL = %s", got)
	}
	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		if validName(bad) {
			t.Errorf("validName(%q) = true", bad)
		}
	}
}
