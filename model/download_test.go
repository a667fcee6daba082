package model

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) add(v float64) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) check(t *testing.T) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.values) == 0 {
		t.Fatal("no progress reported")
	}
	ones := 0
	for i, v := range p.values {
		if v < 0 || v > 1 {
			t.Errorf("progress %v out of range", v)
		}
		if i > 0 && v < p.values[i-1] {
			t.Errorf("progress decreased: %v after %v", v, p.values[i-1])
		}
		if v == 1 {
			ones++
		}
	}
	if ones != 1 {
		t.Errorf("saw 1.0 %d times, want 1", ones)
	}
	if last := p.values[len(p.values)-1]; last != 1 {
		t.Errorf("last progress = %v, want 1", last)
	}
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("ggml"), n/4)
}

func modelServer(t *testing.T, body []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ggml-tiny.bin" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		for off := 0; off < len(body); off += 1024 {
			w.Write(body[off:min(off+1024, len(body))])
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadProgress(t *testing.T) {
	var hits atomic.Int32
	body := payload(64 * 1024)
	srv := modelServer(t, body, &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())

	if store.IsDownloaded("tiny") {
		t.Fatal("downloaded before download")
	}
	var p progressLog
	if err := d.Download(context.Background(), "tiny", p.add); err != nil {
		t.Fatalf("Download: %v", err)
	}
	p.check(t)
	if !store.IsDownloaded("tiny") {
		t.Fatal("not downloaded after download")
	}
	got, err := os.ReadFile(store.Path("tiny"))
	if err != nil || !bytes.Equal(got, body) {
		t.Errorf("file content mismatch (err=%v, %d bytes)", err, len(got))
	}
	if _, err := os.Stat(store.partialPath("tiny")); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestDownloadAlreadyPresent(t *testing.T) {
	var hits atomic.Int32
	srv := modelServer(t, payload(1024), &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())
	if err := d.Download(context.Background(), "tiny", nil); err != nil {
		t.Fatal(err)
	}

	var p progressLog
	if err := d.Download(context.Background(), "tiny", p.add); err != nil {
		t.Fatal(err)
	}
	p.check(t)
	if len(p.values) != 1 {
		t.Errorf("progress = %v, want single 1.0", p.values)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestBeginRechecksUnderLock(t *testing.T) {
	var hits atomic.Int32
	srv := modelServer(t, payload(1024), &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())

	// A fetch that completed after the caller's first presence check.
	path := store.Path("tiny")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, payload(1024), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, present := d.begin("tiny", nil); !present {
		t.Error("begin started a fetch for a model already on disk")
	}
	if n := d.Fetches(); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
	if hits.Load() != 0 {
		t.Errorf("hits = %d, want 0", hits.Load())
	}
}

func TestDownloadFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"short body", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "4096")
			w.Write(payload(1024))
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			store := NewStore(t.TempDir())
			d := NewDownloader(store, srv.URL, srv.Client())

			var p progressLog
			err := d.Download(context.Background(), "tiny", p.add)
			if !errors.Is(err, ErrDownloadFailed) {
				t.Fatalf("err = %v, want ErrDownloadFailed", err)
			}
			if store.IsDownloaded("tiny") {
				t.Error("failed download marked as downloaded")
			}
			if _, err := os.Stat(store.partialPath("tiny")); !os.IsNotExist(err) {
				t.Errorf("partial file left behind: %v", err)
			}
			for _, v := range p.values {
				if v == 1 {
					t.Error("failed download reported 1.0")
				}
			}
		})
	}
}

func TestDownloadUnknownModel(t *testing.T) {
	d := NewDownloader(NewStore(t.TempDir()), "http://127.0.0.1:0", nil)
	if err := d.Download(context.Background(), "huge-v9", nil); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
}

// gatedServer sends the first half of the body, then waits for release.
func gatedServer(t *testing.T, body []byte, hits *atomic.Int32) (*httptest.Server, chan struct{}, chan struct{}) {
	t.Helper()
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		half := len(body) / 2
		w.Write(body[:half])
		w.(http.Flusher).Flush()
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Write(body[half:])
	}))
	t.Cleanup(srv.Close)
	return srv, started, release
}

func waitSubscribers(t *testing.T, d *Downloader, name string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		f := d.inflight[name]
		d.mu.Unlock()
		if f != nil {
			f.mu.Lock()
			got := len(f.subs)
			f.mu.Unlock()
			if got == n {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentDownloadsJoin(t *testing.T) {
	var hits atomic.Int32
	body := payload(32 * 1024)
	srv, started, release := gatedServer(t, body, &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())

	logs := []*progressLog{{}, {}}
	errs := make(chan error, 2)
	go func() { errs <- d.Download(context.Background(), "tiny", logs[0].add) }()
	<-started
	go func() { errs <- d.Download(context.Background(), "tiny", logs[1].add) }()
	waitSubscribers(t, d, "tiny", 2)
	close(release)

	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("Download: %v", err)
		}
	}
	for _, p := range logs {
		p.check(t)
	}
	if hits.Load() != 1 || d.Fetches() != 1 {
		t.Errorf("hits = %d fetches = %d, want 1", hits.Load(), d.Fetches())
	}
	names, err := store.List()
	if err != nil || len(names) != 1 {
		t.Errorf("List = %v, %v", names, err)
	}
}

func TestCancelOneCallerKeepsFetch(t *testing.T) {
	var hits atomic.Int32
	srv, started, release := gatedServer(t, payload(32*1024), &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- d.Download(ctxA, "tiny", nil) }()
	<-started
	var p progressLog
	go func() { errB <- d.Download(context.Background(), "tiny", p.add) }()
	waitSubscribers(t, d, "tiny", 2)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("A err = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-errB; err != nil {
		t.Fatalf("B err = %v", err)
	}
	p.check(t)
	if !store.IsDownloaded("tiny") {
		t.Error("remaining caller did not finish the download")
	}
}

func TestCancelAllCallersAborts(t *testing.T) {
	var hits atomic.Int32
	srv, started, _ := gatedServer(t, payload(32*1024), &hits)
	store := NewStore(t.TempDir())
	d := NewDownloader(store, srv.URL, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- d.Download(ctx, "tiny", nil) }()
	}
	<-started
	waitSubscribers(t, d, "tiny", 2)
	cancel()
	for range 2 {
		if err := <-errs; !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}

	d.mu.Lock()
	f := d.aborted["tiny"]
	d.mu.Unlock()
	if f != nil {
		<-f.done
	}
	if store.IsDownloaded("tiny") {
		t.Error("aborted download marked as downloaded")
	}
	if _, err := os.Stat(store.partialPath("tiny")); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}
