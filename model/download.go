package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"murmur/log"
)

// Progress receives a fraction in [0, 1]. Calls for one Download are
// serialized, non-decreasing and end with exactly one 1.0 on success.
type Progress func(float64)

// Downloader fetches model files. Concurrent requests for the same name
// share a single HTTP transfer.
type Downloader struct {
	store   *Store
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	inflight map[string]*fetch
	aborted  map[string]*fetch // cancelled fetches still cleaning up
	fetches  int
}

func NewDownloader(store *Store, baseURL string, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		store:    store,
		baseURL:  baseURL,
		client:   client,
		inflight: make(map[string]*fetch),
		aborted:  make(map[string]*fetch),
	}
}

type subscriber struct {
	fn   Progress
	last float64
}

type fetch struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu      sync.Mutex
	current float64
	nextID  int
	subs    map[int]*subscriber
}

func (f *fetch) join(fn Progress) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	s := &subscriber{fn: fn}
	f.subs[id] = s
	if f.current > 0 {
		s.emit(f.current)
	}
	return id
}

// leave detaches a subscriber and reports how many remain.
func (f *fetch) leave(id int) (*subscriber, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.subs[id]
	delete(f.subs, id)
	return s, len(f.subs)
}

func (f *fetch) broadcast(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p <= f.current {
		return
	}
	f.current = p
	for _, s := range f.subs {
		s.emit(p)
	}
}

func (s *subscriber) emit(p float64) {
	if s.fn == nil || p <= s.last {
		return
	}
	s.last = p
	s.fn(p)
}

// Download makes name available on disk. If the file is already present it
// reports 1.0 and returns.
func (d *Downloader) Download(ctx context.Context, name string, onProgress Progress) error {
	if _, err := Lookup(name); err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	if d.store.IsDownloaded(name) {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	f, id, present := d.begin(name, onProgress)
	if present {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	select {
	case <-f.done:
		sub, _ := f.leave(id)
		if f.err != nil {
			return f.err
		}
		if onProgress != nil && sub.last < 1 {
			onProgress(1)
		}
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		if _, remaining := f.leave(id); remaining == 0 && d.inflight[name] == f {
			f.cancel()
			delete(d.inflight, name)
			d.aborted[name] = f
		}
		d.mu.Unlock()
		return ctx.Err()
	}
}

// begin joins the in-flight fetch for name or starts one. A fetch that
// finished between the caller's presence check and taking d.mu has already
// renamed its file into place, so the check is repeated under the lock.
func (d *Downloader) begin(name string, onProgress Progress) (f *fetch, id int, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.inflight[name]
	if !ok {
		if d.store.IsDownloaded(name) {
			return nil, 0, true
		}
		fctx, cancel := context.WithCancel(context.Background())
		f = &fetch{cancel: cancel, done: make(chan struct{}), subs: make(map[int]*subscriber)}
		d.inflight[name] = f
		d.fetches++
		prev := d.aborted[name]
		delete(d.aborted, name)
		go d.run(fctx, name, f, prev)
	}
	return f, f.join(onProgress), false
}

// Fetches reports how many HTTP transfers have been started.
func (d *Downloader) Fetches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}

func (d *Downloader) run(ctx context.Context, name string, f *fetch, prev *fetch) {
	if prev != nil {
		<-prev.done
	}
	start := time.Now()
	err := d.fetch(ctx, name, f)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrDownloadFailed, name, err)
	}
	log.ModelEvent("download", name, time.Since(start), err)

	d.mu.Lock()
	if d.inflight[name] == f {
		delete(d.inflight, name)
	}
	if d.aborted[name] == f {
		delete(d.aborted, name)
	}
	d.mu.Unlock()

	f.err = err
	close(f.done)
}

func (d *Downloader) fetch(ctx context.Context, name string, f *fetch) error {
	partial := d.store.partialPath(name)
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(partial) // no-op after a successful rename

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL(d.baseURL, name), nil)
	if err != nil {
		file.Close()
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		file.Close()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		file.Close()
		return fmt.Errorf("GET %s: %s", req.URL, resp.Status)
	}

	hasher := sha256.New()
	src := &progressReader{r: resp.Body, total: resp.ContentLength, report: f.broadcast}
	n, err := io.Copy(io.MultiWriter(file, hasher), src)
	if err != nil {
		file.Close()
		return err
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		file.Close()
		return fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if n == 0 {
		file.Close()
		return errors.New("empty body")
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(partial, d.store.Path(name)); err != nil {
		return err
	}
	log.Infof("model %s: %d bytes sha256=%s", name, n, hex.EncodeToString(hasher.Sum(nil))[:12])
	return nil
}

// progressReader reports read progress below 1.0; completion is reported
// by Download after the file has been renamed into place.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
}

const maxStreamingProgress = 0.99

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		p.report(min(float64(p.read)/float64(p.total), maxStreamingProgress))
	}
	return n, err
}
