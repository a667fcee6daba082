package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposed(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, Config{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	tel.Session(ctx, "hands-free", "stopped")
	tel.Transcription(ctx, "hands-free", "base.en", 2.5, 120*time.Millisecond, 340*time.Millisecond)
	tel.TranscriptionFailed(ctx, "base.en", "load_failed")
	tel.Download(ctx, "tiny", errors.New("boom"))

	if tel.Handler() == nil {
		t.Fatal("no metrics handler")
	}
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"murmur_recording_sessions",
		"murmur_transcriptions",
		"murmur_transcription_failures",
		"murmur_model_downloads",
		`code="load_failed"`,
		`result="error"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServe(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	addr, err := tel.Serve("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	ctx := context.Background()
	tel.Session(ctx, "m", "o")
	tel.Transcription(ctx, "m", "x", 1, 0, 0)
	tel.TranscriptionFailed(ctx, "x", "internal")
	tel.Download(ctx, "x", nil)
	_, span := tel.Tracer().Start(ctx, "noop")
	span.End()
	if err := tel.Shutdown(ctx); err != nil {
		t.Error(err)
	}
}
