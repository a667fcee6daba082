// Package telemetry exposes dictation metrics over a Prometheus endpoint and
// optionally exports traces over OTLP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"

	"murmur/log"
)

const instrumentation = "murmur"

type Config struct {
	ServiceVersion string
	MetricsBind    string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	traceProvider *sdktrace.TracerProvider
	handler       http.Handler
	server        *http.Server

	tracer      trace.Tracer
	sessions    metric.Int64Counter
	transcripts metric.Int64Counter
	failures    metric.Int64Counter
	downloads   metric.Int64Counter
	inference   metric.Float64Histogram
	loadTime    metric.Float64Histogram
	audioLength metric.Float64Histogram
}

func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(instrumentation),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	t := &Telemetry{}
	if t.traceProvider, err = initTracer(ctx, cfg, res); err != nil {
		return nil, err
	}
	otel.SetTracerProvider(t.traceProvider)

	t.meterProvider, t.handler = initMetrics(res)
	otel.SetMeterProvider(t.meterProvider)

	t.tracer = t.traceProvider.Tracer(instrumentation)
	if err := t.instruments(t.meterProvider.Meter(instrumentation)); err != nil {
		return nil, err
	}
	return t, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	log.Infof("telemetry: exporting traces to %s", endpoint)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func initMetrics(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler) {
	reg := promclient.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promExporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		log.Warnf("telemetry: prometheus exporter unavailable: %v", err)
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (t *Telemetry) instruments(m metric.Meter) error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }
	var err error
	t.sessions, err = m.Int64Counter("murmur.recording.sessions", metric.WithDescription("Recording sessions by outcome"))
	add(err)
	t.transcripts, err = m.Int64Counter("murmur.transcriptions", metric.WithDescription("Completed transcriptions"))
	add(err)
	t.failures, err = m.Int64Counter("murmur.transcription.failures", metric.WithDescription("Failed transcriptions by error code"))
	add(err)
	t.downloads, err = m.Int64Counter("murmur.model.downloads", metric.WithDescription("Model downloads by result"))
	add(err)
	t.inference, err = m.Float64Histogram("murmur.inference.duration", metric.WithUnit("ms"))
	add(err)
	t.loadTime, err = m.Float64Histogram("murmur.model.load.duration", metric.WithUnit("ms"))
	add(err)
	t.audioLength, err = m.Float64Histogram("murmur.audio.length", metric.WithUnit("s"))
	add(err)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry instruments: %w", err)
	}
	return nil
}

// Handler serves the Prometheus exposition, or nil when unavailable.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return nil
	}
	return t.handler
}

// Serve exposes /metrics on addr until Shutdown.
func (t *Telemetry) Serve(addr string) (net.Addr, error) {
	if t.handler == nil {
		return nil, errors.New("metrics handler unavailable")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.handler)
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("telemetry: metrics on http://%s/metrics", ln.Addr())
	return ln.Addr(), nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.server != nil {
		errs = append(errs, t.server.Shutdown(ctx))
	}
	errs = append(errs, t.meterProvider.Shutdown(ctx), t.traceProvider.Shutdown(ctx))
	return errors.Join(errs...)
}

// Tracer is safe on a nil Telemetry and then returns a no-op tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil {
		return otel.Tracer(instrumentation)
	}
	return t.tracer
}

func (t *Telemetry) Session(ctx context.Context, mode, outcome string) {
	if t == nil {
		return
	}
	t.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (t *Telemetry) Transcription(ctx context.Context, mode, model string, audio float64, load, inference time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("model", model))
	t.transcripts.Add(ctx, 1, attrs)
	t.audioLength.Record(ctx, audio, attrs)
	t.inference.Record(ctx, float64(inference.Microseconds())/1000, attrs)
	if load > 0 {
		t.loadTime.Record(ctx, float64(load.Microseconds())/1000, metric.WithAttributes(attribute.String("model", model)))
	}
}

func (t *Telemetry) TranscriptionFailed(ctx context.Context, model, code string) {
	if t == nil {
		return
	}
	t.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("code", code),
	))
}

func (t *Telemetry) Download(ctx context.Context, model string, err error) {
	if t == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.downloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("result", result),
	))
}
