// Package telemetry sets up OpenTelemetry metrics (Prometheus exposition)
// and tracing for lectern.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/rbright/lectern"

// Provider bundles the meter/tracer pair and the /metrics handler.
type Provider struct {
	Metrics *Metrics
	Handler http.Handler

	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Setup builds providers from cfg. Disabled telemetry returns no-op
// instruments and a nil Handler.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enable {
		return Disabled(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version.Version),
			attribute.Int("process.pid", os.Getpid()),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	tracerProvider, err := newTracerProvider(ctx, cfg, res, logger)
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	metrics, err := newMetrics(meterProvider.Meter(instrumentationName))
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	return &Provider{
		Metrics: metrics,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		tracer:  tracerProvider.Tracer(instrumentationName),
		shutdown: func(ctx context.Context) error {
			return errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
		},
	}, nil
}

// Disabled returns a provider whose instruments record nothing.
func Disabled() *Provider {
	metrics, _ := newMetrics(metricnoop.NewMeterProvider().Meter(instrumentationName))
	return &Provider{
		Metrics:  metrics,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Tracer returns the lectern tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch {
	case strings.TrimSpace(cfg.OTLPEndpoint) != "":
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(strings.TrimSpace(cfg.OTLPEndpoint)),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", cfg.OTLPEndpoint))
	case cfg.TraceStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	default:
		logger.Debug("telemetry initialized", slog.String("exporter", "none"))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// Metrics holds lectern instruments. Methods are safe on a nil receiver.
type Metrics struct {
	meter      metric.Meter
	chunks     metric.Int64Counter
	dropped    metric.Int64Counter
	entries    metric.Int64Counter
	recognize  metric.Float64Histogram
	failures   metric.Int64Counter
	cleanups   metric.Int64Counter
	rssGauge   metric.Float64Gauge
	queueDepth metric.Int64ObservableGauge
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error
	if m.chunks, err = meter.Int64Counter("lectern.audio.chunks",
		metric.WithDescription("Audio chunks captured")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("lectern.queue.dropped",
		metric.WithDescription("Items dropped by a full queue")); err != nil {
		return nil, err
	}
	if m.entries, err = meter.Int64Counter("lectern.transcript.entries",
		metric.WithDescription("Transcript entries by status")); err != nil {
		return nil, err
	}
	if m.recognize, err = meter.Float64Histogram("lectern.asr.duration",
		metric.WithDescription("Recognizer call latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("lectern.asr.failures",
		metric.WithDescription("Failed recognizer calls")); err != nil {
		return nil, err
	}
	if m.cleanups, err = meter.Int64Counter("lectern.memory.cleanups",
		metric.WithDescription("Threshold memory cleanups")); err != nil {
		return nil, err
	}
	if m.rssGauge, err = meter.Float64Gauge("lectern.memory.rss",
		metric.WithDescription("Resident memory after cleanup"),
		metric.WithUnit("MiBy")); err != nil {
		return nil, err
	}
	if m.queueDepth, err = meter.Int64ObservableGauge("lectern.queue.depth",
		metric.WithDescription("Items buffered per queue")); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveQueues reports queue depth on each collection.
func (m *Metrics) ObserveQueues(depths map[string]func() int) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for name, depth := range depths {
			obs.ObserveInt64(m.queueDepth, int64(depth()), metric.WithAttributes(attribute.String("queue", name)))
		}
		return nil
	}, m.queueDepth)
	return err
}

func (m *Metrics) ChunkCaptured(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunks.Add(ctx, 1)
}

func (m *Metrics) Dropped(ctx context.Context, queue string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (m *Metrics) EntryRecorded(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Recognized records one recognizer call.
func (m *Metrics) Recognized(ctx context.Context, pass string, seconds float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pass", pass))
	m.recognize.Record(ctx, seconds, attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) MemoryCleanup(ctx context.Context, afterMB float64) {
	if m == nil {
		return
	}
	m.cleanups.Add(ctx, 1)
	m.rssGauge.Record(ctx, afterMB)
}
