package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	ServiceName    = "askollama"
	ServiceVersion = "1.0.0"
)

func rotatingFile(dir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation.
// Logs only go to <dir>/askollama.log; stdout carries the completion.
func InitLogger(dir string, debug bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile := rotatingFile(dir, "askollama.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, logFile.Close, nil
}

// Providers bundles the tracer and meter the app records with and the
// files their exporters write to.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tp    *sdktrace.TracerProvider
	mp    *sdkmetric.MeterProvider
	files []*lumberjack.Logger
}

// InitTelemetry initializes OpenTelemetry tracing and metrics.
// Spans go to <dir>/askollama_traces.log, metrics to <dir>/askollama_metrics.log.
// Exports are compact JSON lines unless debug asks for indented output.
func InitTelemetry(ctx context.Context, dir string, debug bool) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	p := &Providers{}
	traceFile := p.open(dir, "askollama_traces.log")
	metricsFile := p.open(dir, "askollama_metrics.log")

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(traceFile)}
	metricOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(metricsFile)}
	if debug {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
	}

	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		p.closeFiles()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		p.closeFiles()
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	// Pending spans and the last metric collection are flushed by Shutdown
	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)

	p.Tracer = p.tp.Tracer(ServiceName)
	p.Meter = p.mp.Meter(ServiceName)
	return p, nil
}

func (p *Providers) open(dir, name string) *lumberjack.Logger {
	f := rotatingFile(dir, name)
	p.files = append(p.files, f)
	return f
}

func (p *Providers) closeFiles() error {
	var errs []error
	for _, f := range p.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", f.Filename, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes pending spans and metrics, then closes the export files
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider: %w", err))
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if err := p.closeFiles(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
