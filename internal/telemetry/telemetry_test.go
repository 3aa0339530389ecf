package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closeLog, err := InitLogger(dir, true)
	if err != nil {
		t.Fatalf("InitLogger() error: %v", err)
	}
	logger.Debug("debug line", "key", "value")
	if err := closeLog(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "askollama.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"debug line"`) {
		t.Errorf("expected debug entry in log file, got: %s", data)
	}
}

func TestInitLogger_InfoLevelDropsDebug(t *testing.T) {
	dir := t.TempDir()

	logger, closeLog, err := InitLogger(dir, false)
	if err != nil {
		t.Fatalf("InitLogger() error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, "askollama.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info entry missing")
	}
}

func TestInitTelemetry(t *testing.T) {
	testCases := []struct {
		name       string
		debug      bool
		wantIndent bool
	}{
		{name: "compact", debug: false, wantIndent: false},
		{name: "pretty", debug: true, wantIndent: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			providers, err := InitTelemetry(context.Background(), dir, tc.debug)
			if err != nil {
				t.Fatalf("InitTelemetry() error: %v", err)
			}

			_, span := providers.Tracer.Start(context.Background(), "test_span")
			span.End()

			counter, err := providers.Meter.Int64Counter("test.counter")
			if err != nil {
				t.Fatalf("Int64Counter() error: %v", err)
			}
			counter.Add(context.Background(), 1)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown() error: %v", err)
			}

			traces, err := os.ReadFile(filepath.Join(dir, "askollama_traces.log"))
			if err != nil {
				t.Fatalf("Failed to read traces file: %v", err)
			}
			if !strings.Contains(string(traces), "test_span") {
				t.Error("expected span to be exported on shutdown")
			}
			if got := strings.Contains(string(traces), "\n\t"); got != tc.wantIndent {
				t.Errorf("indented output = %v, want %v", got, tc.wantIndent)
			}

			metrics, err := os.ReadFile(filepath.Join(dir, "askollama_metrics.log"))
			if err != nil {
				t.Fatalf("Failed to read metrics file: %v", err)
			}
			if !strings.Contains(string(metrics), "test.counter") {
				t.Error("expected counter to be exported on shutdown")
			}
		})
	}
}
