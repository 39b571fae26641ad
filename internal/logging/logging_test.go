package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	WithStepLogger(log, "run-1", 42).Debug(context.Background(), "step computed",
		Int("entries", 10), Bool("full", true), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "step computed" || rec["run_id"] != "run-1" || rec["step_ns"] != float64(42) {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["entries"] != float64(10) || rec["full"] != true || rec["error"] != "boom" {
		t.Fatalf("unexpected fields %v", rec)
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("expected generated request id on context, got %q", id)
	}
	again, same := EnsureRequestID(ctx)
	if same != id || RequestIDFromContext(again) != id {
		t.Fatalf("expected existing id %q to be kept, got %q", id, same)
	}

	ctx, l := WithRequestLogger(ContextWithRequestID(context.Background(), "req-7"), nil)
	if l == nil || RequestIDFromContext(ctx) != "req-7" {
		t.Fatalf("WithRequestLogger lost the incoming id")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on a bare context")
	}
	if LoggerFromContext(ContextWithLogger(ctx, nil)) == nil {
		t.Fatalf("expected nil logger to be stored as noop")
	}
}
