package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStepCollectorRecordsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewStepCollector(reg)
	if err != nil {
		t.Fatalf("NewStepCollector: %v", err)
	}

	collector.ObserveStep(StepResultOK, 20*time.Millisecond)
	collector.ObserveStep(StepResultOK, 30*time.Millisecond)
	collector.ObserveStep(StepResultConfigurationError, time.Millisecond)
	collector.ObserveShortestPaths(5 * time.Millisecond)
	collector.SetTableSize(120, 7)
	collector.AddDeltaRecords(15)
	collector.AddDeltaRecords(-3)
	collector.SetPendingEmission(true)

	if got := testutil.ToFloat64(collector.Steps.WithLabelValues(StepResultOK)); got != 2 {
		t.Fatalf("ok steps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Steps.WithLabelValues(StepResultConfigurationError)); got != 1 {
		t.Fatalf("configuration error steps = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "satroute_step_duration_seconds", nil); count != 2 {
		t.Fatalf("step duration sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "satroute_shortest_paths_duration_seconds", nil); count != 1 {
		t.Fatalf("shortest path sample_count = %d, want 1", count)
	}
	if got := testutil.ToFloat64(collector.ForwardingEntries); got != 120 {
		t.Fatalf("forwarding entries = %v, want 120", got)
	}
	if got := testutil.ToFloat64(collector.DropEntries); got != 7 {
		t.Fatalf("drop entries = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.DeltaRecords); got != 15 {
		t.Fatalf("delta records = %v, want 15", got)
	}
	if got := testutil.ToFloat64(collector.PendingEmission); got != 1 {
		t.Fatalf("pending emission = %v, want 1", got)
	}
}

func TestStepCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewStepCollector(reg)
	if err != nil {
		t.Fatalf("NewStepCollector: %v", err)
	}
	second, err := NewStepCollector(reg)
	if err != nil {
		t.Fatalf("second NewStepCollector: %v", err)
	}

	second.AddDeltaRecords(4)
	if got := testutil.ToFloat64(first.DeltaRecords); got != 4 {
		t.Fatalf("shared delta counter = %v, want 4", got)
	}
}

func TestNilStepCollectorIsSafe(t *testing.T) {
	var c *StepCollector
	c.ObserveStep(StepResultOK, time.Second)
	c.ObserveShortestPaths(time.Second)
	c.SetTableSize(1, 1)
	c.AddDeltaRecords(1)
	c.SetBandwidthInterfaces(1)
	c.SetPendingEmission(false)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector should have no gatherer")
	}
}
