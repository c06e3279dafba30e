package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWritePrometheus(t *testing.T) {
	m := New()
	m.Writes.Inc()
	m.Writes.Inc()
	m.ObserveWrite(time.Now())

	inFlight := 3
	if err := m.Gauge("kvs_backups_in_flight", func() float64 { return float64(inFlight) }); err != nil {
		t.Fatalf("Gauge: %v", err)
	}

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	if !strings.Contains(out, `kvs_operations_total{op="write"} 2`) {
		t.Errorf("Expected write counter in output:\n%s", out)
	}
	if !strings.Contains(out, "kvs_backups_in_flight 3") {
		t.Errorf("Expected gauge in output:\n%s", out)
	}
}

func TestIndependentSets(t *testing.T) {
	a, b := New(), New()
	a.Reads.Inc()
	if b.Reads.Get() != 0 {
		t.Error("Metrics of different engines must be independent")
	}

	if err := a.Gauge("kvs_sessions_active", func() float64 { return 0 }); err != nil {
		t.Fatalf("Gauge: %v", err)
	}
	if err := a.Gauge("kvs_sessions_active", func() float64 { return 0 }); err == nil {
		t.Error("Expected error when registering the same gauge twice")
	}
}
