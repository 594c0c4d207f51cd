package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordEdgeRecords("serial", 3)
	m.RecordEdgeRecords("serial", 2)
	m.RecordFrame()
	m.RecordInvalidPulse()
	m.RecordPresses(4)
	m.SetFrameReady(true)
	m.RecordHTTPRequest("GET", "/api/status", 200, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.edgeRecordsTotal.WithLabelValues("serial")); got != 5 {
		t.Errorf("edge_records_total{serial} = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.framesDecodedTotal); got != 1 {
		t.Errorf("frames_decoded_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pressesTotal); got != 4 {
		t.Errorf("presses_total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.frameReady); got != 1 {
		t.Errorf("frame_ready = %v, want 1", got)
	}

	m.SetFrameReady(false)
	if got := testutil.ToFloat64(m.frameReady); got != 0 {
		t.Errorf("frame_ready after clear = %v, want 0", got)
	}

	n, err := testutil.GatherAndCount(reg, "keyfob_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("http_requests_total series = %d, want 1", n)
	}
}

func TestNewMetricsSeparateRegistries(t *testing.T) {
	// Two constructions must not collide when given their own registries.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
