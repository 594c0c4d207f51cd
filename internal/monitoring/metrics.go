package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus instruments. Construct one per
// process with NewMetrics and hand it to the layers that record into it; the
// /metrics endpoint serves whatever registry it was built against.
type Metrics struct {
	edgeRecordsTotal   *prometheus.CounterVec
	adapterLinesTotal  *prometheus.CounterVec
	framesDecodedTotal prometheus.Counter
	invalidPulsesTotal prometheus.Counter
	pressesTotal       prometheus.Counter
	frameReady         prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the instruments on reg. A nil reg uses
// the default registry; tests pass prometheus.NewRegistry so repeated
// construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		edgeRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyfob_edge_records_total",
				Help: "Edge records consumed, by capture source",
			},
			[]string{"source"},
		),
		adapterLinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyfob_adapter_lines_total",
				Help: "Capture adapter serial lines received, by kind",
			},
			[]string{"kind"},
		),
		framesDecodedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keyfob_frames_decoded_total",
				Help: "Complete 24-bit frames decoded",
			},
		),
		invalidPulsesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keyfob_invalid_pulses_total",
				Help: "Pulses that aborted an in-progress frame",
			},
		),
		pressesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keyfob_presses_total",
				Help: "Key presses aggregated from frame repeats",
			},
		),
		frameReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "keyfob_frame_ready",
				Help: "1 while a decoded frame is latched unread",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyfob_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyfob_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// RecordEdgeRecords counts n edge records from the named capture source.
func (m *Metrics) RecordEdgeRecords(source string, n int) {
	m.edgeRecordsTotal.WithLabelValues(source).Add(float64(n))
}

// RecordAdapterLine counts one adapter line of the given kind.
func (m *Metrics) RecordAdapterLine(kind string) {
	m.adapterLinesTotal.WithLabelValues(kind).Inc()
}

// RecordFrame counts one decoded frame.
func (m *Metrics) RecordFrame() {
	m.framesDecodedTotal.Inc()
}

// RecordInvalidPulse counts one aborted frame.
func (m *Metrics) RecordInvalidPulse() {
	m.invalidPulsesTotal.Inc()
}

// RecordPresses counts n aggregated presses.
func (m *Metrics) RecordPresses(n int) {
	m.pressesTotal.Add(float64(n))
}

// SetFrameReady reflects the latch state.
func (m *Metrics) SetFrameReady(ready bool) {
	if ready {
		m.frameReady.Set(1)
		return
	}
	m.frameReady.Set(0)
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
