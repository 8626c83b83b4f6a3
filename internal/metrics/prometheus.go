// ABOUTME: Prometheus metrics for the audio output server
// ABOUTME: Session lifecycle, negotiation outcomes and streamed audio totals
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Negotiation results
const (
	ResultSelected    = "selected"
	ResultUnsupported = "unsupported"
	ResultError       = "error"
)

// Totals are cumulative counters over every session, live and closed
type Totals struct {
	PDUsSent      uint64
	BytesSent     uint64
	WavesSent     uint64
	DroppedFrames uint64
}

// TotalsFunc reports Totals at scrape time
type TotalsFunc func() Totals

// Metrics contains all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Negotiation and confirmation metrics
	Negotiations  *prometheus.CounterVec
	Confirmations prometheus.Counter

	// Stream metrics
	ChunksStreamed prometheus.Counter
	SendErrors     prometheus.Counter
	ChunkDuration  prometheus.Histogram
}

// NewMetrics creates the metrics on a private registry. totals feeds the
// PDU, byte, wave and dropped frame counters.
func NewMetrics(totals TotalsFunc) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rdpsnd_active_sessions",
			Help: "Current number of connected audio sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rdpsnd_sessions_created_total",
			Help: "Total number of audio sessions started",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rdpsnd_sessions_closed_total",
			Help: "Total number of audio sessions ended",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rdpsnd_session_duration_seconds",
			Help:    "Duration of audio sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		Negotiations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rdpsnd_negotiations_total",
			Help: "Client format negotiations by result and selected format tag",
		}, []string{"result", "tag"}),
		Confirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "rdpsnd_wave_confirmations_total",
			Help: "Total number of WAVECONFIRM PDUs received",
		}),

		ChunksStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rdpsnd_source_chunks_total",
			Help: "Total number of source chunks handed to sessions",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rdpsnd_send_errors_total",
			Help: "Total number of failed SendSamples calls",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rdpsnd_chunk_processing_seconds",
			Help:    "Time spent reading, encoding and sending one source chunk",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),
	}

	if totals != nil {
		counter := func(name, help string, value func(Totals) uint64) {
			factory.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
				return float64(value(totals()))
			})
		}
		counter("rdpsnd_pdus_sent_total", "Total number of PDUs written to clients",
			func(t Totals) uint64 { return t.PDUsSent })
		counter("rdpsnd_bytes_sent_total", "Total number of bytes written to clients",
			func(t Totals) uint64 { return t.BytesSent })
		counter("rdpsnd_waves_sent_total", "Total number of WAVE and WAVE2 PDUs sent",
			func(t Totals) uint64 { return t.WavesSent })
		counter("rdpsnd_dropped_frames_total", "Total number of source frames dropped before negotiation",
			func(t Totals) uint64 { return t.DroppedFrames })
	}

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry holding every metric
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSessionStarted counts a new session
func (m *Metrics) RecordSessionStarted() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded counts a finished session and its lifetime
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordNegotiation counts a negotiation outcome
func (m *Metrics) RecordNegotiation(result, tag string) {
	m.Negotiations.WithLabelValues(result, tag).Inc()
}

// RecordConfirmation counts a client block confirmation
func (m *Metrics) RecordConfirmation() {
	m.Confirmations.Inc()
}

// RecordChunk records one streamed source chunk
func (m *Metrics) RecordChunk(durationSeconds float64, sendErrors int) {
	m.ChunksStreamed.Inc()
	m.ChunkDuration.Observe(durationSeconds)
	if sendErrors > 0 {
		m.SendErrors.Add(float64(sendErrors))
	}
}
