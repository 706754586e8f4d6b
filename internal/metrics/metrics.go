// Package metrics exposes Prometheus metrics for the capture and query pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics contains all Prometheus metrics for the assistant. Every method is
// safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	AudioChunks   prometheus.Counter
	AudioBytes    prometheus.Counter
	CaptureErrors prometheus.Counter

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDeferred prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	TranscriptChars       prometheus.Gauge

	// Query metrics
	Queries        *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	PendingQueries prometheus.Gauge
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AudioChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_audio_chunks_total",
			Help: "Total number of audio chunks delivered by the capture engine",
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_audio_bytes_total",
			Help: "Total bytes of native PCM captured",
		}),
		CaptureErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_capture_errors_total",
			Help: "Total number of errors reported by the capture goroutine",
		}),

		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDeferred: f.NewCounter(prometheus.CounterOpts{
			Name: "huddle_transcription_deferred_total",
			Help: "Cycles whose audio was shorter than the minimum and put back",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "huddle_transcription_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		TranscriptChars: f.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_transcript_chars",
			Help: "Current length of the rolling transcript in bytes",
		}),

		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_queries_total",
			Help: "Total number of processed queries",
		}, []string{"kind", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_query_seconds",
			Help:    "Duration of chat requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		}, []string{"kind"}),
		PendingQueries: f.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_pending_queries",
			Help: "Queries waiting for the query worker",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordChunk counts one captured chunk of n bytes.
func (m *Metrics) RecordChunk(n int) {
	if m == nil {
		return
	}
	m.AudioChunks.Inc()
	m.AudioBytes.Add(float64(n))
}

// RecordCaptureError counts an error raised on the capture goroutine.
func (m *Metrics) RecordCaptureError() {
	if m == nil {
		return
	}
	m.CaptureErrors.Inc()
}

// RecordDeferred counts a short drain that was put back.
func (m *Metrics) RecordDeferred() {
	if m == nil {
		return
	}
	m.TranscriptionDeferred.Inc()
}

// RecordTranscription records one transcription call.
func (m *Metrics) RecordTranscription(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
	if err != nil {
		m.TranscriptionFailures.Inc()
	}
}

// RecordQuery records one processed query.
func (m *Metrics) RecordQuery(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind, outcome).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetPendingQueries reports the query queue depth.
func (m *Metrics) SetPendingQueries(n int) {
	if m == nil {
		return
	}
	m.PendingQueries.Set(float64(n))
}

// SetTranscriptChars reports the rolling transcript length.
func (m *Metrics) SetTranscriptChars(n int) {
	if m == nil {
		return
	}
	m.TranscriptChars.Set(float64(n))
}
