// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"wakeword/internal/capture"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the keyword-spotting front end.
type Metrics struct {
	// Capture metrics
	CapturesStarted   prometheus.Counter
	CapturesCompleted prometheus.Counter
	ChunksCompleted   prometheus.Counter
	TransferErrors    prometheus.Counter
	CapturedSamples   prometheus.Histogram
	CaptureDuration   prometheus.Histogram
	EventsDropped     prometheus.Gauge

	// Feature extraction metrics
	FramesExtracted    prometheus.Counter
	ExtractionDuration prometheus.Histogram

	// Inference metrics
	InferenceRequests prometheus.Counter
	InferenceFailures prometheus.Counter
	InferenceDuration prometheus.Histogram

	// Command metrics
	Commands *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	lastStart time.Time
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Capture metrics
		CapturesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_captures_started_total",
			Help: "Total number of capture sessions started",
		}),
		CapturesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_captures_completed_total",
			Help: "Total number of capture sessions completed",
		}),
		ChunksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_chunks_completed_total",
			Help: "Total number of transfer completions copied into the waveform",
		}),
		TransferErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_transfer_errors_total",
			Help: "Total number of failed transfer requests",
		}),
		CapturedSamples: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_captured_samples",
			Help:    "Samples captured per completed session",
			Buckets: prometheus.ExponentialBuckets(512, 2, 8), // 512 to 64k samples
		}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_capture_duration_seconds",
			Help:    "Wall time from capture start to completion",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		EventsDropped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kws_capture_events_dropped",
			Help: "Capture events discarded because the event channel was full",
		}),

		// Feature extraction metrics
		FramesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_frames_extracted_total",
			Help: "Total number of log-mel frames computed",
		}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_extraction_duration_seconds",
			Help:    "Time spent extracting features over one waveform",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),

		// Inference metrics
		InferenceRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_inference_requests_total",
			Help: "Total number of inference runs",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kws_inference_failures_total",
			Help: "Total number of failed inference runs",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_inference_duration_seconds",
			Help:    "Duration of inference runs",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~800ms
		}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kws_commands_total",
			Help: "Total number of dispatched commands",
		}, []string{"command"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kws_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kws_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// HandleEvent implements capture.EventSink.
func (m *Metrics) HandleEvent(ev capture.Event) {
	switch ev.Kind {
	case capture.CaptureStarted:
		m.CapturesStarted.Inc()
		m.lastStart = ev.At
	case capture.ChunkCompleted:
		m.ChunksCompleted.Inc()
	case capture.CaptureComplete:
		m.CapturesCompleted.Inc()
		m.CapturedSamples.Observe(float64(ev.Captured))
		if !m.lastStart.IsZero() && !ev.At.Before(m.lastStart) {
			m.CaptureDuration.Observe(ev.At.Sub(m.lastStart).Seconds())
		}
	case capture.TransferError:
		m.TransferErrors.Inc()
	}
}

// SetEventsDropped publishes the controller's dropped-event count.
func (m *Metrics) SetEventsDropped(n uint64) {
	m.EventsDropped.Set(float64(n))
}

// RecordExtraction records one extraction pass.
func (m *Metrics) RecordExtraction(frames int, duration time.Duration) {
	m.FramesExtracted.Add(float64(frames))
	m.ExtractionDuration.Observe(duration.Seconds())
}

// RecordInference records one inference run.
func (m *Metrics) RecordInference(duration time.Duration, err error) {
	m.InferenceRequests.Inc()
	if err != nil {
		m.InferenceFailures.Inc()
	}
	m.InferenceDuration.Observe(duration.Seconds())
}

// RecordCommand counts a dispatched command.
func (m *Metrics) RecordCommand(name string) {
	m.Commands.WithLabelValues(name).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
