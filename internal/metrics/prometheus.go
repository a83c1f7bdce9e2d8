package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the SAME codec service
type Metrics struct {
	// Codec metrics
	AlertsEncoded   *prometheus.CounterVec
	EncodeDuration  prometheus.Histogram
	DecodeRequests  prometheus.Counter
	DecodeDuration  prometheus.Histogram
	MessagesDecoded *prometheus.CounterVec
	AttentionFound  prometheus.Counter
	ParseFailures   prometheus.Counter

	// Monitor (UDP) metrics
	DatagramsReceived  prometheus.Counter
	DatagramsProcessed prometheus.Counter
	ParseErrors        prometheus.Counter
	QueueSize          prometheus.Gauge
	ActiveStreams      prometheus.Gauge
	StreamsCreated     prometheus.Counter
	StreamsDestroyed   prometheus.Counter
	StreamDuration     prometheus.Histogram
	AlertsMonitored    *prometheus.CounterVec

	// Batch metrics
	BatchJobs        *prometheus.CounterVec
	BatchAlerts      *prometheus.CounterVec
	BatchJobDuration prometheus.Histogram

	// Voice synthesis metrics
	TTSRequests *prometheus.CounterVec
	TTSDuration prometheus.Histogram

	// Publishing metrics
	EventsPublished *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default registry
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWithRegistry registers the metrics with reg. Tests use a fresh
// registry per case so registrations never collide.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		// Codec metrics
		AlertsEncoded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_alerts_encoded_total",
			Help: "Total number of SAME alerts encoded to audio",
		}, []string{"kind"}),
		EncodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "same_encode_duration_seconds",
			Help:    "Time spent synthesizing alert audio",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		DecodeRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "same_decode_requests_total",
			Help: "Total number of audio buffers submitted for decoding",
		}),
		DecodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "same_decode_duration_seconds",
			Help:    "Time spent decoding audio buffers",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		MessagesDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_messages_decoded_total",
			Help: "Total number of SAME messages recovered from audio",
		}, []string{"kind"}),
		AttentionFound: f.NewCounter(prometheus.CounterOpts{
			Name: "same_attention_signals_detected_total",
			Help: "Total number of decoded buffers containing an attention signal",
		}),
		ParseFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "same_header_parse_failures_total",
			Help: "Total number of headers that failed both strict and lenient parsing",
		}),

		// Monitor metrics
		DatagramsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "same_monitor_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		DatagramsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "same_monitor_datagrams_processed_total",
			Help: "Total number of UDP datagrams successfully processed",
		}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "same_monitor_parse_errors_total",
			Help: "Total number of datagram parsing errors",
		}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "same_monitor_queue_size",
			Help: "Current number of datagrams in processing queue",
		}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "same_monitor_active_streams",
			Help: "Current number of monitored audio streams",
		}),
		StreamsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "same_monitor_streams_created_total",
			Help: "Total number of streams created",
		}),
		StreamsDestroyed: f.NewCounter(prometheus.CounterOpts{
			Name: "same_monitor_streams_destroyed_total",
			Help: "Total number of streams destroyed",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "same_monitor_stream_duration_seconds",
			Help:    "Duration of monitored streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),
		AlertsMonitored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_monitor_alerts_total",
			Help: "Total number of alerts heard on monitored streams",
		}, []string{"kind"}),

		// Batch metrics
		BatchJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_batch_jobs_total",
			Help: "Total number of batch jobs by final state",
		}, []string{"state"}),
		BatchAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_batch_alerts_total",
			Help: "Total number of batch alerts by outcome",
		}, []string{"outcome"}),
		BatchJobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "same_batch_job_duration_seconds",
			Help:    "Duration of batch jobs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),

		// Voice synthesis metrics
		TTSRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_tts_requests_total",
			Help: "Total number of voice synthesis requests by outcome",
		}, []string{"outcome"}),
		TTSDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "same_tts_duration_seconds",
			Help:    "Duration of voice synthesis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		// Publishing metrics
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_events_published_total",
			Help: "Total number of alert events published by kind and outcome",
		}, []string{"kind", "outcome"}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "same_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "same_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordEncode records an encoded alert of the given kind
// ("full", "header", "attention")
func (m *Metrics) RecordEncode(kind string, durationSeconds float64) {
	m.AlertsEncoded.WithLabelValues(kind).Inc()
	m.EncodeDuration.Observe(durationSeconds)
}

// RecordDecode records one decoded buffer and its messages by kind
func (m *Metrics) RecordDecode(durationSeconds float64, kinds []string, attention bool) {
	m.DecodeRequests.Inc()
	m.DecodeDuration.Observe(durationSeconds)
	for _, k := range kinds {
		m.MessagesDecoded.WithLabelValues(k).Inc()
	}
	if attention {
		m.AttentionFound.Inc()
	}
}

// RecordParseFailure increments the header parse failure counter
func (m *Metrics) RecordParseFailure() {
	m.ParseFailures.Inc()
}

// RecordDatagramReceived increments the datagrams received counter
func (m *Metrics) RecordDatagramReceived() {
	m.DatagramsReceived.Inc()
}

// RecordDatagramProcessed increments the datagrams processed counter
func (m *Metrics) RecordDatagramProcessed() {
	m.DatagramsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveStreams sets the current number of active streams
func (m *Metrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	m.StreamsCreated.Inc()
}

// RecordStreamDestroyed increments the streams destroyed counter and records duration
func (m *Metrics) RecordStreamDestroyed(durationSeconds float64) {
	m.StreamsDestroyed.Inc()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordMonitoredAlert records an alert heard on a monitored stream
func (m *Metrics) RecordMonitoredAlert(kind string) {
	m.AlertsMonitored.WithLabelValues(kind).Inc()
}

// RecordBatchJob records a finished batch job
func (m *Metrics) RecordBatchJob(state string, durationSeconds float64) {
	m.BatchJobs.WithLabelValues(state).Inc()
	m.BatchJobDuration.Observe(durationSeconds)
}

// RecordBatchAlert records the outcome of one batch alert
func (m *Metrics) RecordBatchAlert(outcome string) {
	m.BatchAlerts.WithLabelValues(outcome).Inc()
}

// RecordTTS records a voice synthesis request
func (m *Metrics) RecordTTS(outcome string, durationSeconds float64) {
	m.TTSRequests.WithLabelValues(outcome).Inc()
	m.TTSDuration.Observe(durationSeconds)
}

// RecordPublish records an alert event publish attempt
func (m *Metrics) RecordPublish(kind, outcome string) {
	m.EventsPublished.WithLabelValues(kind, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
