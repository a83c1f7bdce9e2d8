package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/batch"
	"github.com/Koooper/EAS-Webapp/internal/config"
	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/monitor"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/same"
	"github.com/Koooper/EAS-Webapp/internal/voice"
)

const (
	serviceName    = "eas-webapp"
	serviceVersion = "1.0.0"
)

// Dependencies are the components the HTTP API serves. Monitor and UDP are
// nil when live monitoring is disabled.
type Dependencies struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // source for /metrics; the default registry when nil
	Clock       clockwork.Clock
	Synthesizer voice.Synthesizer
	Transcoder  audio.Transcoder
	Publisher   publish.Publisher
	Batch       *batch.Runner
	Monitor     *monitor.Manager
	UDP         *UDPServer
}

// HTTPServer provides the codec API plus monitoring endpoints
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config
	metrics *metrics.Metrics
	clock   clockwork.Clock

	synth      voice.Synthesizer
	transcoder audio.Transcoder
	publisher  publish.Publisher
	batch      *batch.Runner
	monitor    *monitor.Manager
	udpServer  *UDPServer
	decoder    *same.Decoder

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, deps Dependencies) *HTTPServer {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = voice.Disabled{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.NopPublisher{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	cfg := deps.Config
	h := &HTTPServer{
		logger:     logger,
		config:     cfg,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		synth:      deps.Synthesizer,
		transcoder: deps.Transcoder,
		publisher:  deps.Publisher,
		batch:      deps.Batch,
		monitor:    deps.Monitor,
		udpServer:  deps.UDP,
		decoder:    same.NewDecoder(cfg.Codec.SampleRate),
		startTime:  deps.Clock.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux, deps.Gatherer)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	route := func(pattern, endpoint string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, h.withMetrics(endpoint, handler))
	}

	// Codec
	route("POST /api/encode", "/api/encode", h.handleEncode)
	route("POST /api/encode/with-voice", "/api/encode/with-voice", h.handleEncodeWithVoice)
	route("POST /api/encode/header-only", "/api/encode/header-only", h.handleEncodeHeaderOnly)
	route("POST /api/decode", "/api/decode", h.handleDecode)
	route("POST /api/parse", "/api/parse", h.handleParse)
	route("GET /api/attention-tone", "/api/attention-tone", h.handleAttentionTone)

	// Reference tables
	route("GET /api/codes/events", "/api/codes/events", h.handleEventCodes)
	route("GET /api/codes/originators", "/api/codes/originators", h.handleOriginatorCodes)
	route("GET /api/codes/states", "/api/codes/states", h.handleStateCodes)
	route("GET /api/codes/locations/{code}", "/api/codes/locations/{code}", h.handleLocation)

	// Collaborators
	route("GET /api/voices", "/api/voices", h.handleVoices)
	route("GET /api/tts/status", "/api/tts/status", h.handleTTSStatus)
	route("POST /api/tts/synthesize", "/api/tts/synthesize", h.handleTTSSynthesize)
	route("GET /api/audio/formats", "/api/audio/formats", h.handleAudioFormats)
	route("POST /api/audio/convert", "/api/audio/convert", h.handleAudioConvert)

	// Batch jobs
	route("POST /api/batch", "/api/batch", h.handleBatchCreate)
	route("GET /api/batch", "/api/batch", h.handleBatchList)
	route("GET /api/batch/template", "/api/batch/template", h.handleBatchTemplate)
	route("GET /api/batch/{id}", "/api/batch/{id}", h.handleBatchGet)
	route("DELETE /api/batch/{id}", "/api/batch/{id}", h.handleBatchDelete)
	route("POST /api/batch/{id}/start", "/api/batch/{id}/start", h.handleBatchStart)
	route("POST /api/batch/{id}/cancel", "/api/batch/{id}/cancel", h.handleBatchCancel)
	route("GET /api/batch/{id}/results", "/api/batch/{id}/results", h.handleBatchResults)
	route("GET /api/batch/{id}/results/{index}", "/api/batch/{id}/results/{index}", h.handleBatchAudio)

	// Live monitor
	route("GET /api/monitor/streams", "/api/monitor/streams", h.handleMonitorStreams)
	route("GET /api/monitor/alerts", "/api/monitor/alerts", h.handleMonitorAlerts)

	// Operations
	route("GET /health", "/health", h.handleHealth)
	route("GET /stats", "/stats", h.handleStats)
	route("GET /config", "/config", h.handleConfig)

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	route("GET /{$}", "/", h.handleRoot)
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := h.clock.Now()

		// Capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := h.clock.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeAudio(w http.ResponseWriter, format audio.Format, filename string, data []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{
		"codec": map[string]any{
			"status":      "running",
			"sample_rate": h.config.Codec.SampleRate,
		},
		"voice": map[string]any{
			"enabled":   h.config.Voice.Enabled,
			"available": h.synth.IsAvailable(r.Context()),
		},
		"transcoder": map[string]any{
			"available": h.transcoder != nil && h.transcoder.IsAvailable(),
		},
		"publisher": map[string]any{
			"enabled": h.config.Publish.Enabled,
			"topic":   h.config.Publish.Topic,
		},
	}
	if h.batch != nil {
		components["batch"] = map[string]any{
			"status": "running",
			"jobs":   len(h.batch.List()),
		}
	}
	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["monitor"] = map[string]any{
			"status":            "running",
			"active_streams":    udpStats.ActiveStreams,
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	} else {
		components["monitor"] = map[string]any{"status": "disabled"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.clock.Now().UTC(),
		"uptime":    h.clock.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":    h.clock.Since(h.startTime).String(),
		"timestamp": h.clock.Now().UTC(),
	}

	if h.batch != nil {
		byStatus := map[batch.Status]int{}
		for _, job := range h.batch.List() {
			byStatus[job.Status]++
		}
		stats["batch"] = map[string]any{"jobs_by_status": byStatus}
	}
	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}
	if h.monitor != nil {
		stats["monitor"] = map[string]any{
			"active_streams": h.monitor.ActiveStreams(),
			"recent_alerts":  len(h.monitor.Recent()),
		}
	}
	if reporter, ok := h.synth.(interface{ GetStats() voice.ClientStats }); ok {
		stats["voice"] = reporter.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.config

	// credentials are left out
	writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{
			"address":        c.Server.Address,
			"port":           c.Server.Port,
			"read_timeout":   c.Server.ReadTimeout,
			"write_timeout":  c.Server.WriteTimeout,
			"max_body_bytes": c.Server.MaxBodyBytes,
		},
		"codec": map[string]any{
			"sample_rate":        c.Codec.SampleRate,
			"attention_duration": c.Codec.AttentionDuration,
			"max_locations":      c.Codec.MaxLocations,
			"default_callsign":   c.Codec.DefaultCallsign,
		},
		"monitor": map[string]any{
			"enabled":         c.Monitor.Enabled,
			"bind_address":    c.Monitor.BindAddress,
			"udp_port":        c.Monitor.UDPPort,
			"sample_rate":     c.Monitor.SampleRate,
			"window_seconds":  c.Monitor.WindowSeconds,
			"decode_interval": c.Monitor.DecodeInterval,
			"stream_timeout":  c.Monitor.StreamTimeout,
			"max_streams":     c.Monitor.MaxStreams,
		},
		"batch": map[string]any{
			"max_concurrent": c.Batch.MaxConcurrent,
			"max_alerts":     c.Batch.MaxAlerts,
			"job_ttl":        c.Batch.JobTTL,
		},
		"voice": map[string]any{
			"enabled":        c.Voice.Enabled,
			"endpoint":       c.Voice.Endpoint,
			"timeout":        c.Voice.Timeout,
			"max_retries":    c.Voice.MaxRetries,
			"max_concurrent": c.Voice.MaxConcurrent,
			"default_style":  c.Voice.DefaultStyle,
		},
		"transcode": map[string]any{
			"enabled": c.Transcode.Enabled,
			"binary":  c.Transcode.Binary,
			"timeout": c.Transcode.Timeout,
		},
		"publish": map[string]any{
			"enabled": c.Publish.Enabled,
			"brokers": c.Publish.Brokers,
			"topic":   c.Publish.Topic,
			"source":  c.Publish.Source,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "SAME Alert Codec Service",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"GET /":                                 "API documentation",
			"POST /api/encode":                      "Encode a full alert to audio",
			"POST /api/encode/with-voice":           "Encode a full alert with a spoken announcement",
			"POST /api/encode/header-only":          "Encode the header bursts only",
			"POST /api/decode":                      "Decode SAME messages from a WAV file",
			"POST /api/parse":                       "Parse a SAME header string",
			"GET /api/attention-tone":               "Attention signal as WAV",
			"GET /api/codes/events":                 "Event codes",
			"GET /api/codes/originators":            "Originator codes",
			"GET /api/codes/states":                 "State codes",
			"GET /api/codes/locations/{code}":       "Describe a location code",
			"GET /api/voices":                       "Voice styles",
			"GET /api/tts/status":                   "Voice synthesis availability",
			"POST /api/tts/synthesize":              "Synthesize speech",
			"GET /api/audio/formats":                "Output formats",
			"POST /api/audio/convert":               "Convert WAV audio",
			"POST /api/batch":                       "Create a batch job from JSON or CSV",
			"GET /api/batch":                        "List batch jobs",
			"GET /api/batch/template":               "Example batch file",
			"GET /api/batch/{id}":                   "Batch job status",
			"DELETE /api/batch/{id}":                "Delete a finished batch job",
			"POST /api/batch/{id}/start":            "Start a batch job",
			"POST /api/batch/{id}/cancel":           "Cancel a batch job",
			"GET /api/batch/{id}/results":           "Batch job results",
			"GET /api/batch/{id}/results/{index}":   "Audio for one batch result",
			"GET /api/monitor/streams":              "Monitored streams",
			"GET /api/monitor/alerts":               "Messages heard on monitored streams",
			"GET /health":                           "Service health check",
			"GET /stats":                            "Service statistics",
			"GET /config":                           "Service configuration",
			"GET /metrics":                          "Prometheus metrics",
		},
		"timestamp": h.clock.Now().UTC(),
	})
}
