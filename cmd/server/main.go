package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/batch"
	"github.com/Koooper/EAS-Webapp/internal/config"
	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/monitor"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/server"
	"github.com/Koooper/EAS-Webapp/internal/voice"
)

const (
	serviceName    = "eas-webapp"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	flag.Parse()

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary, credentials left out
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.Int("sample_rate", cfg.Codec.SampleRate),
		slog.Int("attention_duration", cfg.Codec.AttentionDuration),
		slog.Bool("monitor_enabled", cfg.Monitor.Enabled),
		slog.Bool("voice_enabled", cfg.Voice.Enabled),
		slog.Bool("transcode_enabled", cfg.Transcode.Enabled),
		slog.Bool("publish_enabled", cfg.Publish.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	clock := clockwork.NewRealClock()
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Voice synthesis
	var synth voice.Synthesizer = voice.Disabled{}
	var ttsClient *voice.HTTPSynthesizer
	if cfg.Voice.Enabled {
		client, err := voice.NewHTTPSynthesizer(voice.Config{
			Endpoint:       cfg.Voice.Endpoint,
			HealthEndpoint: cfg.Voice.HealthEndpoint,
			APIKey:         cfg.Voice.APIKey,
			Timeout:        cfg.Voice.GetTimeoutDuration(),
			MaxRetries:     cfg.Voice.MaxRetries,
			MaxConcurrent:  cfg.Voice.MaxConcurrent,
		}, logger)
		if err != nil {
			logger.Error("Failed to create voice synthesis client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		synth, ttsClient = client, client
		logger.Info("Voice synthesis client initialized", slog.String("endpoint", cfg.Voice.Endpoint))
	}

	// Transcoding
	var transcoder audio.Transcoder
	if cfg.Transcode.Enabled {
		transcoder = audio.NewFFmpegTranscoder(audio.FFmpegConfig{
			Binary:  cfg.Transcode.Binary,
			Timeout: cfg.Transcode.GetTimeoutDuration(),
			TempDir: cfg.Transcode.TempDir,
		}, logger)
	}

	// Alert event publishing
	var publisher publish.Publisher = publish.NopPublisher{}
	if cfg.Publish.Enabled {
		publisher = publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers:      cfg.Publish.Brokers,
			Topic:        cfg.Publish.Topic,
			WriteTimeout: cfg.Publish.GetWriteTimeout(),
		}, logger)
		logger.Info("Kafka publisher initialized",
			slog.Any("brokers", cfg.Publish.Brokers),
			slog.String("topic", cfg.Publish.Topic),
		)
	}

	runner := batch.NewRunner(logger, batch.Config{
		SampleRate:    cfg.Codec.SampleRate,
		MaxConcurrent: cfg.Batch.MaxConcurrent,
		MaxAlerts:     cfg.Batch.MaxAlerts,
		MaxLocations:  cfg.Codec.MaxLocations,
		JobTTL:        cfg.Batch.GetJobTTL(),
		Source:        cfg.Publish.Source,
		Clock:         clock,
		Synthesizer:   synth,
		Publisher:     publisher,
		Metrics:       appMetrics,
	})

	// Live monitor (if enabled)
	var (
		monitorMgr *monitor.Manager
		udpServer  *server.UDPServer
	)
	if cfg.Monitor.Enabled {
		monitorMgr = monitor.NewManager(logger, monitor.Config{
			SampleRate:     cfg.Monitor.SampleRate,
			Window:         cfg.Monitor.GetWindowDuration(),
			DecodeInterval: cfg.Monitor.GetDecodeInterval(),
			StreamTimeout:  cfg.Monitor.GetStreamTimeoutDuration(),
			MaxStreams:     cfg.Monitor.MaxStreams,
			Source:         cfg.Publish.Source,
			Clock:          clock,
			Publisher:      publisher,
			Metrics:        appMetrics,
		})
		udpServer = server.NewUDPServer(&cfg.Monitor, logger, monitorMgr, appMetrics)
		logger.Info("Live monitor initialized",
			slog.Duration("window", cfg.Monitor.GetWindowDuration()),
			slog.Duration("stream_timeout", cfg.Monitor.GetStreamTimeoutDuration()),
		)
	}

	httpServer := server.NewHTTPServer(logger, server.Dependencies{
		Config:      cfg,
		Metrics:     appMetrics,
		Clock:       clock,
		Synthesizer: synth,
		Transcoder:  transcoder,
		Publisher:   publisher,
		Batch:       runner,
		Monitor:     monitorMgr,
		UDP:         udpServer,
	})

	if monitorMgr != nil {
		monitorMgr.Start()
		if err := udpServer.Start(); err != nil {
			logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
		monitorMgr.Stop()

		stats := udpServer.GetStatistics()
		logger.Info("Final monitor statistics",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("packets_processed", stats.PacketsProcessed),
			slog.Uint64("packets_dropped", stats.PacketsDropped),
			slog.Uint64("parse_errors", stats.ParseErrors),
		)
	}

	runner.Stop()

	if err := publisher.Close(); err != nil {
		logger.Error("Error closing publisher", slog.String("error", err.Error()))
	}
	if ttsClient != nil {
		ttsClient.Close()
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
