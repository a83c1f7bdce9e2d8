package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Codec     CodecConfig     `yaml:"codec"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Batch     BatchConfig     `yaml:"batch"`
	Voice     VoiceConfig     `yaml:"voice"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Publish   PublishConfig   `yaml:"publish"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address      string `yaml:"address"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// CodecConfig contains SAME encoder/decoder parameters
type CodecConfig struct {
	SampleRate        int    `yaml:"sample_rate"`
	AttentionDuration int    `yaml:"attention_duration"` // seconds, default for encode requests
	MaxLocations      int    `yaml:"max_locations"`
	DefaultCallsign   string `yaml:"default_callsign"`
}

// MonitorConfig contains the live UDP monitor configuration
type MonitorConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BindAddress    string  `yaml:"bind_address"`
	UDPPort        int     `yaml:"udp_port"`
	BufferSize     int     `yaml:"buffer_size"` // socket read buffer, bytes
	SampleRate     int     `yaml:"sample_rate"`
	WindowSeconds  float64 `yaml:"window_seconds"`
	DecodeInterval float64 `yaml:"decode_interval"` // seconds
	StreamTimeout  int     `yaml:"stream_timeout"`  // seconds
	MaxStreams     int     `yaml:"max_streams"`
	Workers        int     `yaml:"workers"`
	QueueSize      int     `yaml:"queue_size"`
}

// BatchConfig contains batch runner configuration
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxAlerts     int `yaml:"max_alerts"`
	JobTTL        int `yaml:"job_ttl"` // seconds a finished job is kept
}

// VoiceConfig contains TTS client configuration
type VoiceConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	HealthEndpoint string `yaml:"health_endpoint"`
	APIKey         string `yaml:"api_key"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	DefaultStyle   string `yaml:"default_style"`
}

// TranscodeConfig contains ffmpeg transcoder configuration
type TranscodeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
	Timeout int    `yaml:"timeout"` // seconds
	TempDir string `yaml:"temp_dir"`
}

// PublishConfig contains Kafka alert event publishing configuration
type PublishConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	Source       string   `yaml:"source"`
	WriteTimeout int      `yaml:"write_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration usable without a config file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
			MaxBodyBytes: 50 << 20,
		},
		Codec: CodecConfig{
			SampleRate:        22050,
			AttentionDuration: 8,
			MaxLocations:      31,
			DefaultCallsign:   "EAS-WEB",
		},
		Monitor: MonitorConfig{
			Enabled:        false,
			BindAddress:    "0.0.0.0",
			UDPPort:        4444,
			BufferSize:     65536,
			SampleRate:     22050,
			WindowSeconds:  12,
			DecodeInterval: 1,
			StreamTimeout:  60,
			MaxStreams:     64,
			Workers:        4,
			QueueSize:      1000,
		},
		Batch: BatchConfig{
			MaxConcurrent: 4,
			MaxAlerts:     500,
			JobTTL:        3600,
		},
		Voice: VoiceConfig{
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
			DefaultStyle:  "default",
		},
		Transcode: TranscodeConfig{
			Enabled: true,
			Binary:  "ffmpeg",
			Timeout: 30,
		},
		Publish: PublishConfig{
			Topic:        "same-alerts",
			Source:       "eas-webapp",
			WriteTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch config: %w", err)
	}

	if err := c.Voice.Validate(); err != nil {
		return fmt.Errorf("voice config: %w", err)
	}

	if err := c.Transcode.Validate(); err != nil {
		return fmt.Errorf("transcode config: %w", err)
	}

	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 || s.WriteTimeout < 1 {
		return fmt.Errorf("read_timeout and write_timeout must be at least 1 second")
	}

	if s.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024, got %d", s.MaxBodyBytes)
	}

	return nil
}

// Validate validates codec configuration
func (c *CodecConfig) Validate() error {
	// Mark is 2083.3 Hz; below 8 kHz the Goertzel window gets too short
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
	}

	if c.AttentionDuration < 8 || c.AttentionDuration > 25 {
		return fmt.Errorf("attention_duration must be between 8 and 25 seconds, got %d", c.AttentionDuration)
	}

	if c.MaxLocations < 1 || c.MaxLocations > 31 {
		return fmt.Errorf("max_locations must be between 1 and 31, got %d", c.MaxLocations)
	}

	if c.DefaultCallsign == "" || len(c.DefaultCallsign) > 8 {
		return fmt.Errorf("default_callsign must be 1-8 characters, got %q", c.DefaultCallsign)
	}

	return nil
}

// Validate validates monitor configuration
func (m *MonitorConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.UDPPort < 1 || m.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", m.UDPPort)
	}

	if m.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if m.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", m.BufferSize)
	}

	if m.SampleRate < 8000 || m.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", m.SampleRate)
	}

	// One header burst with its preamble lasts about 4 seconds at 31 locations
	if m.WindowSeconds < 5 {
		return fmt.Errorf("window_seconds must be at least 5, got %f", m.WindowSeconds)
	}

	if m.DecodeInterval <= 0 || m.DecodeInterval >= m.WindowSeconds {
		return fmt.Errorf("decode_interval (%f) must be positive and below window_seconds (%f)",
			m.DecodeInterval, m.WindowSeconds)
	}

	if m.StreamTimeout < 1 {
		return fmt.Errorf("stream_timeout must be at least 1 second, got %d", m.StreamTimeout)
	}

	if m.MaxStreams < 1 {
		return fmt.Errorf("max_streams must be at least 1, got %d", m.MaxStreams)
	}

	if m.Workers < 1 || m.QueueSize < 1 {
		return fmt.Errorf("workers and queue_size must be at least 1")
	}

	return nil
}

// Validate validates batch configuration
func (b *BatchConfig) Validate() error {
	if b.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", b.MaxConcurrent)
	}

	if b.MaxAlerts < 1 {
		return fmt.Errorf("max_alerts must be at least 1, got %d", b.MaxAlerts)
	}

	if b.JobTTL < 1 {
		return fmt.Errorf("job_ttl must be at least 1 second, got %d", b.JobTTL)
	}

	return nil
}

// Validate validates voice configuration
func (v *VoiceConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when voice is enabled")
	}

	if v.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", v.Timeout)
	}

	if v.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", v.MaxRetries)
	}

	if v.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", v.MaxConcurrent)
	}

	return nil
}

// Validate validates transcoder configuration
func (t *TranscodeConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.Binary == "" {
		return fmt.Errorf("binary cannot be empty when transcoding is enabled")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates publish configuration
func (p *PublishConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if len(p.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty when publishing is enabled")
	}

	for _, b := range p.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("brokers cannot contain empty entries")
		}
	}

	if p.Topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if p.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", p.WriteTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetAttentionDuration returns the default attention signal length
func (c *CodecConfig) GetAttentionDuration() time.Duration {
	return time.Duration(c.AttentionDuration) * time.Second
}

// GetWindowDuration returns the monitor decode window as a time.Duration
func (m *MonitorConfig) GetWindowDuration() time.Duration {
	return time.Duration(m.WindowSeconds * float64(time.Second))
}

// GetDecodeInterval returns the monitor decode period as a time.Duration
func (m *MonitorConfig) GetDecodeInterval() time.Duration {
	return time.Duration(m.DecodeInterval * float64(time.Second))
}

// GetStreamTimeoutDuration returns the stream timeout as a time.Duration
func (m *MonitorConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(m.StreamTimeout) * time.Second
}

// GetJobTTL returns how long finished batch jobs are kept
func (b *BatchConfig) GetJobTTL() time.Duration {
	return time.Duration(b.JobTTL) * time.Second
}

// GetTimeoutDuration returns the TTS timeout as a time.Duration
func (v *VoiceConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(v.Timeout) * time.Second
}

// GetTimeoutDuration returns the ffmpeg timeout as a time.Duration
func (t *TranscodeConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetWriteTimeout returns the Kafka write timeout as a time.Duration
func (p *PublishConfig) GetWriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeout) * time.Second
}
