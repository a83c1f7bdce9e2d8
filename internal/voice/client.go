package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Koooper/EAS-Webapp/internal/audio"
)

// Config contains TTS client configuration
type Config struct {
	Endpoint       string        // synthesis URL, POST
	HealthEndpoint string        // availability probe URL, GET; Endpoint when empty
	APIKey         string        // sent as a bearer token when set
	Timeout        time.Duration // per HTTP request
	MaxRetries     int
	MaxConcurrent  int
	BaseBackoff    time.Duration // first retry delay, doubled per attempt
	ProbeInterval  time.Duration // how long an availability answer is cached
}

// SynthesisRequest is the JSON body posted to the TTS endpoint
type SynthesisRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Style  Style  `json:"style"`
	Format string `json:"format"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// HTTPSynthesizer provides HTTP client functionality for a TTS endpoint
type HTTPSynthesizer struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limit
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	// Cached probe result
	probedAt  time.Time
	available bool

	mu sync.RWMutex
}

// statusError is a non-2xx answer from the endpoint
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.code, e.body)
}

// NewHTTPSynthesizer creates a new TTS HTTP client
func NewHTTPSynthesizer(config Config, logger *slog.Logger) (*HTTPSynthesizer, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.HealthEndpoint == "" {
		config.HealthEndpoint = config.Endpoint
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}

	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPSynthesizer{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
	}, nil
}

// IsAvailable probes the health endpoint. Any HTTP answer below 500 counts as
// available; the result is cached for ProbeInterval.
func (c *HTTPSynthesizer) IsAvailable(ctx context.Context) bool {
	c.mu.RLock()
	if !c.probedAt.IsZero() && time.Since(c.probedAt) < c.config.ProbeInterval {
		available := c.available
		c.mu.RUnlock()
		return available
	}
	c.mu.RUnlock()

	available := c.probe(ctx)

	c.mu.Lock()
	c.available = available
	c.probedAt = time.Now()
	c.mu.Unlock()

	return available
}

func (c *HTTPSynthesizer) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.HealthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("TTS probe failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < 500
}

// Synthesize sends text to the endpoint and decodes the WAV it answers with
func (c *HTTPSynthesizer) Synthesize(ctx context.Context, text string, style Style) (*audio.Clip, error) {
	// Acquire semaphore for concurrency limit
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	request := &SynthesisRequest{
		Text:   text,
		Voice:  style.Voice(),
		Style:  style,
		Format: string(audio.FormatWAV),
	}

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := c.config.BaseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		clip, err := c.doRequest(ctx, request)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return clip, nil
		}

		lastErr = err
		c.logger.Warn("TTS request failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, fmt.Errorf("%w: synthesis failed: %w", ErrUnavailable, lastErr)
}

// doRequest performs a single HTTP request to the TTS endpoint
func (c *HTTPSynthesizer) doRequest(ctx context.Context, request *SynthesisRequest) (*audio.Clip, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")
	httpReq.Header.Set("User-Agent", "EAS-Webapp/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	clip, err := audio.DecodeWAV(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TTS audio: %w", err)
	}
	return clip, nil
}

// isRetryableError reports whether another attempt may succeed: timeouts,
// network errors, 5xx and 429 answers.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// Statistics methods
func (c *HTTPSynthesizer) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *HTTPSynthesizer) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *HTTPSynthesizer) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *HTTPSynthesizer) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *HTTPSynthesizer) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *HTTPSynthesizer) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to finish
func (c *HTTPSynthesizer) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}
