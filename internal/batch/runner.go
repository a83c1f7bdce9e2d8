package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/same"
	"github.com/Koooper/EAS-Webapp/internal/voice"
)

var (
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("batch job not found")
	// ErrInvalidState is returned when an operation does not apply to the job's current status
	ErrInvalidState = errors.New("invalid batch job state")
	// ErrResultNotFound is returned when a job has no successful result at an index
	ErrResultNotFound = errors.New("batch result not found")
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Finished reports whether the job can no longer change
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const cleanupInterval = time.Minute

// Result describes one successfully generated alert
type Result struct {
	Index      int      `json:"index"`
	Header     string   `json:"header"`
	Originator string   `json:"originator"`
	Event      string   `json:"event"`
	Locations  []string `json:"locations"`
	Callsign   string   `json:"callsign"`
	AudioSize  int      `json:"audio_size"`
	Duration   float64  `json:"duration_seconds"`
	HasAudio   bool     `json:"has_audio"`
	HasVoice   bool     `json:"has_voice"`
}

// AlertError records why one alert of a job failed
type AlertError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// JobInfo is a point-in-time snapshot of a job
type JobInfo struct {
	ID           string       `json:"job_id"`
	Status       Status       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Progress     float64      `json:"progress"`
	CurrentIndex int          `json:"current_index"`
	TotalCount   int          `json:"total_count"`
	Results      []Result     `json:"results"`
	Errors       []AlertError `json:"errors"`
}

type job struct {
	id     string
	alerts []Alert

	mu          sync.Mutex
	status      Status
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	processed   int
	results     map[int]Result
	errors      []AlertError

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) snapshot() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := JobInfo{
		ID:           j.id,
		Status:       j.status,
		CreatedAt:    j.createdAt,
		CurrentIndex: j.processed,
		TotalCount:   len(j.alerts),
		Results:      make([]Result, 0, len(j.results)),
		Errors:       append([]AlertError{}, j.errors...),
	}
	if len(j.alerts) > 0 {
		info.Progress = float64(j.processed) / float64(len(j.alerts)) * 100
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		info.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		info.CompletedAt = &t
	}
	for _, r := range j.results {
		info.Results = append(info.Results, r)
	}
	sort.Slice(info.Results, func(a, b int) bool { return info.Results[a].Index < info.Results[b].Index })
	sort.Slice(info.Errors, func(a, b int) bool { return info.Errors[a].Index < info.Errors[b].Index })
	return info
}

// finish moves the job to a final state; it is a no-op when already finished
func (j *job) finish(status Status, at time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Finished() {
		return false
	}
	j.status = status
	j.completedAt = at
	close(j.done)
	return true
}

// Config configures a Runner and its collaborators
type Config struct {
	SampleRate    int
	MaxConcurrent int
	MaxAlerts     int
	MaxLocations  int
	JobTTL        time.Duration
	Source        string // published as the event source

	Clock       clockwork.Clock
	Synthesizer voice.Synthesizer
	Publisher   publish.Publisher
	Metrics     *metrics.Metrics
}

// Runner owns batch jobs and processes them on a bounded worker pool
type Runner struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock
	synth  voice.Synthesizer
	pub    publish.Publisher
	sem    chan struct{}

	mu   sync.RWMutex
	jobs map[string]*job

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	cleanup chan struct{}
}

// NewRunner creates a runner and starts its expiry routine
func NewRunner(logger *slog.Logger, cfg Config) *Runner {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = same.DefaultSampleRate
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxLocations <= 0 || cfg.MaxLocations > same.MaxLocations {
		cfg.MaxLocations = same.MaxLocations
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = voice.Disabled{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.NopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		clock:   cfg.Clock,
		synth:   cfg.Synthesizer,
		pub:     cfg.Publisher,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
		cleanup: make(chan struct{}),
	}

	go r.startCleanupRoutine()

	return r
}

// Create registers a pending job for alerts
func (r *Runner) Create(alerts []Alert) (JobInfo, error) {
	if len(alerts) == 0 {
		return JobInfo{}, errors.New("batch contains no alerts")
	}
	if r.cfg.MaxAlerts > 0 && len(alerts) > r.cfg.MaxAlerts {
		return JobInfo{}, fmt.Errorf("batch contains %d alerts, limit is %d", len(alerts), r.cfg.MaxAlerts)
	}

	j := &job{
		id:        uuid.NewString(),
		alerts:    append([]Alert(nil), alerts...),
		status:    StatusPending,
		createdAt: r.clock.Now(),
		results:   make(map[int]Result),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()

	r.logger.Info("Created batch job",
		slog.String("job_id", j.id),
		slog.Int("alerts", len(alerts)),
	)

	return j.snapshot(), nil
}

func (r *Runner) lookup(id string) (*job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// Get returns a snapshot of the job
func (r *Runner) Get(id string) (JobInfo, error) {
	j, err := r.lookup(id)
	if err != nil {
		return JobInfo{}, err
	}
	return j.snapshot(), nil
}

// List returns snapshots of all jobs, oldest first
func (r *Runner) List() []JobInfo {
	r.mu.RLock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	infos := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		infos = append(infos, j.snapshot())
	}
	sort.Slice(infos, func(a, b int) bool {
		if infos[a].CreatedAt.Equal(infos[b].CreatedAt) {
			return infos[a].ID < infos[b].ID
		}
		return infos[a].CreatedAt.Before(infos[b].CreatedAt)
	})
	return infos
}

// Done returns a channel closed when the job reaches a final state
func (r *Runner) Done(id string) (<-chan struct{}, error) {
	j, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return j.done, nil
}

// Start begins processing a pending job in the background
func (r *Runner) Start(id string) error {
	j, err := r.lookup(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	if j.status != StatusPending {
		status := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot start job in status %s", ErrInvalidState, status)
	}
	ctx, cancel := context.WithCancel(r.ctx)
	j.status = StatusProcessing
	j.startedAt = r.clock.Now()
	j.cancel = cancel
	j.mu.Unlock()

	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		defer cancel()
		r.process(ctx, j)
	}()

	return nil
}

// Cancel stops a pending or processing job
func (r *Runner) Cancel(id string) error {
	j, err := r.lookup(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	status := j.status
	cancel := j.cancel
	j.mu.Unlock()

	if status != StatusPending && status != StatusProcessing {
		return fmt.Errorf("%w: cannot cancel job in status %s", ErrInvalidState, status)
	}

	j.finish(StatusCancelled, r.clock.Now())
	if cancel != nil {
		cancel()
	}

	r.logger.Info("Cancelled batch job", slog.String("job_id", id))
	return nil
}

// Delete removes a finished job
func (r *Runner) Delete(id string) error {
	j, err := r.lookup(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	status := j.status
	j.mu.Unlock()

	if !status.Finished() {
		return fmt.Errorf("%w: cannot delete job in status %s", ErrInvalidState, status)
	}

	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()

	return nil
}

// Audio renders the WAV for the result at index. Audio is regenerated from
// the stored header so jobs do not hold every rendered file in memory.
func (r *Runner) Audio(ctx context.Context, id string, index int) ([]byte, error) {
	j, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	res, ok := j.results[index]
	j.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s index %d", ErrResultNotFound, id, index)
	}

	alert := j.alerts[index]
	voiceSamples, _ := r.voiceFor(ctx, alert)

	enc := same.NewEncoder(r.cfg.SampleRate)
	samples := enc.EncodeFullAlert(res.Header, attentionOf(alert), voiceSamples)
	wav, err := enc.WAV(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to export WAV: %w", err)
	}
	return wav, nil
}

// Cleanup removes finished jobs older than the configured TTL and returns
// how many were removed
func (r *Runner) Cleanup() int {
	if r.cfg.JobTTL <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.cfg.JobTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, j := range r.jobs {
		j.mu.Lock()
		expired := j.status.Finished() && j.completedAt.Before(cutoff)
		j.mu.Unlock()

		if expired {
			delete(r.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("Removed expired batch jobs", slog.Int("removed", removed))
	}
	return removed
}

// Stop cancels running jobs and waits for their workers to exit
func (r *Runner) Stop() {
	r.logger.Info("Stopping batch runner...")

	r.cancel()
	<-r.cleanup
	r.workers.Wait()

	r.logger.Info("Batch runner stopped", slog.Int("remaining_jobs", len(r.List())))
}

func (r *Runner) startCleanupRoutine() {
	defer close(r.cleanup)

	ticker := r.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.Chan():
			r.Cleanup()
		}
	}
}

func (r *Runner) process(ctx context.Context, j *job) {
	start := r.clock.Now()
	r.logger.Info("Processing batch job",
		slog.String("job_id", j.id),
		slog.Int("alerts", len(j.alerts)),
	)

	var wg sync.WaitGroup
dispatch:
	for i := range j.alerts {
		select {
		case <-ctx.Done():
			break dispatch
		case r.sem <- struct{}{}:
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() { <-r.sem }()

			if ctx.Err() != nil {
				return
			}
			res, err := r.generate(ctx, index, j.alerts[index])
			r.record(j, index, res, err)
		}(i)
	}
	wg.Wait()

	j.mu.Lock()
	status := StatusCompleted
	if len(j.errors) > 0 && len(j.results) == 0 {
		status = StatusFailed
	}
	if j.status == StatusCancelled || ctx.Err() != nil {
		status = StatusCancelled
	}
	succeeded, failed := len(j.results), len(j.errors)
	j.mu.Unlock()

	elapsed := r.clock.Since(start)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordBatchJob(string(status), elapsed.Seconds())
	}

	r.logger.Info("Batch job finished",
		slog.String("job_id", j.id),
		slog.String("status", string(status)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Duration("duration", elapsed),
	)

	j.finish(status, r.clock.Now())
}

func (r *Runner) record(j *job, index int, res Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.processed++
	outcome := "success"
	if err != nil {
		outcome = "error"
		j.errors = append(j.errors, AlertError{Index: index, Error: err.Error()})
	} else {
		j.results[index] = res
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordBatchAlert(outcome)
	}
}

func attentionOf(a Alert) time.Duration {
	if a.AttentionDuration <= 0 {
		return same.AttentionDefault
	}
	return time.Duration(a.AttentionDuration * float64(time.Second))
}

func (r *Runner) validate(a Alert) error {
	if len(a.Locations) == 0 {
		return errors.New("at least one location is required")
	}
	if len(a.Locations) > r.cfg.MaxLocations {
		return fmt.Errorf("too many locations: %d (max %d)", len(a.Locations), r.cfg.MaxLocations)
	}
	if d := attentionOf(a); d < same.AttentionMin || d > same.AttentionMax {
		return fmt.Errorf("attention_duration must be between 8 and 25 seconds, got %g", a.AttentionDuration)
	}
	return nil
}

func (r *Runner) generate(ctx context.Context, index int, a Alert) (Result, error) {
	if err := r.validate(a); err != nil {
		return Result{}, err
	}

	issued := r.clock.Now()
	msg, err := same.Create(a.Originator, a.Event, a.Locations, a.DurationMinutes, a.Callsign, issued)
	if err != nil {
		return Result{}, err
	}

	voiceSamples, hasVoice := r.voiceFor(ctx, a)

	began := r.clock.Now()
	enc := same.NewEncoder(r.cfg.SampleRate)
	samples := enc.EncodeFullAlert(msg.String(), attentionOf(a), voiceSamples)
	wav, err := enc.WAV(samples)
	if err != nil {
		return Result{}, fmt.Errorf("failed to export WAV: %w", err)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordEncode("full", r.clock.Since(began).Seconds())
	}

	r.publish(ctx, publish.NewEncodedEvent(msg, r.cfg.Source, issued))

	return Result{
		Index:      index,
		Header:     msg.String(),
		Originator: msg.Originator(),
		Event:      msg.Event(),
		Locations:  msg.Locations(),
		Callsign:   msg.Callsign(),
		AudioSize:  len(wav),
		Duration:   float64(len(samples)) / float64(r.cfg.SampleRate),
		HasAudio:   true,
		HasVoice:   hasVoice,
	}, nil
}

// voiceFor synthesizes the alert's voice text at the encoder rate. Alerts
// without voice text, or with the synthesizer unavailable, get none.
func (r *Runner) voiceFor(ctx context.Context, a Alert) ([]float64, bool) {
	if a.VoiceText == "" || !r.synth.IsAvailable(ctx) {
		return nil, false
	}

	began := r.clock.Now()
	clip, err := r.synth.Synthesize(ctx, a.VoiceText, voice.ParseStyle(a.VoiceStyle))
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordTTS(outcome, r.clock.Since(began).Seconds())
	}
	if err != nil {
		r.logger.Warn("Voice synthesis failed, continuing without voice",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return clip.MonoAt(r.cfg.SampleRate), true
}

func (r *Runner) publish(ctx context.Context, event publish.AlertEvent) {
	err := r.pub.Publish(ctx, event)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.logger.Warn("Failed to publish alert event",
			slog.String("raw", event.Raw),
			slog.String("error", err.Error()),
		)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordPublish(string(event.Kind), outcome)
	}
}
