package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/protocol"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/same"
)

// ErrTooManyStreams is returned when a datagram would open a stream beyond MaxStreams
var ErrTooManyStreams = errors.New("too many monitored streams")

const (
	cleanupInterval = 30 * time.Second
	recentLimit     = 50
)

// Config configures a Manager
type Config struct {
	SampleRate     int
	Window         time.Duration // audio kept per stream and decoded each pass
	DecodeInterval time.Duration
	StreamTimeout  time.Duration
	MaxStreams     int
	Source         string

	Clock     clockwork.Clock
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
}

// Detection is one message heard on a stream
type Detection struct {
	StreamID uint32    `json:"stream_id"`
	Raw      string    `json:"raw"`
	Kind     same.Kind `json:"kind"`
	HeardAt  time.Time `json:"heard_at"`
}

// Stream is one monitored audio source
type Stream struct {
	ID           uint32
	StartTime    time.Time
	LastActivity time.Time

	buffer *audio.Buffer
	seen   map[string]time.Time // raw message -> when it was last reported
	heard  uint64

	mu sync.Mutex
}

// StreamInfo is a snapshot of a stream for the stats endpoint
type StreamInfo struct {
	ID            uint32            `json:"stream_id"`
	StartTime     time.Time         `json:"start_time"`
	LastActivity  time.Time         `json:"last_activity"`
	MessagesHeard uint64            `json:"messages_heard"`
	Buffer        audio.BufferStats `json:"buffer"`
}

// Manager owns the monitored streams and decodes them periodically
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	clock   clockwork.Clock
	decoder *same.Decoder
	pub     publish.Publisher

	mu      sync.RWMutex
	streams map[uint32]*Stream
	recent  []Detection

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager creates a stream manager. Call Start to begin the decode and
// cleanup routines.
func NewManager(logger *slog.Logger, cfg Config) *Manager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = same.DefaultSampleRate
	}
	if cfg.Window <= 0 {
		cfg.Window = 12 * time.Second
	}
	if cfg.DecodeInterval <= 0 {
		cfg.DecodeInterval = time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.NopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		clock:   cfg.Clock,
		decoder: same.NewDecoder(cfg.SampleRate),
		pub:     cfg.Publisher,
		streams: make(map[uint32]*Stream),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the decode and cleanup routines
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.wg.Add(2)
	go m.decodeRoutine()
	go m.cleanupRoutine()

	m.logger.Info("Stream monitor started",
		slog.Int("sample_rate", m.cfg.SampleRate),
		slog.Duration("window", m.cfg.Window),
		slog.Duration("decode_interval", m.cfg.DecodeInterval),
		slog.Duration("stream_timeout", m.cfg.StreamTimeout),
	)
}

// Stop halts the routines and drops every stream
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream monitor...")

	m.cancel()
	m.wg.Wait()

	m.mu.RLock()
	ids := make([]uint32, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.RemoveStream(id)
	}

	m.logger.Info("Stream monitor stopped")
}

// Feed appends a datagram's audio to its stream, creating the stream on
// first contact
func (m *Manager) Feed(d *protocol.Datagram) error {
	s, err := m.getOrCreate(d.StreamID)
	if err != nil {
		return err
	}

	if err := s.buffer.AddAudioData(d.Sequence, d.Audio); err != nil {
		return fmt.Errorf("stream %d: %w", d.StreamID, err)
	}

	s.mu.Lock()
	s.LastActivity = m.clock.Now()
	s.mu.Unlock()
	return nil
}

func (m *Manager) getOrCreate(id uint32) (*Stream, error) {
	m.mu.RLock()
	s, ok := m.streams[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[id]; ok {
		return s, nil
	}
	if m.cfg.MaxStreams > 0 && len(m.streams) >= m.cfg.MaxStreams {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyStreams, m.cfg.MaxStreams)
	}

	now := m.clock.Now()
	windowSamples := int(m.cfg.Window.Seconds() * float64(m.cfg.SampleRate))
	s = &Stream{
		ID:           id,
		StartTime:    now,
		LastActivity: now,
		buffer:       audio.NewBuffer(id, m.cfg.SampleRate, windowSamples, m.clock),
		seen:         make(map[string]time.Time),
	}
	m.streams[id] = s

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordStreamCreated()
		m.cfg.Metrics.SetActiveStreams(len(m.streams))
	}
	m.logger.Info("Created monitored stream", slog.Uint64("stream_id", uint64(id)))

	return s, nil
}

// RemoveStream drops a stream and its buffered audio
func (m *Manager) RemoveStream(id uint32) bool {
	m.mu.Lock()
	s, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
	}
	active := len(m.streams)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.mu.Lock()
	lifetime := m.clock.Since(s.StartTime)
	heard := s.heard
	s.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordStreamDestroyed(lifetime.Seconds())
		m.cfg.Metrics.SetActiveStreams(active)
	}
	m.logger.Info("Removed monitored stream",
		slog.Uint64("stream_id", uint64(id)),
		slog.Duration("duration", lifetime),
		slog.Uint64("messages_heard", heard),
	)
	return true
}

// ActiveStreams returns the number of monitored streams
func (m *Manager) ActiveStreams() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Streams returns a snapshot of every stream, ordered by ID
func (m *Manager) Streams() []StreamInfo {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(streams))
	for _, s := range streams {
		s.mu.Lock()
		info := StreamInfo{
			ID:            s.ID,
			StartTime:     s.StartTime,
			LastActivity:  s.LastActivity,
			MessagesHeard: s.heard,
		}
		s.mu.Unlock()
		info.Buffer = s.buffer.GetStats()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].ID < infos[b].ID })
	return infos
}

// Recent returns the latest detections, newest last
func (m *Manager) Recent() []Detection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Detection(nil), m.recent...)
}

// DecodeAll runs one decode pass over every stream and returns what was
// newly heard
func (m *Manager) DecodeAll(ctx context.Context) []Detection {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	var found []Detection
	for _, s := range streams {
		found = append(found, m.decodeStream(ctx, s)...)
	}
	return found
}

func (m *Manager) decodeStream(ctx context.Context, s *Stream) []Detection {
	samples := s.buffer.Samples()
	if len(samples) == 0 {
		return nil
	}

	began := m.clock.Now()
	messages := m.decoder.DecodeMessages(samples)
	now := m.clock.Now()

	kinds := make([]string, 0, len(messages))
	var fresh []same.DecodedMessage

	s.mu.Lock()
	// a burst leaves the window after Window; forget it a pass later
	ttl := m.cfg.Window + m.cfg.DecodeInterval
	for raw, at := range s.seen {
		if now.Sub(at) > ttl {
			delete(s.seen, raw)
		}
	}
	for _, dm := range messages {
		kinds = append(kinds, string(dm.Kind))
		if dm.Err != nil || !dm.Complete {
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.RecordParseFailure()
			}
			// usually a burst cut by the window edge; the next pass sees it whole
			continue
		}
		if _, dup := s.seen[dm.Raw]; dup {
			s.seen[dm.Raw] = now
			continue
		}
		s.seen[dm.Raw] = now
		s.heard++
		fresh = append(fresh, dm)
	}
	s.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordDecode(m.clock.Since(began).Seconds(), kinds, false)
	}

	detections := make([]Detection, 0, len(fresh))
	for _, dm := range fresh {
		d := Detection{StreamID: s.ID, Raw: dm.Raw, Kind: dm.Kind, HeardAt: now}
		detections = append(detections, d)

		m.logger.Info("Heard SAME message on stream",
			slog.Uint64("stream_id", uint64(s.ID)),
			slog.String("kind", string(dm.Kind)),
			slog.String("raw", dm.Raw),
		)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordMonitoredAlert(string(dm.Kind))
		}

		id := s.ID
		event := publish.NewDecodedEvent(dm, m.cfg.Source, &id, now)
		err := m.pub.Publish(ctx, event)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			m.logger.Warn("Failed to publish monitored alert",
				slog.Uint64("stream_id", uint64(s.ID)),
				slog.String("error", err.Error()),
			)
		}
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordPublish(string(event.Kind), outcome)
		}
	}

	if len(detections) > 0 {
		m.mu.Lock()
		m.recent = append(m.recent, detections...)
		if extra := len(m.recent) - recentLimit; extra > 0 {
			m.recent = append([]Detection(nil), m.recent[extra:]...)
		}
		m.mu.Unlock()
	}

	return detections
}

// CleanupIdle removes streams with no audio for longer than StreamTimeout
func (m *Manager) CleanupIdle() int {
	now := m.clock.Now()
	var expired []uint32

	m.mu.RLock()
	for id, s := range m.streams {
		s.mu.Lock()
		idle := now.Sub(s.LastActivity) > m.cfg.StreamTimeout
		s.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle streams", slog.Int("expired_count", len(expired)))
	}
	for _, id := range expired {
		m.RemoveStream(id)
	}
	return len(expired)
}

func (m *Manager) decodeRoutine() {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.cfg.DecodeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.Chan():
			m.DecodeAll(m.ctx)
		}
	}
}

func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.Chan():
			m.CleanupIdle()
		}
	}
}
