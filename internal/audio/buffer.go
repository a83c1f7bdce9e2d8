package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Buffer is a rolling PCM-16 buffer for one monitored stream. Datagrams are
// reordered by sequence number; gaps longer than maxGap are given up on and
// counted as lost. The buffer keeps at most maxSamples, dropping the oldest.
type Buffer struct {
	streamID   uint32
	sampleRate int
	maxSamples int
	clock      clockwork.Clock

	// Audio data storage
	rawAudioData []byte // Little-endian PCM-16

	// Sequence tracking
	lastSeq      uint32            // Last appended sequence number
	expectedSeq  uint32            // Next expected sequence number
	rawSeqBuffer map[uint32][]byte // Early datagrams waiting for their turn

	// Packet loss tracking
	lostPackets map[uint32]bool // Recently lost sequence numbers
	maxGap      uint32          // Maximum sequence gap to wait for

	// Timing and metadata
	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32
	droppedBytes uint64 // Audio evicted by the rolling limit or Discard

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	StreamID       uint32  `json:"stream_id"`
	TotalPackets   uint32  `json:"total_packets"`
	LostPackets    uint32  `json:"lost_packets"`
	LossRate       float64 `json:"loss_rate"`
	BufferSize     int     `json:"buffer_size_samples"`
	PendingSeqs    int     `json:"pending_sequences"`
	LastSequence   uint32  `json:"last_sequence"`
	SamplesDropped uint64  `json:"samples_dropped"`
}

// NewBuffer creates a rolling buffer holding up to maxSamples samples
func NewBuffer(streamID uint32, sampleRate, maxSamples int, clock clockwork.Clock) *Buffer {
	if maxSamples <= 0 {
		maxSamples = sampleRate * 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Buffer{
		streamID:     streamID,
		sampleRate:   sampleRate,
		maxSamples:   maxSamples,
		clock:        clock,
		rawAudioData: make([]byte, 0, maxSamples*2),
		rawSeqBuffer: make(map[uint32][]byte),
		lostPackets:  make(map[uint32]bool),
		lastUpdate:   clock.Now(),
		maxGap:       20, // Wait for up to 20 missing datagrams
	}
}

// AddAudioData adds PCM audio data to the buffer with sequence handling
func (b *Buffer) AddAudioData(sequence uint32, rawData []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(rawData)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(rawData))
	}

	b.lastUpdate = b.clock.Now()
	b.totalPackets++

	if err := b.addRawBytesWithSequence(sequence, rawData); err != nil {
		return err
	}

	b.enforceLimit()
	return nil
}

// markMissingAsLost marks a range of sequence numbers as lost
func (b *Buffer) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := b.rawSeqBuffer[seq]; !buffered {
			b.lostPackets[seq] = true
			b.lostCount++
		}
	}
}

// cleanupOldLostPackets forgets lost sequence numbers more than 100 behind
func (b *Buffer) cleanupOldLostPackets() {
	for seq := range b.lostPackets {
		if b.lastSeq-seq > 100 {
			delete(b.lostPackets, seq)
		}
	}
}

// addRawBytesWithSequence handles sequence-ordered addition of raw bytes
func (b *Buffer) addRawBytesWithSequence(sequence uint32, rawData []byte) error {
	// Initialize expected sequence on first packet
	if b.totalPackets == 1 {
		b.expectedSeq = sequence
		b.lastSeq = sequence - 1
	}

	switch {
	case sequence == b.expectedSeq:
		b.rawAudioData = append(b.rawAudioData, rawData...)
		b.lastSeq = sequence
		b.expectedSeq = sequence + 1
		b.processBufferedRawPackets()

	case sequence > b.expectedSeq:
		// Future packet - buffer it
		b.rawSeqBuffer[sequence] = append([]byte(nil), rawData...)

		// Give up on the missing ones if the gap is too large, resuming at
		// the earliest buffered packet
		if sequence-b.expectedSeq > b.maxGap {
			next := sequence
			for seq := range b.rawSeqBuffer {
				if seq < next {
					next = seq
				}
			}
			b.markMissingAsLost(b.expectedSeq, next-1)
			b.expectedSeq = next
			b.processBufferedRawPackets()
		}

	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, b.lastSeq)
	}

	b.cleanupOldLostPackets()
	return nil
}

// processBufferedRawPackets appends any consecutive buffered packets
func (b *Buffer) processBufferedRawPackets() {
	for {
		rawData, exists := b.rawSeqBuffer[b.expectedSeq]
		if !exists {
			break
		}

		b.rawAudioData = append(b.rawAudioData, rawData...)
		delete(b.rawSeqBuffer, b.expectedSeq)
		delete(b.lostPackets, b.expectedSeq)

		b.lastSeq = b.expectedSeq
		b.expectedSeq++
	}
}

// enforceLimit drops the oldest audio beyond maxSamples
func (b *Buffer) enforceLimit() {
	maxBytes := b.maxSamples * 2
	if len(b.rawAudioData) <= maxBytes {
		return
	}
	b.dropLocked(len(b.rawAudioData) - maxBytes)
}

func (b *Buffer) dropLocked(n int) {
	copy(b.rawAudioData, b.rawAudioData[n:])
	b.rawAudioData = b.rawAudioData[:len(b.rawAudioData)-n]
	b.droppedBytes += uint64(n)
}

// Samples returns the buffered audio normalized to [-1, 1]
func (b *Buffer) Samples() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float64, len(b.rawAudioData)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(b.rawAudioData[i*2:]))) / 32768
	}
	return out
}

// Discard removes the oldest n samples, typically audio already decoded
func (b *Buffer) Discard(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 {
		return
	}
	bytes := min(n*2, len(b.rawAudioData))
	b.dropLocked(bytes)
}

// Offset returns the absolute index of the first buffered sample since the
// stream started.
func (b *Buffer) Offset() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.droppedBytes / 2
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets) * 100
	}

	return BufferStats{
		StreamID:       b.streamID,
		TotalPackets:   b.totalPackets,
		LostPackets:    b.lostCount,
		LossRate:       lossRate,
		BufferSize:     len(b.rawAudioData) / 2,
		PendingSeqs:    len(b.rawSeqBuffer),
		LastSequence:   b.lastSeq,
		SamplesDropped: b.droppedBytes / 2,
	}
}

// GetLastUpdate returns the time of the last buffer update
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// Size returns the current number of samples in the buffer
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rawAudioData) / 2
}

// Duration returns the playing time of the buffered audio
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Size()) / float64(b.sampleRate) * float64(time.Second))
}
