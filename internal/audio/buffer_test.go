package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packetData builds n samples all equal to value
func packetData(n int, value int16) []byte {
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(value))
	}
	return data
}

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(12345, 8000, 0, nil)
	require.NotNil(t, buffer)

	stats := buffer.GetStats()
	assert.Equal(t, uint32(12345), stats.StreamID)
	assert.Equal(t, 0, buffer.Size())
	assert.Equal(t, 80000, buffer.maxSamples, "defaults to ten seconds")
}

func TestAddAudioData(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	buffer := NewBuffer(1, 8000, 8000, clock)
	initialTime := buffer.GetLastUpdate()

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, buffer.AddAudioData(100, packetData(160, 1000)))

	assert.Equal(t, initialTime.Add(10*time.Millisecond), buffer.GetLastUpdate())
	assert.Equal(t, 160, buffer.Size())
	assert.Equal(t, 20*time.Millisecond, buffer.Duration())

	stats := buffer.GetStats()
	assert.Equal(t, uint32(100), stats.LastSequence)
	assert.Equal(t, uint32(1), stats.TotalPackets)

	samples := buffer.Samples()
	require.Len(t, samples, 160)
	assert.InDelta(t, 1000.0/32768, samples[0], 1e-12)
}

func TestAddAudioData_OddLength(t *testing.T) {
	buffer := NewBuffer(1, 8000, 0, nil)
	assert.Error(t, buffer.AddAudioData(1, []byte{1, 2, 3}))
}

func TestSequenceOrdering(t *testing.T) {
	buffer := NewBuffer(1, 8000, 0, nil)

	// Add packets out of order: 1, 3, 2, 4
	require.NoError(t, buffer.AddAudioData(1, packetData(80, 1)))
	require.NoError(t, buffer.AddAudioData(3, packetData(80, 3)))

	// Packet 3 waits for packet 2
	assert.Equal(t, 80, buffer.Size())
	assert.Equal(t, 1, buffer.GetStats().PendingSeqs)

	require.NoError(t, buffer.AddAudioData(2, packetData(80, 2)))
	assert.Equal(t, 240, buffer.Size())

	require.NoError(t, buffer.AddAudioData(4, packetData(80, 4)))
	assert.Equal(t, 320, buffer.Size())

	samples := buffer.Samples()
	for i, want := range []int16{1, 2, 3, 4} {
		assert.InDelta(t, float64(want)/32768, samples[i*80], 1e-12, "packet %d out of place", i+1)
	}
}

func TestDuplicatePacketRejected(t *testing.T) {
	buffer := NewBuffer(1, 8000, 0, nil)

	require.NoError(t, buffer.AddAudioData(5, packetData(10, 1)))
	err := buffer.AddAudioData(5, packetData(10, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "old/duplicate")
	assert.Equal(t, 10, buffer.Size())
}

func TestPacketLossDetection(t *testing.T) {
	buffer := NewBuffer(1, 8000, 0, nil)

	require.NoError(t, buffer.AddAudioData(1, packetData(10, 1)))
	require.NoError(t, buffer.AddAudioData(3, packetData(10, 3)))
	// Beyond the gap limit: 2 is given up, 3 and 30 are appended in order
	require.NoError(t, buffer.AddAudioData(30, packetData(10, 30)))

	stats := buffer.GetStats()
	assert.Equal(t, 20, stats.BufferSize, "packets 1 and 3")
	assert.Equal(t, 1, stats.PendingSeqs, "30 still waits for 4..29")
	assert.Equal(t, uint32(1), stats.LostPackets)

	// 4..29 never arrive
	require.NoError(t, buffer.AddAudioData(60, packetData(10, 60)))
	stats = buffer.GetStats()
	assert.Equal(t, 30, stats.BufferSize)
	assert.Equal(t, uint32(30), stats.LastSequence)
	assert.Greater(t, stats.LossRate, 0.0)
}

func TestRollingLimit(t *testing.T) {
	buffer := NewBuffer(1, 8000, 100, nil)

	for seq := uint32(0); seq < 5; seq++ {
		require.NoError(t, buffer.AddAudioData(seq, packetData(40, int16(seq))))
	}

	assert.Equal(t, 100, buffer.Size())
	assert.Equal(t, uint64(100), buffer.Offset())
	assert.Equal(t, uint64(100), buffer.GetStats().SamplesDropped)

	// oldest kept sample belongs to packet 2, second half
	samples := buffer.Samples()
	assert.InDelta(t, 2.0/32768, samples[0], 1e-12)
}

func TestDiscard(t *testing.T) {
	buffer := NewBuffer(1, 8000, 0, nil)
	require.NoError(t, buffer.AddAudioData(1, packetData(50, 7)))

	buffer.Discard(20)
	assert.Equal(t, 30, buffer.Size())
	assert.Equal(t, uint64(20), buffer.Offset())

	buffer.Discard(1000)
	assert.Equal(t, 0, buffer.Size())
	assert.Equal(t, uint64(50), buffer.Offset())

	buffer.Discard(-1)
	assert.Equal(t, uint64(50), buffer.Offset())
}
