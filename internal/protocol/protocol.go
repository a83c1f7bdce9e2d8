package protocol

import (
	"encoding/binary"
	"fmt"
)

// Datagram layout constants
const (
	// HeaderSize is StreamID (4) + Sequence (4)
	HeaderSize = 8

	// BytesPerSample for mono PCM-16
	BytesPerSample = 2

	// MaxDatagramSize is the largest UDP payload we accept
	MaxDatagramSize = 65507
)

// Header represents the 8-byte monitor datagram header
// Layout: [StreamID:4][Sequence:4], both big-endian
type Header struct {
	StreamID uint32 // Source identifier, one per receiver/feed
	Sequence uint32 // Datagram sequence number within the stream
}

// Datagram represents a fully parsed monitor datagram
// Layout: [Header:8][PCM16 LE mono samples...]
type Datagram struct {
	Header
	Audio []byte // Little-endian PCM-16 payload
}

// ParseHeader parses the 8-byte datagram header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		StreamID: binary.BigEndian.Uint32(data[0:4]),
		Sequence: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// ParseDatagram parses a complete datagram (header + PCM payload)
func ParseDatagram(data []byte) (*Datagram, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if err := ValidatePayload(data[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	// Copy audio data, the receive buffer is reused
	audio := make([]byte, len(data)-HeaderSize)
	copy(audio, data[HeaderSize:])

	return &Datagram{Header: *header, Audio: audio}, nil
}

// ValidatePayload checks the PCM payload of a datagram
func ValidatePayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty audio payload")
	}

	if len(payload)%BytesPerSample != 0 {
		return fmt.Errorf("audio payload length must be even (got %d bytes)", len(payload))
	}

	if len(payload)+HeaderSize > MaxDatagramSize {
		return fmt.Errorf("datagram too large: %d bytes (maximum %d)", len(payload)+HeaderSize, MaxDatagramSize)
	}

	return nil
}

// Encode serializes the datagram back to wire format
func (d *Datagram) Encode() []byte {
	out := make([]byte, HeaderSize+len(d.Audio))
	binary.BigEndian.PutUint32(out[0:4], d.StreamID)
	binary.BigEndian.PutUint32(out[4:8], d.Sequence)
	copy(out[HeaderSize:], d.Audio)
	return out
}

// NumSamples returns the number of PCM samples carried
func (d *Datagram) NumSamples() int {
	return len(d.Audio) / BytesPerSample
}

// Samples decodes the little-endian PCM payload
func (d *Datagram) Samples() []int16 {
	samples := make([]int16, d.NumSamples())
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(d.Audio[i*2:]))
	}
	return samples
}

// Packetize splits PCM samples into datagrams of at most samplesPerDatagram
// samples each, numbering them from firstSeq.
func Packetize(streamID, firstSeq uint32, samples []int16, samplesPerDatagram int) []*Datagram {
	if samplesPerDatagram <= 0 {
		samplesPerDatagram = 160
	}

	out := make([]*Datagram, 0, (len(samples)+samplesPerDatagram-1)/samplesPerDatagram)
	seq := firstSeq
	for start := 0; start < len(samples); start += samplesPerDatagram {
		end := min(start+samplesPerDatagram, len(samples))
		audio := make([]byte, (end-start)*BytesPerSample)
		for i, s := range samples[start:end] {
			binary.LittleEndian.PutUint16(audio[i*2:], uint16(s))
		}
		out = append(out, &Datagram{
			Header: Header{StreamID: streamID, Sequence: seq},
			Audio:  audio,
		})
		seq++
	}
	return out
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Header{StreamID:%d, Sequence:%d}", h.StreamID, h.Sequence)
}

// String returns a human-readable representation of the datagram
func (d *Datagram) String() string {
	return fmt.Sprintf("Datagram{StreamID:%d, Sequence:%d, Samples:%d}", d.StreamID, d.Sequence, d.NumSamples())
}
