package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(rate, n int, freq, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*t))
	}
	return samples
}

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 8kHz
	sampleRate := 8000
	samples := sine(sampleRate, 800, 440, 16383)

	wavData, err := EncodeWAV(samples, sampleRate)
	require.NoError(t, err)

	// WAV header should be 44 bytes
	assert.Len(t, wavData, 44+len(samples)*2)
	assert.NoError(t, ValidateWAV(wavData))

	info, err := GetWAVInfo(wavData)
	require.NoError(t, err)
	assert.Equal(t, uint32(sampleRate), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, uint32(800), info.NumFrames)
	assert.InDelta(t, 0.1, info.Duration, 0.001)
}

func TestEncodeWAVEmpty(t *testing.T) {
	wavData, err := EncodeWAV(nil, 8000)
	require.NoError(t, err)
	assert.Len(t, wavData, 44)

	clip, err := DecodeWAV(wavData)
	require.NoError(t, err)
	assert.Empty(t, clip.Samples)
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}

	_, err := EncodeWAV(samples, 0)
	assert.Error(t, err)

	_, err = EncodeWAV(samples, -1000)
	assert.Error(t, err)
}

func TestDecodeWAV(t *testing.T) {
	original := []int16{100, -200, 300, -400, 500, math.MinInt16, math.MaxInt16}

	wavData, err := EncodeWAV(original, 8000)
	require.NoError(t, err)

	clip, err := DecodeWAV(wavData)
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Equal(t, 1, clip.Channels)
	assert.Equal(t, 16, clip.BitsPerSample)
	require.Len(t, clip.Samples, len(original))

	for i, s := range original {
		assert.InDelta(t, float64(s)/32768, clip.Samples[i], 1e-12)
	}
	assert.Equal(t, -1.0, clip.Samples[5])
}

// buildWAV assembles a WAV from raw frame bytes with an arbitrary fmt chunk
func buildWAV(format, channels uint16, rate uint32, bits uint16, extra []byte, data []byte) []byte {
	fmtChunk := make([]byte, 0, 40)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, format)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, channels)
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, rate)
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, rate*uint32(channels)*uint32(bits)/8)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, channels*bits/8)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, bits)
	fmtChunk = append(fmtChunk, extra...)

	out := []byte("RIFF\x00\x00\x00\x00WAVE")
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(fmtChunk)))
	out = append(out, fmtChunk...)
	// an unrelated chunk with odd size and its pad byte
	out = append(out, "LIST"...)
	out = binary.LittleEndian.AppendUint32(out, 3)
	out = append(out, 'a', 'b', 'c', 0)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func TestDecodeWAVDepths(t *testing.T) {
	tests := []struct {
		name     string
		bits     uint16
		frame    []byte
		expected float64
	}{
		{"8-bit unsigned silence", 8, []byte{128}, 0},
		{"8-bit unsigned min", 8, []byte{0}, -1},
		{"16-bit half", 16, []byte{0x00, 0x40}, 0.5},
		{"24-bit negative half", 24, []byte{0x00, 0x00, 0xC0}, -0.5},
		{"24-bit positive", 24, []byte{0x00, 0x00, 0x20}, 0.25},
		{"32-bit quarter", 32, []byte{0x00, 0x00, 0x00, 0x20}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, err := DecodeWAV(buildWAV(formatPCM, 1, 22050, tt.bits, nil, tt.frame))
			require.NoError(t, err)
			require.Len(t, clip.Samples, 1)
			assert.InDelta(t, tt.expected, clip.Samples[0], 1e-9)
			assert.Equal(t, int(tt.bits), clip.BitsPerSample)
		})
	}
}

func TestDecodeWAVExtensible(t *testing.T) {
	// cbSize, valid bits, channel mask, then the PCM sub-format GUID
	extra := []byte{22, 0, 16, 0, 3, 0, 0, 0,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
	data := []byte{0x00, 0x40, 0x00, 0xC0} // one stereo frame: 0.5, -0.5

	clip, err := DecodeWAV(buildWAV(formatExtensible, 2, 48000, 16, extra, data))
	require.NoError(t, err)
	assert.Equal(t, 2, clip.Channels)
	assert.Equal(t, 48000, clip.SampleRate)
	assert.Equal(t, []float64{0.5, -0.5}, clip.Samples)
	assert.Equal(t, []float64{0}, clip.Mono())
}

func TestDecodeWAVUnsupported(t *testing.T) {
	tests := []struct {
		name   string
		format uint16
		bits   uint16
	}{
		{"12-bit", formatPCM, 12},
		{"64-bit", formatPCM, 64},
		{"IEEE float", 3, 32},
		{"mu-law", 7, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(buildWAV(tt.format, 1, 8000, tt.bits, nil, make([]byte, 16)))
			assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
		})
	}
}

func TestValidateWAV(t *testing.T) {
	// Too short
	assert.Error(t, ValidateWAV([]byte{1, 2, 3}))

	// Invalid RIFF header
	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], "FAKE")
	assert.Error(t, ValidateWAV(invalidWAV))

	// Missing data chunk
	noData := []byte("RIFF\x04\x00\x00\x00WAVE")
	err := ValidateWAV(noData)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestGetWAVInfo_Duration(t *testing.T) {
	// 1 second of stereo audio at 8kHz
	data := make([]byte, 8000*2*2)
	info, err := GetWAVInfo(buildWAV(formatPCM, 2, 8000, 16, nil, data))
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), info.NumFrames)
	assert.InDelta(t, 1.0, info.Duration, 0.001)
}

func TestDecodeWAVTruncatedData(t *testing.T) {
	wavData, err := EncodeWAV([]int16{1, 2, 3, 4}, 8000)
	require.NoError(t, err)

	// drop the last sample and a half
	clip, err := DecodeWAV(wavData[:len(wavData)-3])
	require.NoError(t, err)
	assert.Len(t, clip.Samples, 2)
}
