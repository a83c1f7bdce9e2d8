package same

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koooper/EAS-Webapp/internal/audio"
)

func TestDecoder_EmptyInput(t *testing.T) {
	dec := NewDecoder(DefaultSampleRate)

	for _, n := range []int{0, 1, 1000, 5 * DefaultSampleRate} {
		assert.Empty(t, dec.Decode(make([]float64, n)))
	}
}

func TestDecoder_EOM(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	messages := dec.Decode(enc.EncodeEOM())
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], EOMMarker)
}

func TestDecoder_Header(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	messages := dec.Decode(enc.EncodeHeader(testHeader))
	require.NotEmpty(t, messages)
	assert.True(t, strings.HasPrefix(messages[0], "ZCZC-WXR-TOR-029095"))
	assert.Equal(t, testHeader, messages[0])
	// three repetitions collapse into one entry
	assert.Len(t, messages, 1)
}

func TestDecoder_FullAlert(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	m, err := Create("CIV", "EVA", []string{"029095", "129097", "000000"}, 90, "WXYZ/AM", time.Date(2024, 7, 4, 18, 5, 0, 0, time.UTC))
	require.NoError(t, err)

	voice := make([]float64, DefaultSampleRate)
	for i := range voice {
		voice[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/DefaultSampleRate)
	}

	decoded := dec.DecodeMessages(enc.EncodeMessage(m, 8*time.Second, voice))
	require.Len(t, decoded, 2)

	assert.Equal(t, KindHeader, decoded[0].Kind)
	require.NoError(t, decoded[0].Err)
	assert.Equal(t, m, decoded[0].Message)

	assert.Equal(t, KindEOM, decoded[1].Kind)
	assert.Equal(t, EOMMarker, decoded[1].Raw)

	first, ok := dec.FirstHeader(enc.EncodeMessage(m, 0, nil))
	require.True(t, ok)
	assert.Equal(t, m, first)
}

func TestDecoder_Misaligned(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	for _, lead := range []int{1, 7, 17, 21, 33, 1000} {
		samples := append(make([]float64, lead), enc.EncodeHeader(testHeader)...)
		messages := dec.Decode(samples)
		require.NotEmpty(t, messages, "lead %d", lead)
		assert.Equal(t, testHeader, messages[0], "lead %d", lead)
	}
}

func TestDecoder_Noise(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)
	rng := rand.New(rand.NewSource(11))

	samples := enc.EncodeHeader(testHeader)
	for i := range samples {
		samples[i] = 0.7*samples[i] + 0.1*(rng.Float64()*2-1)
	}

	messages := dec.Decode(samples)
	require.NotEmpty(t, messages)
	assert.Equal(t, testHeader, messages[0])
}

func TestDecoder_LengthCap(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	long := "ZCZC-" + strings.Repeat("A", 300)
	messages := dec.Decode(enc.EncodeHeader(long))
	require.Len(t, messages, 1)
	assert.Len(t, messages[0], MaxHeaderLength)
}

func TestDecoder_Dedup(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	// header, EOM, header again: only consecutive duplicates collapse
	var samples []float64
	samples = append(samples, enc.EncodeHeader(testHeader)...)
	samples = append(samples, enc.Silence(time.Second)...)
	samples = append(samples, enc.EncodeEOM()...)
	samples = append(samples, enc.Silence(time.Second)...)
	samples = append(samples, enc.EncodeHeader(testHeader)...)

	assert.Equal(t, []string{testHeader, EOMMarker, testHeader}, dec.Decode(samples))
}

func TestDecoder_BurstEndsAtBufferEnd(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	// the EOM ahead of the header leaves the scan on a fractional offset
	for _, gap := range []time.Duration{time.Second, 1234 * time.Millisecond, 2001 * time.Millisecond} {
		var samples []float64
		samples = append(samples, enc.EncodeEOM()...)
		samples = append(samples, enc.Silence(gap)...)
		samples = append(samples, enc.EncodeHeader(testHeader)...)

		assert.Equal(t, []string{EOMMarker, testHeader}, dec.Decode(samples), "gap %v", gap)
	}
}

// singleBurst renders one preamble and payload without repetitions
func singleBurst(payload string) []float64 {
	enc := NewEncoder(DefaultSampleRate)
	return append(enc.Preamble(), enc.EncodeBytes([]byte(payload))...)
}

func TestDecoder_TruncatedHeaderIncomplete(t *testing.T) {
	dec := NewDecoder(DefaultSampleRate)
	burst := singleBurst(testHeader)
	bytePeriod := 8 * BitPeriod(DefaultSampleRate)

	full := dec.DecodeMessages(burst)
	require.Len(t, full, 1)
	assert.True(t, full[0].Complete)

	for _, lost := range []int{1, 2, 3, 5} {
		cut := burst[:len(burst)-int(math.Ceil(float64(lost)*bytePeriod))-2]

		decoded := dec.DecodeMessages(cut)
		require.Len(t, decoded, 1, "%d bytes lost", lost)
		assert.Equal(t, testHeader[:len(testHeader)-lost], decoded[0].Raw)
		assert.Equal(t, KindHeader, decoded[0].Kind)
		// parsing is lenient, so only the trailer check catches the cut
		assert.NoError(t, decoded[0].Err)
		assert.False(t, decoded[0].Complete, "%d bytes lost", lost)
	}
}

func TestDecoder_ShortestHeader(t *testing.T) {
	enc := NewEncoder(DefaultSampleRate)
	dec := NewDecoder(DefaultSampleRate)

	// a one character callsign gives exactly MinHeaderLength
	header := "ZCZC-WXR-TOR-029095+0030-1051234-K-"
	require.Len(t, header, MinHeaderLength)

	decoded := dec.DecodeMessages(enc.EncodeHeader(header))
	require.Len(t, decoded, 1)
	assert.Equal(t, header, decoded[0].Raw)
	assert.True(t, decoded[0].Complete)
	require.NoError(t, decoded[0].Err)
	assert.Equal(t, "K", decoded[0].Message.Callsign())
}

func TestDecoder_EOMComplete(t *testing.T) {
	decoded := NewDecoder(DefaultSampleRate).DecodeMessages(NewEncoder(DefaultSampleRate).EncodeEOM())
	require.Len(t, decoded, 1)
	assert.Equal(t, KindEOM, decoded[0].Kind)
	assert.True(t, decoded[0].Complete)
}

func TestHasHeaderTrailer(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"ZCZC-WXR-TOR-029095+0030-1051234-KWNS/NWS-", true},
		{"ZCZC-WXR-TOR-029095+0030-1051234-K-", true},
		{"ZCZC-WXR-TOR-029095+0030-1051234-KWNS/NWS", false},
		{"ZCZC-WXR-TOR-029095+0030-1051234-", false},
		{"ZCZC-WXR-TOR-029095+0030-1051234-KWNS/NWS1-", false},
		{"ZCZC-WXR-TOR-029095+003-1051234-KWNS-", false},
		{"ZCZC-WXR-TOR-029095-0030-1051234-KWNS-", false},
		{"+0030-1051234-AB-", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, hasHeaderTrailer(tt.text))
		})
	}
}

// makeWAV builds a PCM WAV with every channel carrying the same signal
func makeWAV(samples []float64, rate, channels, bits int) []byte {
	width := bits / 8
	data := make([]byte, 0, len(samples)*channels*width)
	for _, s := range samples {
		for c := 0; c < channels; c++ {
			switch bits {
			case 8:
				data = append(data, byte(int(math.Round(s*127))+128))
			case 16:
				data = binary.LittleEndian.AppendUint16(data, uint16(int16(s*32767)))
			case 24:
				v := int32(s * 8388607)
				data = append(data, byte(v), byte(v>>8), byte(v>>16))
			case 32:
				data = binary.LittleEndian.AppendUint32(data, uint32(int32(s*2147483647)))
			default:
				data = append(data, make([]byte, width)...)
			}
		}
	}

	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+len(data)))
	header = append(header, "WAVEfmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1)
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(rate))
	header = binary.LittleEndian.AppendUint32(header, uint32(rate*channels*width))
	header = binary.LittleEndian.AppendUint16(header, uint16(channels*width))
	header = binary.LittleEndian.AppendUint16(header, uint16(bits))
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(data)))
	return append(header, data...)
}

func TestDecoder_DecodeWAV(t *testing.T) {
	dec := NewDecoder(DefaultSampleRate)

	tests := []struct {
		name     string
		rate     int
		channels int
		bits     int
	}{
		{"8-bit unsigned", 22050, 1, 8},
		{"16-bit", 22050, 1, 16},
		{"24-bit", 22050, 1, 24},
		{"32-bit", 22050, 1, 32},
		{"stereo", 22050, 2, 16},
		{"44.1 kHz", 44100, 1, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := NewEncoder(tt.rate).EncodeHeader(testHeader)
			decoded, err := dec.DecodeWAV(makeWAV(samples, tt.rate, tt.channels, tt.bits))
			require.NoError(t, err)
			require.NotEmpty(t, decoded)
			assert.Equal(t, testHeader, decoded[0].Raw)
		})
	}
}

func TestDecoder_DecodeWAVUnsupported(t *testing.T) {
	dec := NewDecoder(DefaultSampleRate)

	_, err := dec.DecodeWAV(makeWAV(make([]float64, 100), 22050, 1, 12))
	assert.True(t, errors.Is(err, audio.ErrUnsupportedFormat))

	_, err = dec.DecodeWAV([]byte("not a wav file at all, definitely not"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, audio.ErrUnsupportedFormat))
}
