package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for containers the decoder cannot read
// directly. Such input has to go through a Transcoder first.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	formatPCM        = 0x0001
	formatExtensible = 0xFFFE
)

// WAVHeader represents the header structure of a canonical 44-byte WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	// Calculate sizes
	numChannels := uint16(1)             // Mono
	bitsPerSample := uint16(16)          // 16-bit PCM
	dataSize := uint32(len(samples) * 2) // 2 bytes per sample
	fileSize := 36 + dataSize            // WAV header is 44 bytes, data starts at offset 44

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if len(samples) > 0 {
		if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// wavLayout is what the chunk walk finds in a RIFF/WAVE file
type wavLayout struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	blockAlign    uint16
	bitsPerSample uint16
	data          []byte
}

// readWAVLayout walks the RIFF chunk list. Unknown chunks (LIST, fact, bext...)
// are skipped; a truncated data chunk is clipped to what is present.
func readWAVLayout(data []byte) (*wavLayout, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var layout wavLayout
	haveFmt, haveData := false, false

	pos := 12
	for pos+8 <= len(data) && !(haveFmt && haveData) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("invalid WAV file: fmt chunk is %d bytes", end-body)
			}
			chunk := data[body:end]
			layout.audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			layout.channels = binary.LittleEndian.Uint16(chunk[2:4])
			layout.sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			layout.blockAlign = binary.LittleEndian.Uint16(chunk[12:14])
			layout.bitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			// WAVE_FORMAT_EXTENSIBLE carries the real format in the first two
			// bytes of the sub-format GUID
			if layout.audioFormat == formatExtensible && len(chunk) >= 26 {
				layout.audioFormat = binary.LittleEndian.Uint16(chunk[24:26])
			}
			haveFmt = true
		case "data":
			layout.data = data[body:end]
			haveData = true
		}

		// chunks are word aligned
		pos = body + size + size%2
		if pos < body {
			break
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	return &layout, nil
}

func (l *wavLayout) validate() error {
	if l.audioFormat != formatPCM {
		return fmt.Errorf("%w: audio format %d (only PCM is supported)", ErrUnsupportedFormat, l.audioFormat)
	}
	switch l.bitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, l.bitsPerSample)
	}
	if l.channels == 0 {
		return fmt.Errorf("invalid WAV file: zero channels")
	}
	if l.sampleRate == 0 {
		return fmt.Errorf("invalid sample rate: 0")
	}
	return nil
}

// DecodeWAV decodes a PCM WAV file of 8 (unsigned), 16, 24 or 32-bit depth
// into a Clip with samples normalized to [-1, 1]. Anything else fails with
// ErrUnsupportedFormat.
func DecodeWAV(data []byte) (*Clip, error) {
	layout, err := readWAVLayout(data)
	if err != nil {
		return nil, err
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}

	width := int(layout.bitsPerSample) / 8
	frameSize := width * int(layout.channels)
	frames := len(layout.data) / frameSize
	raw := layout.data[:frames*frameSize]

	samples := make([]float64, frames*int(layout.channels))
	for i := range samples {
		b := raw[i*width : (i+1)*width]
		switch width {
		case 1:
			samples[i] = (float64(b[0]) - 128) / 128
		case 2:
			samples[i] = float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		case 3:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v -= 1 << 24
			}
			samples[i] = float64(v) / (1 << 23)
		case 4:
			samples[i] = float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		}
	}

	return &Clip{
		SampleRate:    int(layout.sampleRate),
		Channels:      int(layout.channels),
		BitsPerSample: int(layout.bitsPerSample),
		Samples:       samples,
	}, nil
}

// ValidateWAV validates a WAV file format without decoding the audio data
func ValidateWAV(data []byte) error {
	layout, err := readWAVLayout(data)
	if err != nil {
		return err
	}
	return layout.validate()
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	layout, err := readWAVLayout(data)
	if err != nil {
		return nil, err
	}
	if layout.sampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	// Calculate derived values
	frameSize := uint32(layout.blockAlign)
	if frameSize == 0 {
		frameSize = uint32(layout.channels) * uint32(layout.bitsPerSample) / 8
	}
	var numFrames uint32
	if frameSize > 0 {
		numFrames = uint32(len(layout.data)) / frameSize
	}

	return &WAVInfo{
		SampleRate:    layout.sampleRate,
		Channels:      layout.channels,
		BitsPerSample: layout.bitsPerSample,
		Duration:      float64(numFrames) / float64(layout.sampleRate),
		DataSize:      uint32(len(layout.data)),
		NumFrames:     numFrames,
	}, nil
}
