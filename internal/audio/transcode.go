package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrTranscoderUnavailable is returned when a conversion needs a tool that is
// not installed.
var ErrTranscoderUnavailable = errors.New("transcoder unavailable")

// Format identifies an output container/codec
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
)

// AllFormats lists every format a transcoder may produce
var AllFormats = []Format{FormatWAV, FormatMP3, FormatOGG, FormatFLAC}

// ParseFormat maps a name (case-insensitive, optional leading dot) to a Format
func ParseFormat(name string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "."))
	if f == "" {
		return FormatWAV, nil
	}
	for _, known := range AllFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// Transcoder converts audio between containers.
type Transcoder interface {
	// IsAvailable reports whether conversions other than WAV passthrough work.
	IsAvailable() bool
	// Formats lists the formats Convert can currently produce.
	Formats() []Format
	// Convert turns input of any format the tool understands into the
	// target format.
	Convert(ctx context.Context, input []byte, to Format) ([]byte, error)
}

// FFmpegConfig holds configuration for the ffmpeg transcoder
type FFmpegConfig struct {
	Binary  string        // name or path of the ffmpeg executable
	Timeout time.Duration // per conversion
	TempDir string        // scratch directory, os.TempDir() when empty
}

// FFmpegTranscoder shells out to ffmpeg
type FFmpegTranscoder struct {
	config FFmpegConfig
	path   string // resolved binary, empty when not found
	logger *slog.Logger
}

// NewFFmpegTranscoder probes for the ffmpeg binary once. A missing binary is
// not an error; IsAvailable reports it.
func NewFFmpegTranscoder(config FFmpegConfig, logger *slog.Logger) *FFmpegTranscoder {
	if config.Binary == "" {
		config.Binary = "ffmpeg"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	t := &FFmpegTranscoder{config: config, logger: logger}
	if path, err := exec.LookPath(config.Binary); err == nil {
		t.path = path
	} else {
		logger.Warn("ffmpeg not found, only WAV output available",
			slog.String("binary", config.Binary))
	}
	return t
}

func (t *FFmpegTranscoder) IsAvailable() bool {
	return t.path != ""
}

func (t *FFmpegTranscoder) Formats() []Format {
	if !t.IsAvailable() {
		return []Format{FormatWAV}
	}
	return append([]Format(nil), AllFormats...)
}

// Convert runs ffmpeg on temp files. WAV input converted to WAV is returned
// unchanged without invoking the tool.
func (t *FFmpegTranscoder) Convert(ctx context.Context, input []byte, to Format) ([]byte, error) {
	if to == FormatWAV && ValidateWAV(input) == nil {
		return input, nil
	}
	if !t.IsAvailable() {
		return nil, fmt.Errorf("%w: ffmpeg not installed, cannot produce %s", ErrTranscoderUnavailable, to)
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(t.config.TempDir, "same-transcode-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input")
	outPath := filepath.Join(dir, "output."+string(to))
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write transcoder input: %w", err)
	}

	args := append([]string{"-y", "-loglevel", "error", "-i", inPath}, codecArgs(to)...)
	args = append(args, outPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion to %s failed: %w: %s", to, err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoder output: %w", err)
	}

	t.logger.Debug("Transcoded audio",
		slog.String("format", string(to)),
		slog.Int("input_bytes", len(input)),
		slog.Int("output_bytes", len(out)),
		slog.Duration("elapsed", time.Since(start)))

	return out, nil
}

func codecArgs(to Format) []string {
	switch to {
	case FormatMP3:
		return []string{"-codec:a", "libmp3lame", "-q:a", "2"}
	case FormatOGG:
		return []string{"-codec:a", "libvorbis", "-q:a", "6"}
	case FormatFLAC:
		return []string{"-codec:a", "flac"}
	default:
		// decoder input: mono 16-bit PCM
		return []string{"-codec:a", "pcm_s16le", "-ac", "1"}
	}
}
