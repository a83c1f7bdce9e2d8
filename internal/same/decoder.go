package same

import (
	"fmt"
	"math"
	"strings"

	"github.com/Koooper/EAS-Webapp/internal/audio"
)

const (
	preambleWindowBytes  = 8   // bytes examined per acquisition window
	preambleMinRun       = 4   // consecutive sync bytes needed
	preambleConfidence   = 0.6 // per sync byte
	extractionConfidence = 0.5 // per data byte
)

// Kind classifies a decoded burst
type Kind string

const (
	KindHeader Kind = "header"
	KindEOM    Kind = "eom"
)

// DecodedMessage is one burst recovered from audio. Message is set for
// headers that parse; Err holds the parse failure otherwise. EOM bursts carry
// neither. Complete is false for a header whose raw text stops before the
// "-JJJHHMM-CALLSIGN-" trailer, such as a burst cut by the end of the buffer.
type DecodedMessage struct {
	Raw      string
	Kind     Kind
	Message  Message
	Err      error
	Complete bool
}

// Decoder recovers SAME bursts from audio sampled at a fixed rate.
// It holds only precomputed coefficients and is safe for concurrent use.
//
// Bit windows are SamplesPerBit long and start on a fractional bit clock, so
// long bursts stay aligned with 520.83 baud at any sample rate.
type Decoder struct {
	sampleRate    int
	bitPeriod     float64
	samplesPerBit int
	mark          goertzel
	space         goertzel
}

// NewDecoder creates a decoder for audio at sampleRate Hz. A non-positive
// rate selects DefaultSampleRate.
func NewDecoder(sampleRate int) *Decoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	spb := SamplesPerBit(sampleRate)
	return &Decoder{
		sampleRate:    sampleRate,
		bitPeriod:     BitPeriod(sampleRate),
		samplesPerBit: spb,
		mark:          newGoertzel(MarkFreq, spb, sampleRate),
		space:         newGoertzel(SpaceFreq, spb, sampleRate),
	}
}

func (d *Decoder) SampleRate() int { return d.sampleRate }

func (d *Decoder) bytePeriod() float64 { return 8 * d.bitPeriod }

// fits reports whether a byte starting at pos lies inside n samples. The last
// bit window may be cut short by up to half a bit at the end of the buffer.
func (d *Decoder) fits(pos float64, n int) bool {
	last := int(math.Round(pos+7*d.bitPeriod)) + (d.samplesPerBit+1)/2
	return pos >= 0 && last <= n
}

// decodeByte reads 8 bit windows LSB-first starting at pos, which must fit
// in samples. The final window is truncated at the end of samples. Confidence is the mean of max/(mark+space) per bit.
func (d *Decoder) decodeByte(samples []float64, pos float64) (byte, float64) {
	var value byte
	var confidence float64
	for i := 0; i < 8; i++ {
		start := int(math.Round(pos + float64(i)*d.bitPeriod))
		window := samples[start:min(start+d.samplesPerBit, len(samples))]
		m := d.mark.power(window)
		s := d.space.power(window)
		if m > s {
			value |= 1 << i
		}
		if total := m + s; total > 0 {
			confidence += max(m, s) / total
		}
	}
	return value, confidence / 8
}

// syncRun counts consecutive sync bytes starting at pos, up to the window
// size, and sums their confidence.
func (d *Decoder) syncRun(samples []float64, pos float64) (int, float64) {
	count, total := 0, 0.0
	for j := 0; j < preambleWindowBytes; j++ {
		at := pos + float64(j)*d.bytePeriod()
		if !d.fits(at, len(samples)) {
			break
		}
		value, conf := d.decodeByte(samples, at)
		if value != PreambleByte || conf <= preambleConfidence {
			break
		}
		count++
		total += conf
	}
	return count, total
}

// findPreamble slides the acquisition window from start in half-bit steps.
// On the first hit the bit alignment is refined within half a bit either
// way on whole samples, keeping the offset whose sync run is longest and
// most confident. It returns the offset just past the counted sync bytes.
func (d *Decoder) findPreamble(samples []float64, start float64) (float64, bool) {
	window := preambleWindowBytes * d.bytePeriod()
	step := float64(max(d.samplesPerBit/2, 1))

	for i := start; i+window <= float64(len(samples)); i += step {
		count, _ := d.syncRun(samples, i)
		if count < preambleMinRun {
			continue
		}

		best, bestCount, bestScore := math.Round(i), 0, 0.0
		for off := math.Ceil(max(i-step, start)); off <= i+step; off++ {
			c, score := d.syncRun(samples, off)
			if c < preambleMinRun {
				continue
			}
			// longest run first, then the most confident
			if c > bestCount || (c == bestCount && score > bestScore) {
				best, bestCount, bestScore = off, c, score
			}
		}
		return best + float64(bestCount)*d.bytePeriod(), true
	}
	return 0, false
}

// extract reads characters after an acquired preamble until confidence drops,
// a terminator byte or marker is seen, or MaxHeaderLength is reached.
func (d *Decoder) extract(samples []float64, pos float64) string {
	var b strings.Builder

	for b.Len() < MaxHeaderLength && d.fits(pos, len(samples)) {
		value, conf := d.decodeByte(samples, pos)
		if conf < extractionConfidence {
			break
		}
		if value == 0 || value == 255 {
			break
		}
		pos += d.bytePeriod()

		// leftover sync bytes and other noise
		if value < 32 || value > 126 {
			continue
		}
		b.WriteByte(value)

		text := b.String()
		if strings.Contains(text, EOMMarker) {
			break
		}
		if strings.HasPrefix(text, HeaderStart) && len(text) >= MinHeaderLength && hasHeaderTrailer(text) {
			break
		}
	}
	return b.String()
}

// hasHeaderTrailer reports whether text ends in "+TTTT-JJJHHMM-CALLSIGN-".
// Callsigns may contain '-', so every length from 1 to MaxCallsignLen is
// tried; a header whose callsign contains '-' can end early here.
func hasHeaderTrailer(text string) bool {
	end := len(text) - 1
	if end < 0 || text[end] != '-' {
		return false
	}
	for n := 1; n <= MaxCallsignLen; n++ {
		cs := end - n                  // callsign start
		plus := cs - 1 - 7 - 1 - 4 - 1 // index of '+'
		if plus < 0 {
			return false
		}
		if !allCallsignChars(text[cs:end]) || text[cs-1] != '-' {
			continue
		}
		if !allDigits(text[cs-8:cs-1]) || text[cs-9] != '-' {
			continue
		}
		if !allDigits(text[cs-13:cs-9]) || text[plus] != '+' {
			continue
		}
		return true
	}
	return false
}

func allCallsignChars(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isCallsignChar(s[i]) {
			return false
		}
	}
	return true
}

// Decode returns every header and EOM burst found in samples, in order.
// Identical consecutive bursts (the protocol repetitions) collapse into one
// entry. A buffer without any preamble yields an empty result.
func (d *Decoder) Decode(samples []float64) []string {
	var messages []string
	pos := 0.0

	for pos < float64(len(samples)) {
		start, ok := d.findPreamble(samples, pos)
		if !ok {
			break
		}

		msg := strings.TrimSpace(d.extract(samples, start))
		if msg != "" && (strings.HasPrefix(msg, HeaderStart) || strings.Contains(msg, EOMMarker)) {
			if len(messages) == 0 || messages[len(messages)-1] != msg {
				messages = append(messages, msg)
			}
		}

		pos = start + float64(len(msg)+1)*d.bytePeriod()
	}

	return messages
}

// DecodeMessages decodes samples and classifies each burst, parsing headers
// into Messages.
func (d *Decoder) DecodeMessages(samples []float64) []DecodedMessage {
	raw := d.Decode(samples)
	out := make([]DecodedMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, classify(r))
	}
	return out
}

func classify(raw string) DecodedMessage {
	if !strings.HasPrefix(raw, HeaderStart) {
		return DecodedMessage{Raw: raw, Kind: KindEOM, Complete: true}
	}
	m, err := Parse(raw)
	return DecodedMessage{
		Raw:      raw,
		Kind:     KindHeader,
		Message:  m,
		Err:      err,
		Complete: len(raw) >= MinHeaderLength && hasHeaderTrailer(raw),
	}
}

// FirstHeader returns the first complete decoded header that parses
func (d *Decoder) FirstHeader(samples []float64) (Message, bool) {
	for _, dm := range d.DecodeMessages(samples) {
		if dm.Kind == KindHeader && dm.Err == nil && dm.Complete {
			return dm.Message, true
		}
	}
	return Message{}, false
}

// DecodeClip downmixes and resamples the clip to the decoder rate, then
// decodes it.
func (d *Decoder) DecodeClip(clip *audio.Clip) []DecodedMessage {
	return d.DecodeMessages(clip.MonoAt(d.sampleRate))
}

// DecodeWAV decodes a PCM WAV container. Containers the audio package cannot
// read fail with audio.ErrUnsupportedFormat.
func (d *Decoder) DecodeWAV(data []byte) ([]DecodedMessage, error) {
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV: %w", err)
	}
	return d.DecodeClip(clip), nil
}
