package same

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Koooper/EAS-Webapp/internal/audio"
)

// Encoder renders SAME transmissions as AFSK audio.
//
// An Encoder carries the phase of the tone oscillator between primitives, so
// a single instance must not be shared by concurrent encodes. Use one
// Encoder per task.
type Encoder struct {
	sampleRate int
	bitPeriod  float64 // samples per bit, fractional
	phase      float64
	carry      float64 // bit clock error carried into the next bit
}

// NewEncoder creates an encoder generating audio at sampleRate Hz. A
// non-positive rate selects DefaultSampleRate.
func NewEncoder(sampleRate int) *Encoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Encoder{
		sampleRate: sampleRate,
		bitPeriod:  BitPeriod(sampleRate),
	}
}

// BitPeriod is the exact number of samples per bit at the given rate.
func BitPeriod(sampleRate int) float64 {
	return float64(sampleRate) / BaudRate
}

// SamplesPerBit is the bit period rounded to whole samples, the length of
// the decoder's tone detection window.
func SamplesPerBit(sampleRate int) int {
	return int(math.Round(BitPeriod(sampleRate)))
}

func (e *Encoder) SampleRate() int { return e.sampleRate }

// ResetPhase zeroes the oscillator phase and the bit clock. Each burst
// repetition starts with a reset, which makes repetitions sample-identical.
func (e *Encoder) ResetPhase() {
	e.phase = 0
	e.carry = 0
}

// samplesFor converts a duration to a sample count at the encoder rate
func (e *Encoder) samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(float64(e.sampleRate) * d.Seconds()))
}

// appendTone writes n samples of a continuous-phase sine and advances the
// phase by exactly n samples' worth.
func (e *Encoder) appendTone(dst []float64, freq float64, n int) []float64 {
	step := 2 * math.Pi * freq / float64(e.sampleRate)
	for i := 0; i < n; i++ {
		dst = append(dst, ToneAmplitude*math.Sin(e.phase+step*float64(i)))
	}
	e.phase = math.Mod(e.phase+step*float64(n), 2*math.Pi)
	return dst
}

// bitSamples returns the length of the next bit. Bits are 42 or 43 samples
// long at 22050 Hz so that the bit clock stays on 520.83 baud.
func (e *Encoder) bitSamples() int {
	t := e.carry + e.bitPeriod
	n := int(math.Floor(t + 0.5))
	e.carry = t - float64(n)
	return n
}

func (e *Encoder) appendByte(dst []float64, b byte) []float64 {
	for i := 0; i < 8; i++ {
		freq := SpaceFreq
		if (b>>i)&1 == 1 {
			freq = MarkFreq
		}
		dst = e.appendTone(dst, freq, e.bitSamples())
	}
	return dst
}

// byteCap estimates the samples needed for n bytes
func (e *Encoder) byteCap(n int) int {
	return int(float64(n)*8*e.bitPeriod) + n
}

func (e *Encoder) appendSilence(dst []float64, d time.Duration) []float64 {
	return append(dst, make([]float64, e.samplesFor(d))...)
}

// Silence returns d worth of zero samples
func (e *Encoder) Silence(d time.Duration) []float64 {
	return make([]float64, e.samplesFor(d))
}

// EncodeBytes renders raw bytes LSB-first, continuing from the current phase.
func (e *Encoder) EncodeBytes(data []byte) []float64 {
	out := make([]float64, 0, e.byteCap(len(data)))
	for _, b := range data {
		out = e.appendByte(out, b)
	}
	return out
}

// Preamble renders the sixteen sync bytes, continuing from the current phase.
func (e *Encoder) Preamble() []float64 {
	out := make([]float64, 0, e.byteCap(PreambleBytes))
	for i := 0; i < PreambleBytes; i++ {
		out = e.appendByte(out, PreambleByte)
	}
	return out
}

// AttentionSignal renders the dual-tone attention signal. The length is
// round(rate * d) samples; d is not range checked here.
func (e *Encoder) AttentionSignal(d time.Duration) []float64 {
	n := e.samplesFor(d)
	out := make([]float64, n)
	w1 := 2 * math.Pi * AttentionFreq1 / float64(e.sampleRate)
	w2 := 2 * math.Pi * AttentionFreq2 / float64(e.sampleRate)
	for i := range out {
		t := float64(i)
		out[i] = ToneAmplitude * (math.Sin(w1*t) + math.Sin(w2*t)) / 2
	}
	return out
}

// burst renders preamble + payload repeated reps times with BurstGap between
// repetitions.
func (e *Encoder) burst(payload string, reps int) []float64 {
	perRep := e.byteCap(PreambleBytes + len(payload))
	out := make([]float64, 0, reps*perRep+(reps-1)*e.samplesFor(BurstGap))

	for i := 0; i < reps; i++ {
		e.ResetPhase()
		for j := 0; j < PreambleBytes; j++ {
			out = e.appendByte(out, PreambleByte)
		}
		for j := 0; j < len(payload); j++ {
			out = e.appendByte(out, payload[j])
		}
		if i < reps-1 {
			out = e.appendSilence(out, BurstGap)
		}
	}
	return out
}

// EncodeHeader renders the three header bursts. Text not starting with
// "ZCZC" gets a "ZCZC-" prefix.
func (e *Encoder) EncodeHeader(header string) []float64 {
	if !strings.HasPrefix(header, HeaderStart) {
		header = HeaderStart + "-" + header
	}
	return e.burst(header, HeaderRepetitions)
}

// EncodeEOM renders the three end-of-message bursts
func (e *Encoder) EncodeEOM() []float64 {
	return e.burst(EOMMarker, EOMRepetitions)
}

// EncodeFullAlert renders a complete transmission: header bursts, one second
// of silence, the attention signal, the voice message framed by half a second
// of silence (or one second of silence without voice) and the EOM bursts.
// A non-positive attention duration selects AttentionDefault.
func (e *Encoder) EncodeFullAlert(header string, attention time.Duration, voice []float64) []float64 {
	if attention <= 0 {
		attention = AttentionDefault
	}

	out := e.EncodeHeader(header)
	out = e.appendSilence(out, time.Second)
	out = append(out, e.AttentionSignal(attention)...)

	if len(voice) > 0 {
		out = e.appendSilence(out, 500*time.Millisecond)
		out = append(out, voice...)
		out = e.appendSilence(out, 500*time.Millisecond)
	} else {
		out = e.appendSilence(out, time.Second)
	}

	return append(out, e.EncodeEOM()...)
}

// EncodeMessage is EncodeFullAlert for a validated Message
func (e *Encoder) EncodeMessage(m Message, attention time.Duration, voice []float64) []float64 {
	return e.EncodeFullAlert(m.String(), attention, voice)
}

// WAV exports samples as mono 16-bit WAV at the encoder rate
func (e *Encoder) WAV(samples []float64) ([]byte, error) {
	data, err := audio.EncodeWAV(audio.FloatToPCM16(samples), e.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}
	return data, nil
}

// WriteWAV writes the WAV export of samples to w
func (e *Encoder) WriteWAV(w io.Writer, samples []float64) error {
	data, err := e.WAV(samples)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write WAV: %w", err)
	}
	return nil
}
