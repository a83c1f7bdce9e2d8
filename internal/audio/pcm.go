package audio

import (
	"math"
	"time"
)

// Clip is decoded PCM audio. Samples are interleaved and normalized to
// [-1, 1]; BitsPerSample records the depth of the source container.
type Clip struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []float64
}

// Frames returns the number of sample frames in the clip
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playing time of the clip
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Mono downmixes the clip by averaging each frame across channels.
func (c *Clip) Mono() []float64 {
	if c.Channels <= 1 {
		return append([]float64(nil), c.Samples...)
	}

	frames := c.Frames()
	out := make([]float64, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Samples[f*c.Channels+ch]
		}
		out[f] = sum / float64(c.Channels)
	}
	return out
}

// MonoAt downmixes and resamples the clip to the given rate
func (c *Clip) MonoAt(rate int) []float64 {
	return Resample(c.Mono(), c.SampleRate, rate)
}

// FloatToPCM16 clamps samples to [-1, 1] and scales them to signed 16-bit
func FloatToPCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// PCM16ToFloat converts signed 16-bit samples to [-1, 1)
func PCM16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}

// Resample converts a mono buffer between sample rates by linear
// interpolation. The output holds round(len * to / from) samples spread
// evenly over the span of the input.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return append([]float64(nil), samples...)
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 || len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}

	step := float64(len(samples)-1) / float64(n-1)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
