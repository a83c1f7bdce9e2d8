package same

import (
	"math"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	attentionFrame    = 4096
	attentionHop      = 2048
	attentionBinSpan  = 2    // bins either side of each tone
	attentionToneMin  = 0.15 // share of frame power per tone
	attentionTotalMin = 0.60 // share of frame power for both tones
	attentionPresent  = time.Second
)

// AttentionReport describes the attention signal found in a buffer.
type AttentionReport struct {
	Present  bool          `json:"present"`
	Duration time.Duration `json:"duration"`
	Frames   int           `json:"frames"` // frames classified as attention, in total
}

// DetectAttention looks for the 853 + 960 Hz attention signal. The buffer is
// cut into Hann-windowed frames; a frame counts when each tone holds at least
// 15% and both together 60% of its power. Duration is the longest run of such
// frames, and the signal is Present when that run lasts a second or more.
func DetectAttention(samples []float64, sampleRate int) AttentionReport {
	var report AttentionReport
	if sampleRate <= 0 || len(samples) < attentionFrame {
		return report
	}

	binWidth := float64(sampleRate) / attentionFrame
	bin1 := int(math.Round(AttentionFreq1 / binWidth))
	bin2 := int(math.Round(AttentionFreq2 / binWidth))

	run, longest := 0, 0
	frame := make([]float64, attentionFrame)
	for start := 0; start+attentionFrame <= len(samples); start += attentionHop {
		copy(frame, samples[start:start+attentionFrame])
		window.Apply(frame, window.Hann)
		spectrum := fft.FFTReal(frame)

		if isAttentionFrame(spectrum, bin1, bin2) {
			report.Frames++
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}

	report.Duration = time.Duration(float64(longest*attentionHop) / float64(sampleRate) * float64(time.Second))
	report.Present = report.Duration >= attentionPresent
	return report
}

func isAttentionFrame(spectrum []complex128, bin1, bin2 int) bool {
	half := len(spectrum) / 2

	power := func(k int) float64 {
		re, im := real(spectrum[k]), imag(spectrum[k])
		return re*re + im*im
	}
	band := func(center int) float64 {
		var sum float64
		for k := max(center-attentionBinSpan, 1); k <= min(center+attentionBinSpan, half); k++ {
			sum += power(k)
		}
		return sum
	}

	var total float64
	for k := 1; k <= half; k++ {
		total += power(k)
	}
	if total == 0 {
		return false
	}

	p1 := band(bin1) / total
	p2 := band(bin2) / total
	return p1 > attentionToneMin && p2 > attentionToneMin && p1+p2 > attentionTotalMin
}
