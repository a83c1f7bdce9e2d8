package same

import "math"

// goertzel measures the energy of one DFT bin over fixed-length windows.
type goertzel struct {
	n     int
	coeff float64
}

// newGoertzel picks the bin nearest freq for an n-sample window at rate.
func newGoertzel(freq float64, n, rate int) goertzel {
	k := int(0.5 + float64(n)*freq/float64(rate))
	return goertzel{
		n:     n,
		coeff: 2 * math.Cos(2*math.Pi*float64(k)/float64(n)),
	}
}

// power returns the squared magnitude of the bin over samples (at most n
// are read).
func (g goertzel) power(samples []float64) float64 {
	if len(samples) > g.n {
		samples = samples[:g.n]
	}
	var s1, s2 float64
	for _, x := range samples {
		s0 := x + g.coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - g.coeff*s1*s2
}
