package same

import "time"

// AFSK modulation parameters
const (
	DefaultSampleRate = 22050  // Hz, default generation rate
	BaudRate          = 520.83 // bits per second (~1.92ms per bit)

	MarkFreq  = 2083.3 // Hz, binary 1
	SpaceFreq = 1562.5 // Hz, binary 0
)

// Attention signal (two-tone)
const (
	AttentionFreq1 = 853.0 // Hz
	AttentionFreq2 = 960.0 // Hz

	AttentionMin     = 8 * time.Second
	AttentionMax     = 25 * time.Second
	AttentionDefault = 8 * time.Second
)

// Framing
const (
	PreambleByte  = 0xAB // 10101011
	PreambleBytes = 16   // preamble length before every header and EOM

	HeaderRepetitions = 3
	EOMRepetitions    = 3
	BurstGap          = time.Second // silence between burst repetitions

	HeaderStart = "ZCZC"
	EOMMarker   = "NNNN"

	ToneAmplitude = 0.8 // headroom below full scale
)

// Header limits
const (
	MaxLocations    = 31  // protocol limit, enforced by callers
	MaxCallsignLen  = 8   // LLLLLLLL
	MinHeaderLength = 35  // ZCZC-ORG-EEE-PSSCCC+TTTT-JJJHHMM-L-
	MaxHeaderLength = 252 // header carrying MaxLocations codes and an 8 char callsign
)
