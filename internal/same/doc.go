// Package same implements the Specific Area Message Encoding codec used by the
// Emergency Alert System (47 CFR 11.31). It covers the header message model,
// the AFSK encoder that renders headers, attention signal and EOM to audio,
// and the Goertzel-based decoder that recovers headers from noisy recordings.
package same
