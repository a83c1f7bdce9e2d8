// Package audio handles PCM containers and sample buffers for the codec.
// It encodes mono 16-bit WAV, ingests 8/16/24/32-bit PCM WAV of any channel
// count into a Clip, downmixes and linearly resamples buffers, and shells out
// to ffmpeg for other containers.
package audio
