// Package voice implements the voice-synthesis collaborator. It defines the
// Synthesizer interface and an HTTP client for a TTS endpoint that returns
// WAV audio, with retry and exponential backoff, a concurrency semaphore and
// a cached availability probe.
package voice
