// Package protocol implements the monitor datagram format.
// Each UDP datagram carries an 8-byte header (stream ID and sequence number,
// big-endian) followed by little-endian mono PCM-16 samples.
package protocol
