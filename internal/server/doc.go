// Package server exposes the SAME codec over HTTP and receives live monitor
// audio over UDP. The HTTP side covers encoding, decoding, parsing, reference
// tables, batch jobs and the operational endpoints; the UDP side parses
// datagrams on a worker pool and feeds them to the stream monitor.
package server
