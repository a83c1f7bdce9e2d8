// Package monitor listens to live PCM streams and reports the SAME headers
// and end-of-message markers heard on them.
//
// Each stream keeps a rolling window of recent audio in an audio.Buffer. The
// window is decoded on a fixed interval; a burst stays visible for at most
// one window, so a message is reported again only after it has left the
// window and been heard anew.
package monitor
