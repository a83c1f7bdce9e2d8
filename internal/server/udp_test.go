package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/config"
	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/monitor"
	"github.com/Koooper/EAS-Webapp/internal/protocol"
	"github.com/Koooper/EAS-Webapp/internal/same"
)

func startUDP(t *testing.T) (*UDPServer, *monitor.Manager, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())

	mon := monitor.NewManager(logger, monitor.Config{
		SampleRate:     same.DefaultSampleRate,
		Window:         12 * time.Second,
		DecodeInterval: time.Second,
		StreamTimeout:  time.Minute,
		MaxStreams:     4,
		Clock:          clockwork.NewFakeClockAt(testNow),
		Metrics:        m,
	})

	cfg := &config.MonitorConfig{
		BindAddress: "127.0.0.1",
		UDPPort:     0,
		Workers:     1, // keeps datagrams in arrival order
		QueueSize:   4096,
	}
	srv := NewUDPServer(cfg, logger, mon, m)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return srv, mon, m
}

func dial(t *testing.T, srv *UDPServer) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, srv.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUDPServerFeedsMonitor(t *testing.T) {
	srv, mon, m := startUDP(t)
	conn := dial(t, srv)

	enc := same.NewEncoder(same.DefaultSampleRate)
	samples := audio.FloatToPCM16(enc.EncodeHeader(tornadoHeader))
	datagrams := protocol.Packetize(7, 1, samples, 1000)

	for i, d := range datagrams {
		_, err := conn.Write(d.Encode())
		require.NoError(t, err)
		if i%50 == 49 {
			// let the worker drain so the socket buffer never overflows
			time.Sleep(5 * time.Millisecond)
		}
	}

	require.Eventually(t, func() bool {
		return srv.GetStatistics().PacketsProcessed == uint64(len(datagrams))
	}, 5*time.Second, 10*time.Millisecond)

	stats := srv.GetStatistics()
	assert.Equal(t, uint64(len(datagrams)), stats.PacketsReceived)
	assert.Equal(t, uint64(1), stats.ActiveStreams)
	assert.Zero(t, stats.ParseErrors)

	detections := mon.DecodeAll(context.Background())
	require.Len(t, detections, 1)
	assert.Equal(t, uint32(7), detections[0].StreamID)
	assert.Equal(t, tornadoHeader, detections[0].Raw)
	assert.Equal(t, same.KindHeader, detections[0].Kind)

	assert.Equal(t, float64(len(datagrams)), testutil.ToFloat64(m.DatagramsProcessed))
}

func TestUDPServerParseErrors(t *testing.T) {
	srv, mon, m := startUDP(t)
	conn := dial(t, srv)

	for _, payload := range [][]byte{
		{1, 2, 3},                   // shorter than the header
		{0, 0, 0, 1, 0, 0, 0, 1},    // header without audio
		{0, 0, 0, 1, 0, 0, 0, 1, 9}, // odd payload
	} {
		_, err := conn.Write(payload)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return srv.GetStatistics().ParseErrors == 3
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, srv.GetStatistics().PacketsProcessed)
	assert.Zero(t, mon.ActiveStreams())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ParseErrors))
}

func TestUDPServerStop(t *testing.T) {
	srv, _, _ := startUDP(t)
	require.NotNil(t, srv.Addr())

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
