package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/batch"
	"github.com/Koooper/EAS-Webapp/internal/config"
	"github.com/Koooper/EAS-Webapp/internal/metrics"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/same"
	"github.com/Koooper/EAS-Webapp/internal/voice"
)

var testNow = time.Date(2024, 4, 14, 17, 34, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []publish.AlertEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...publish.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fakeSynth struct{}

func (fakeSynth) IsAvailable(context.Context) bool { return true }

func (fakeSynth) Synthesize(context.Context, string, voice.Style) (*audio.Clip, error) {
	return &audio.Clip{SampleRate: 16000, Channels: 1, BitsPerSample: 16, Samples: make([]float64, 16000)}, nil
}

type testServer struct {
	*HTTPServer
	pub      *recordingPublisher
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	runner   *batch.Runner
}

func newTestServer(t *testing.T, synth voice.Synthesizer) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(testNow)
	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(registry)
	pub := &recordingPublisher{}
	cfg := config.Default()
	cfg.Voice.APIKey = "secret-key"

	runner := batch.NewRunner(logger, batch.Config{
		SampleRate:    cfg.Codec.SampleRate,
		MaxConcurrent: 2,
		MaxAlerts:     cfg.Batch.MaxAlerts,
		MaxLocations:  cfg.Codec.MaxLocations,
		JobTTL:        cfg.Batch.GetJobTTL(),
		Clock:         clock,
		Synthesizer:   synth,
		Publisher:     pub,
		Metrics:       m,
	})
	t.Cleanup(runner.Stop)

	h := NewHTTPServer(logger, Dependencies{
		Config:      cfg,
		Metrics:     m,
		Gatherer:    registry,
		Clock:       clock,
		Synthesizer: synth,
		Transcoder:  audio.NewFFmpegTranscoder(audio.FFmpegConfig{Binary: "ffmpeg-does-not-exist-here"}, logger),
		Publisher:   pub,
		Batch:       runner,
	})
	return &testServer{HTTPServer: h, pub: pub, metrics: m, registry: registry, runner: runner}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, "application/json", bytes.NewReader(body))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func tornadoRequest() map[string]any {
	return map[string]any{
		"originator": "WXR",
		"event":      "TOR",
		"locations":  []string{"029095", "029097"},
		"duration":   30,
		"callsign":   "KWNS/NWS",
	}
}

const tornadoHeader = "ZCZC-WXR-TOR-029095-029097+0030-1051734-KWNS/NWS-"

func TestEncode(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.postJSON(t, "/api/encode", tornadoRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, tornadoHeader, out["header"])
	assert.Equal(t, "wav", out["audio_format"])
	assert.Equal(t, false, out["has_voice"])

	parsed := out["parsed"].(map[string]any)
	assert.Equal(t, "Tornado Warning", parsed["event_name"])
	assert.Equal(t, "National Weather Service", parsed["originator_name"])
	assert.Equal(t, "2024-04-14T18:04:00Z", parsed["expires_at"])

	wav, err := base64.StdEncoding.DecodeString(out["audio"].(string))
	require.NoError(t, err)
	messages, err := same.NewDecoder(22050).DecodeWAV(wav)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, tornadoHeader, messages[0].Raw)
	assert.Equal(t, same.KindEOM, messages[1].Kind)

	require.Len(t, s.pub.events, 1)
	assert.Equal(t, publish.KindEncoded, s.pub.events[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.AlertsEncoded.WithLabelValues("full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("POST", "/api/encode", "200")))
}

func TestEncodeValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		mutate   func(map[string]any)
		status   int
		errorMsg string
	}{
		{"bad originator", func(r map[string]any) { r["originator"] = "WX" }, http.StatusBadRequest, "originator"},
		{"missing duration", func(r map[string]any) { delete(r, "duration") }, http.StatusBadRequest, "duration"},
		{"no locations", func(r map[string]any) { r["locations"] = []string{} }, http.StatusBadRequest, "locations"},
		{"too many locations", func(r map[string]any) {
			locs := make([]string, 32)
			for i := range locs {
				locs[i] = "029095"
			}
			r["locations"] = locs
		}, http.StatusBadRequest, "too many locations"},
		{"attention too long", func(r map[string]any) { r["attention_duration"] = 30 }, http.StatusBadRequest, "attention_duration"},
		{"purge too long", func(r map[string]any) { r["duration"] = 6000 }, http.StatusBadRequest, "purge"},
		{"unknown format", func(r map[string]any) { r["format"] = "aiff" }, http.StatusBadRequest, "unsupported"},
		{"transcoder missing", func(r map[string]any) { r["format"] = "mp3" }, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tornadoRequest()
			tt.mutate(req)

			rec := s.postJSON(t, "/api/encode", req)
			assert.Equal(t, tt.status, rec.Code)
			out := decodeBody(t, rec)
			assert.Equal(t, false, out["success"])
			assert.Contains(t, strings.ToLower(out["error"].(string)), tt.errorMsg)
		})
	}

	rec := s.do(t, http.MethodPost, "/api/encode", "application/json", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEncodeWithVoice(t *testing.T) {
	s := newTestServer(t, fakeSynth{})

	rec := s.postJSON(t, "/api/encode/with-voice", tornadoRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, true, out["has_voice"])

	plain := decodeBody(t, s.postJSON(t, "/api/encode", tornadoRequest()))
	assert.Equal(t, false, plain["has_voice"])
	// one second of speech plus its framing replaces one second of silence
	assert.InDelta(t, 1.0, out["duration_seconds"].(float64)-plain["duration_seconds"].(float64), 0.01)
}

func TestEncodeHeaderOnly(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.postJSON(t, "/api/encode/header-only", tornadoRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)

	wav, err := base64.StdEncoding.DecodeString(out["audio"].(string))
	require.NoError(t, err)
	messages, err := same.NewDecoder(22050).DecodeWAV(wav)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, same.KindHeader, messages[0].Kind)
}

func encodedAlert(t *testing.T) []byte {
	t.Helper()
	enc := same.NewEncoder(22050)
	wav, err := enc.WAV(enc.EncodeFullAlert(tornadoHeader, 8*time.Second, nil))
	require.NoError(t, err)
	return wav
}

func TestDecodeJSON(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.postJSON(t, "/api/decode", map[string]string{
		"audio": base64.StdEncoding.EncodeToString(encodedAlert(t)),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, []any{tornadoHeader, "NNNN"}, out["raw_messages"])

	messages := out["messages"].([]any)
	require.Len(t, messages, 2)
	header := messages[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	assert.Equal(t, "TOR", header["parsed"].(map[string]any)["event"])

	attention := out["attention"].(map[string]any)
	assert.Equal(t, true, attention["present"])
	assert.InDelta(t, 8.0, attention["duration_seconds"].(float64), 0.5)

	assert.Len(t, s.pub.events, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.AttentionFound))
}

func TestDecodeMultipart(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "alert.wav")
	require.NoError(t, err)
	_, err = part.Write(encodedAlert(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := s.do(t, http.MethodPost, "/api/decode", mw.FormDataContentType(), &body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody(t, rec)["raw_messages"], 2)
}

func TestDecodeErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing audio", map[string]string{}},
		{"bad base64", map[string]string{"audio": "!!!"}},
		{"not a wav", map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte("definitely not audio data"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postJSON(t, "/api/decode", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestParse(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.postJSON(t, "/api/parse", map[string]string{"header": "zczc-wxr-tor-029095+0030-1051734-KWNS/NWS"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, "ZCZC-WXR-TOR-029095+0030-1051734-KWNS/NWS-", out["raw"])
	parsed := out["parsed"].(map[string]any)
	assert.Equal(t, []any{"029095"}, parsed["locations"])
	assert.Equal(t, "2024-04-14T17:34:00Z", parsed["issued_at"])

	rec = s.postJSON(t, "/api/parse", map[string]string{"header": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttentionTone(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/attention-tone?duration=8", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	info, err := audio.GetWAVInfo(rec.Body.Bytes())
	require.NoError(t, err)
	assert.InDelta(t, 8.0, info.Duration, 0.01)

	for _, bad := range []string{"3", "26", "soon"} {
		rec = s.do(t, http.MethodGet, "/api/attention-tone?duration="+bad, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestReferenceTables(t *testing.T) {
	s := newTestServer(t, nil)

	out := decodeBody(t, s.do(t, http.MethodGet, "/api/codes/originators", "", nil))
	assert.Len(t, out["originators"], 4)

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/codes/events?category=weather", "", nil))
	events := out["events"].([]any)
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, "weather", e.(map[string]any)["category"])
	}

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/codes/states", "", nil))
	assert.NotEmpty(t, out["states"])

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/codes/locations/129095", "", nil))
	assert.Equal(t, "Missouri", out["state_name"])

	rec := s.do(t, http.MethodGet, "/api/codes/locations/12", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollaboratorStatus(t *testing.T) {
	s := newTestServer(t, nil)

	out := decodeBody(t, s.do(t, http.MethodGet, "/api/tts/status", "", nil))
	assert.Equal(t, false, out["available"])
	assert.Len(t, out["voices"], len(voice.Styles()))

	rec := s.postJSON(t, "/api/tts/synthesize", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/audio/formats", "", nil))
	assert.Equal(t, false, out["transcoder_available"])
	formats := out["formats"].([]any)
	require.Len(t, formats, len(audio.AllFormats))
	assert.Equal(t, true, formats[0].(map[string]any)["supported"], "wav is always available")
	assert.Equal(t, false, formats[1].(map[string]any)["supported"])

	rec = s.postJSON(t, "/api/audio/convert", map[string]string{
		"audio":  base64.StdEncoding.EncodeToString(encodedAlert(t)),
		"format": "ogg",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTTSSynthesize(t *testing.T) {
	s := newTestServer(t, fakeSynth{})

	rec := s.postJSON(t, "/api/tts/synthesize", map[string]string{"text": "hello", "voice": "female_newscast"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.InDelta(t, 1.0, out["duration_seconds"].(float64), 1e-9)
}

// slowSynth advances the server clock while it "synthesizes"
type slowSynth struct {
	fakeSynth
	clock clockwork.FakeClock
	took  time.Duration
}

func (s slowSynth) Synthesize(ctx context.Context, text string, style voice.Style) (*audio.Clip, error) {
	s.clock.Advance(s.took)
	return s.fakeSynth.Synthesize(ctx, text, style)
}

func TestSynthesisTimedWithServerClock(t *testing.T) {
	s := newTestServer(t, nil)
	clock := s.clock.(clockwork.FakeClock)
	s.synth = slowSynth{clock: clock, took: 1600 * time.Millisecond}

	rec := s.postJSON(t, "/api/tts/synthesize", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.postJSON(t, "/api/encode/with-voice", tornadoRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	families, err := s.registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "same_tts_duration_seconds" {
			continue
		}
		found = true
		h := f.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(2), h.GetSampleCount())
		assert.InDelta(t, 3.2, h.GetSampleSum(), 1e-9)
	}
	assert.True(t, found)
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.TTSRequests.WithLabelValues("success")))
}

func TestBatchLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/batch", "text/csv", strings.NewReader(
		"originator,event,locations,duration,callsign\n"+
			"WXR,TOR,029095,30,KWNS/NWS\n"+
			"WXR,SVR,\"048001 048003\",15,KWNS/NWS\n"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	id := out["job_id"].(string)
	assert.Equal(t, 2.0, out["alert_count"])
	assert.Equal(t, "pending", out["status"])

	// results are not available before the job runs
	rec = s.do(t, http.MethodGet, "/api/batch/"+id+"/results/0", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/batch/"+id, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/batch/"+id+"/start", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	done, err := s.runner.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("batch job did not finish")
	}

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/batch/"+id, "", nil))
	assert.Equal(t, "completed", out["status"])
	assert.Len(t, out["results"], 2)

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/batch/"+id+"/results?offset=1&limit=5", "", nil))
	assert.Equal(t, 2.0, out["total_results"])
	require.Len(t, out["results"], 1)
	assert.Equal(t, "SVR", out["results"].([]any)[0].(map[string]any)["event"])

	rec = s.do(t, http.MethodGet, "/api/batch/"+id+"/results/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	require.NoError(t, audio.ValidateWAV(rec.Body.Bytes()))

	out = decodeBody(t, s.do(t, http.MethodGet, "/api/batch", "", nil))
	assert.Len(t, out["jobs"], 1)

	rec = s.do(t, http.MethodPost, "/api/batch/"+id+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/batch/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/batch/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchCreateInputs(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("json array", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/batch", "application/json", strings.NewReader(
			`[{"originator": "EAS", "event": "RWT", "locations": ["000000"], "callsign": "TEST/FM"}]`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("multipart json file", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "alerts.json")
		require.NoError(t, err)
		_, err = io.WriteString(part, batch.JSONTemplate())
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		rec := s.do(t, http.MethodPost, "/api/batch", mw.FormDataContentType(), &body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, 2.0, decodeBody(t, rec)["alert_count"])
	})

	t.Run("unsupported upload", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "alerts.txt")
		require.NoError(t, err)
		_, err = io.WriteString(part, "nothing")
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		rec := s.do(t, http.MethodPost, "/api/batch", mw.FormDataContentType(), &body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty list", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/batch", "application/json", strings.NewReader(`{"alerts": []}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("templates", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/batch/template?format=csv", "", nil)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		rec = s.do(t, http.MethodGet, "/api/batch/template?format=json", "", nil)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		rec = s.do(t, http.MethodGet, "/api/batch/template?format=xml", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := s.do(t, http.MethodGet, "/api/batch/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	out := decodeBody(t, s.do(t, http.MethodGet, "/health", "", nil))
	assert.Equal(t, "healthy", out["status"])
	components := out["components"].(map[string]any)
	assert.Equal(t, "disabled", components["monitor"].(map[string]any)["status"])

	rec := s.do(t, http.MethodGet, "/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-key")
	assert.Contains(t, rec.Body.String(), `"sample_rate":22050`)

	rec = s.do(t, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["endpoints"], "POST /api/encode")

	rec = s.do(t, http.MethodGet, "/api/monitor/streams", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/encode", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "same_http_requests_total")
}
