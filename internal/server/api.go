package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Koooper/EAS-Webapp/internal/audio"
	"github.com/Koooper/EAS-Webapp/internal/eas"
	"github.com/Koooper/EAS-Webapp/internal/publish"
	"github.com/Koooper/EAS-Webapp/internal/same"
	"github.com/Koooper/EAS-Webapp/internal/voice"
)

const defaultBodyLimit = 32 << 20

// encodeRequest is the body of the encode endpoints
type encodeRequest struct {
	Originator        string   `json:"originator"`
	Event             string   `json:"event"`
	Locations         []string `json:"locations"`
	Duration          *int     `json:"duration"` // minutes
	Callsign          string   `json:"callsign"`
	AttentionDuration *float64 `json:"attention_duration"` // seconds
	VoiceText         string   `json:"voice_text"`
	Voice             string   `json:"voice"`
	IncludeVoice      *bool    `json:"include_voice"`
	Format            string   `json:"format"`
}

// messageView is the JSON rendering of a parsed header
type messageView struct {
	Originator         string    `json:"originator"`
	OriginatorName     string    `json:"originator_name"`
	Event              string    `json:"event"`
	EventName          string    `json:"event_name"`
	Locations          []string  `json:"locations"`
	LocationsFormatted []string  `json:"locations_formatted"`
	PurgeTime          string    `json:"purge_time"`
	IssueTime          string    `json:"issue_time"`
	Callsign           string    `json:"callsign"`
	IssuedAt           time.Time `json:"issued_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

func (h *HTTPServer) viewMessage(m same.Message) messageView {
	year := h.clock.Now().UTC().Year()
	locations := m.Locations()
	formatted := make([]string, len(locations))
	for i, loc := range locations {
		formatted[i] = eas.FormatLocation(loc)
	}
	return messageView{
		Originator:         m.Originator(),
		OriginatorName:     eas.OriginatorName(m.Originator()),
		Event:              m.Event(),
		EventName:          eas.EventName(m.Event()),
		Locations:          locations,
		LocationsFormatted: formatted,
		PurgeTime:          m.PurgeTime(),
		IssueTime:          m.IssueTime(),
		Callsign:           m.Callsign(),
		IssuedAt:           m.IssuedAt(year),
		ExpiresAt:          m.ExpiresAt(year),
	}
}

func (h *HTTPServer) bodyLimit() int64 {
	if h.config.Server.MaxBodyBytes > 0 {
		return h.config.Server.MaxBodyBytes
	}
	return defaultBodyLimit
}

func (h *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.bodyLimit())
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// message validates an encode request and builds its header
func (h *HTTPServer) message(req *encodeRequest) (same.Message, time.Duration, error) {
	switch {
	case req.Originator == "":
		return same.Message{}, 0, errors.New("missing required field: originator")
	case req.Event == "":
		return same.Message{}, 0, errors.New("missing required field: event")
	case len(req.Locations) == 0:
		return same.Message{}, 0, errors.New("missing required field: locations")
	case req.Duration == nil:
		return same.Message{}, 0, errors.New("missing required field: duration")
	}
	if limit := h.config.Codec.MaxLocations; len(req.Locations) > limit {
		return same.Message{}, 0, fmt.Errorf("too many locations: %d (max %d)", len(req.Locations), limit)
	}

	attention := time.Duration(h.config.Codec.AttentionDuration) * time.Second
	if req.AttentionDuration != nil {
		attention = time.Duration(*req.AttentionDuration * float64(time.Second))
	}
	if attention < same.AttentionMin || attention > same.AttentionMax {
		return same.Message{}, 0, fmt.Errorf("attention_duration must be between %v and %v", same.AttentionMin, same.AttentionMax)
	}

	callsign := req.Callsign
	if callsign == "" {
		callsign = h.config.Codec.DefaultCallsign
	}

	m, err := same.Create(req.Originator, req.Event, req.Locations, *req.Duration, callsign, h.clock.Now())
	if err != nil {
		return same.Message{}, 0, err
	}
	return m, attention, nil
}

// speech synthesizes the voice segment for an alert. It returns nil when no
// voice was asked for or the synthesizer cannot serve; synthesis failures
// never fail the encode.
func (h *HTTPServer) speech(ctx context.Context, req *encodeRequest, m same.Message, defaultVoice bool) []float64 {
	text := strings.TrimSpace(req.VoiceText)
	wanted := defaultVoice
	if req.IncludeVoice != nil {
		wanted = *req.IncludeVoice
	}
	if text == "" && !wanted {
		return nil
	}
	if !h.synth.IsAvailable(ctx) {
		return nil
	}

	if text == "" {
		locations := m.Locations()
		names := make([]string, len(locations))
		for i, loc := range locations {
			names[i] = eas.FormatLocation(loc)
		}
		text = voice.Announcement(eas.EventName(m.Event()), names, eas.OriginatorName(m.Originator()), m.Callsign())
	}

	style := req.Voice
	if style == "" {
		style = h.config.Voice.DefaultStyle
	}

	began := h.clock.Now()
	clip, err := h.synth.Synthesize(ctx, text, voice.ParseStyle(style))
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if h.metrics != nil {
		h.metrics.RecordTTS(outcome, h.clock.Since(began).Seconds())
	}
	if err != nil {
		h.logger.Warn("Voice synthesis failed, encoding without voice",
			slog.String("event", m.Event()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return clip.MonoAt(h.config.Codec.SampleRate)
}

// convert transcodes WAV output when another format was requested
func (h *HTTPServer) convert(ctx context.Context, wav []byte, name string) ([]byte, audio.Format, int, error) {
	format, err := audio.ParseFormat(name)
	if err != nil {
		return nil, "", http.StatusBadRequest, err
	}
	if format == audio.FormatWAV {
		return wav, format, http.StatusOK, nil
	}
	if h.transcoder == nil {
		return nil, "", http.StatusServiceUnavailable, audio.ErrTranscoderUnavailable
	}
	out, err := h.transcoder.Convert(ctx, wav, format)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, audio.ErrTranscoderUnavailable) {
			status = http.StatusServiceUnavailable
		}
		return nil, "", status, err
	}
	return out, format, http.StatusOK, nil
}

func (h *HTTPServer) publish(ctx context.Context, events ...publish.AlertEvent) {
	if len(events) == 0 {
		return
	}
	err := h.publisher.Publish(ctx, events...)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		h.logger.Warn("Failed to publish alert events",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
	if h.metrics != nil {
		for _, e := range events {
			h.metrics.RecordPublish(string(e.Kind), outcome)
		}
	}
}

func (h *HTTPServer) handleEncode(w http.ResponseWriter, r *http.Request) {
	h.encodeFull(w, r, false)
}

func (h *HTTPServer) handleEncodeWithVoice(w http.ResponseWriter, r *http.Request) {
	h.encodeFull(w, r, true)
}

func (h *HTTPServer) encodeFull(w http.ResponseWriter, r *http.Request, defaultVoice bool) {
	var req encodeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, attention, err := h.message(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	speech := h.speech(r.Context(), &req, m, defaultVoice)

	began := h.clock.Now()
	enc := same.NewEncoder(h.config.Codec.SampleRate)
	samples := enc.EncodeFullAlert(m.String(), attention, speech)
	wav, err := enc.WAV(samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.RecordEncode("full", h.clock.Since(began).Seconds())
	}

	out, format, status, err := h.convert(r.Context(), wav, req.Format)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	h.logger.Info("Encoded alert",
		slog.String("header", m.String()),
		slog.Bool("voice", speech != nil),
		slog.String("format", string(format)),
	)
	h.publish(r.Context(), publish.NewEncodedEvent(m, h.config.Publish.Source, h.clock.Now()))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"header":           m.String(),
		"audio":            base64.StdEncoding.EncodeToString(out),
		"audio_format":     format,
		"has_voice":        speech != nil,
		"duration_seconds": float64(len(samples)) / float64(enc.SampleRate()),
		"parsed":           h.viewMessage(m),
	})
}

func (h *HTTPServer) handleEncodeHeaderOnly(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, _, err := h.message(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	began := h.clock.Now()
	enc := same.NewEncoder(h.config.Codec.SampleRate)
	wav, err := enc.WAV(enc.EncodeHeader(m.String()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.RecordEncode("header", h.clock.Since(began).Seconds())
	}

	out, format, status, err := h.convert(r.Context(), wav, req.Format)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"header":       m.String(),
		"audio":        base64.StdEncoding.EncodeToString(out),
		"audio_format": format,
	})
}

// readAudioUpload returns the uploaded bytes from a multipart "audio" field
// or a JSON {"audio": base64} body
func (h *HTTPServer) readAudioUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, errors.New("no audio file provided")
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	var body struct {
		Audio string `json:"audio"`
	}
	if err := h.decodeJSON(w, r, &body); err != nil {
		return nil, err
	}
	if body.Audio == "" {
		return nil, errors.New("missing required field: audio")
	}
	data, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio is not valid base64: %w", err)
	}
	return data, nil
}

// decodedView is one message recovered from audio
type decodedView struct {
	Raw        string       `json:"raw"`
	Type       same.Kind    `json:"type"`
	ParseError string       `json:"parse_error,omitempty"`
	Parsed     *messageView `json:"parsed,omitempty"`
}

func (h *HTTPServer) handleDecode(w http.ResponseWriter, r *http.Request) {
	data, err := h.readAudioUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	began := h.clock.Now()
	decoded := h.decoder.DecodeClip(clip)
	attention := same.DetectAttention(clip.Mono(), clip.SampleRate)

	now := h.clock.Now()
	views := make([]decodedView, 0, len(decoded))
	raws := make([]string, 0, len(decoded))
	kinds := make([]string, 0, len(decoded))
	events := make([]publish.AlertEvent, 0, len(decoded))
	for _, dm := range decoded {
		raws = append(raws, dm.Raw)
		kinds = append(kinds, string(dm.Kind))
		v := decodedView{Raw: dm.Raw, Type: dm.Kind}
		if dm.Err != nil {
			v.ParseError = dm.Err.Error()
			if h.metrics != nil {
				h.metrics.RecordParseFailure()
			}
		} else if dm.Kind == same.KindHeader {
			parsed := h.viewMessage(dm.Message)
			v.Parsed = &parsed
		}
		views = append(views, v)
		events = append(events, publish.NewDecodedEvent(dm, h.config.Publish.Source, nil, now))
	}
	if h.metrics != nil {
		h.metrics.RecordDecode(h.clock.Since(began).Seconds(), kinds, attention.Present)
	}

	h.logger.Info("Decoded audio",
		slog.Int("messages", len(decoded)),
		slog.Bool("attention", attention.Present),
		slog.Float64("audio_seconds", clip.Duration().Seconds()),
	)
	h.publish(r.Context(), events...)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"messages":     views,
		"raw_messages": raws,
		"attention": map[string]any{
			"present":          attention.Present,
			"duration_seconds": attention.Duration.Seconds(),
		},
	})
}

func (h *HTTPServer) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Header string `json:"header"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Header == "" {
		writeError(w, http.StatusBadRequest, "missing required field: header")
		return
	}

	m, err := same.Parse(req.Header)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"raw":     m.String(),
		"parsed":  h.viewMessage(m),
	})
}

func (h *HTTPServer) handleAttentionTone(w http.ResponseWriter, r *http.Request) {
	seconds := float64(h.config.Codec.AttentionDuration)
	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid duration %q", v))
			return
		}
		seconds = parsed
	}
	d := time.Duration(seconds * float64(time.Second))
	if d < same.AttentionMin || d > same.AttentionMax {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("duration must be between %v and %v", same.AttentionMin, same.AttentionMax))
		return
	}

	began := h.clock.Now()
	enc := same.NewEncoder(h.config.Codec.SampleRate)
	wav, err := enc.WAV(enc.AttentionSignal(d))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.RecordEncode("attention", h.clock.Since(began).Seconds())
	}

	writeAudio(w, audio.FormatWAV, "attention.wav", wav)
}

func (h *HTTPServer) handleEventCodes(w http.ResponseWriter, r *http.Request) {
	category := eas.Category(strings.ToLower(r.URL.Query().Get("category")))
	writeJSON(w, http.StatusOK, map[string]any{"events": eas.Events(category)})
}

func (h *HTTPServer) handleOriginatorCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"originators": eas.Originators()})
}

func (h *HTTPServer) handleStateCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"states": eas.States()})
}

func (h *HTTPServer) handleLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := eas.ParseLocation(r.PathValue("code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location":    loc,
		"state_name":  eas.StateName(loc.State),
		"subdivision": eas.SubdivisionName(loc.Subdivision),
		"formatted":   eas.FormatLocation(loc.Raw),
	})
}

func voiceList() []map[string]string {
	styles := voice.Styles()
	out := make([]map[string]string, 0, len(styles))
	for _, s := range styles {
		out = append(out, map[string]string{"id": string(s), "voice": s.Voice()})
	}
	return out
}

func (h *HTTPServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"voices": voiceList()})
}

func (h *HTTPServer) handleTTSStatus(w http.ResponseWriter, r *http.Request) {
	backend := ""
	if h.config.Voice.Enabled {
		backend = h.config.Voice.Endpoint
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   h.config.Voice.Enabled,
		"available": h.synth.IsAvailable(r.Context()),
		"backend":   backend,
		"voices":    voiceList(),
	})
}

func (h *HTTPServer) handleTTSSynthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing required field: text")
		return
	}
	if !h.synth.IsAvailable(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, voice.ErrUnavailable.Error())
		return
	}

	began := h.clock.Now()
	clip, err := h.synth.Synthesize(r.Context(), req.Text, voice.ParseStyle(req.Voice))
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordTTS("error", h.clock.Since(began).Seconds())
		}
		status := http.StatusBadGateway
		if errors.Is(err, voice.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.RecordTTS("success", h.clock.Since(began).Seconds())
	}

	wav, err := audio.EncodeWAV(audio.FloatToPCM16(clip.Mono()), clip.SampleRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"audio":            base64.StdEncoding.EncodeToString(wav),
		"audio_format":     audio.FormatWAV,
		"duration_seconds": clip.Duration().Seconds(),
	})
}

func (h *HTTPServer) handleAudioFormats(w http.ResponseWriter, r *http.Request) {
	available := h.transcoder != nil && h.transcoder.IsAvailable()
	formats := []audio.Format{audio.FormatWAV}
	if h.transcoder != nil {
		formats = h.transcoder.Formats()
	}

	details := make([]map[string]any, 0, len(audio.AllFormats))
	for _, f := range audio.AllFormats {
		supported := false
		for _, g := range formats {
			supported = supported || f == g
		}
		details = append(details, map[string]any{
			"format":       f,
			"content_type": f.ContentType(),
			"supported":    supported,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcoder_available": available,
		"formats":              details,
	})
}

func (h *HTTPServer) handleAudioConvert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Audio  string `json:"audio"`
		Format string `json:"format"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Audio == "" || req.Format == "" {
		writeError(w, http.StatusBadRequest, "missing required field: audio and format are required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio is not valid base64")
		return
	}
	if err := audio.ValidateWAV(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, format, status, err := h.convert(r.Context(), data, req.Format)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"audio":   base64.StdEncoding.EncodeToString(out),
		"format":  format,
	})
}

func (h *HTTPServer) handleMonitorStreams(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "live monitoring is disabled")
		return
	}
	streams := h.monitor.Streams()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_streams": len(streams),
		"streams":       streams,
	})
}

func (h *HTTPServer) handleMonitorAlerts(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "live monitoring is disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": h.monitor.Recent()})
}
