package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	defaultDuration  = 30
	defaultAttention = 8.0
	defaultStyle     = "default"
)

// Alert is one entry of a batch file
type Alert struct {
	Originator        string   `json:"originator"`
	Event             string   `json:"event"`
	Locations         []string `json:"locations"`
	DurationMinutes   int      `json:"duration"`
	Callsign          string   `json:"callsign"`
	AttentionDuration float64  `json:"attention_duration"` // seconds
	VoiceText         string   `json:"voice_text,omitempty"`
	VoiceStyle        string   `json:"voice_style"`
}

// alertJSON accepts the aliases batch files use in the wild: duration or
// duration_minutes, voice_style or voice, and locations as a list or a
// comma-separated string.
type alertJSON struct {
	Originator        *string         `json:"originator"`
	Event             *string         `json:"event"`
	Locations         json.RawMessage `json:"locations"`
	Duration          *int            `json:"duration"`
	DurationMinutes   *int            `json:"duration_minutes"`
	Callsign          *string         `json:"callsign"`
	AttentionDuration *float64        `json:"attention_duration"`
	VoiceText         *string         `json:"voice_text"`
	VoiceStyle        *string         `json:"voice_style"`
	Voice             *string         `json:"voice"`
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	var raw alertJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Originator == nil:
		return errors.New("missing originator")
	case raw.Event == nil:
		return errors.New("missing event")
	case raw.Callsign == nil:
		return errors.New("missing callsign")
	}

	locations, err := parseLocationsJSON(raw.Locations)
	if err != nil {
		return err
	}

	*a = Alert{
		Originator:        strings.TrimSpace(*raw.Originator),
		Event:             strings.TrimSpace(*raw.Event),
		Locations:         locations,
		DurationMinutes:   defaultDuration,
		Callsign:          strings.TrimSpace(*raw.Callsign),
		AttentionDuration: defaultAttention,
		VoiceStyle:        defaultStyle,
	}
	if raw.DurationMinutes != nil {
		a.DurationMinutes = *raw.DurationMinutes
	} else if raw.Duration != nil {
		a.DurationMinutes = *raw.Duration
	}
	if raw.AttentionDuration != nil {
		a.AttentionDuration = *raw.AttentionDuration
	}
	if raw.VoiceText != nil {
		a.VoiceText = strings.TrimSpace(*raw.VoiceText)
	}
	if raw.VoiceStyle != nil {
		a.VoiceStyle = *raw.VoiceStyle
	} else if raw.Voice != nil {
		a.VoiceStyle = *raw.Voice
	}
	return nil
}

func parseLocationsJSON(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, fmt.Errorf("locations must be a list or a comma-separated string")
	}
	var out []string
	for _, loc := range strings.Split(joined, ",") {
		if loc = strings.TrimSpace(loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out, nil
}

// ParseJSON reads {"alerts": [...]} or a bare array of alerts
func ParseJSON(data []byte) ([]Alert, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty batch file")
	}

	var alerts []Alert
	if data[0] == '[' {
		if err := json.Unmarshal(data, &alerts); err != nil {
			return nil, fmt.Errorf("invalid alert array: %w", err)
		}
	} else {
		var doc struct {
			Alerts *[]Alert `json:"alerts"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid batch JSON: %w", err)
		}
		if doc.Alerts == nil {
			return nil, errors.New("JSON must contain 'alerts' key or be an array")
		}
		alerts = *doc.Alerts
	}

	if len(alerts) == 0 {
		return nil, errors.New("no valid alerts found in JSON")
	}
	return alerts, nil
}

// csvColumns is the header ParseCSV expects; only the first five are required
var csvColumns = []string{"originator", "event", "locations", "duration", "callsign",
	"attention_duration", "voice_text", "voice_style"}

// ParseCSV reads a CSV batch file with a header row. Locations may be
// separated by spaces or commas inside one quoted cell.
func ParseCSV(r io.Reader) ([]Alert, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty batch file")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["duration"]; !ok {
		if i, ok := index["duration_minutes"]; ok {
			index["duration"] = i
		}
	}
	if _, ok := index["voice_style"]; !ok {
		if i, ok := index["voice"]; ok {
			index["voice_style"] = i
		}
	}
	for _, col := range csvColumns[:5] {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", col)
		}
	}

	var alerts []Alert
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV row %d: %w", line, err)
		}

		field := func(name string) string {
			if i, ok := index[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		alert := Alert{
			Originator:        field("originator"),
			Event:             field("event"),
			Locations:         strings.Fields(strings.ReplaceAll(field("locations"), ",", " ")),
			DurationMinutes:   defaultDuration,
			Callsign:          field("callsign"),
			AttentionDuration: defaultAttention,
			VoiceText:         field("voice_text"),
			VoiceStyle:        defaultStyle,
		}
		if v := field("duration"); v != "" {
			if alert.DurationMinutes, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("invalid CSV row %d: duration %q is not an integer", line, v)
			}
		}
		if v := field("attention_duration"); v != "" {
			if alert.AttentionDuration, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("invalid CSV row %d: attention_duration %q is not a number", line, v)
			}
		}
		if v := field("voice_style"); v != "" {
			alert.VoiceStyle = v
		}
		alerts = append(alerts, alert)
	}

	if len(alerts) == 0 {
		return nil, errors.New("no valid alerts found in CSV")
	}
	return alerts, nil
}

// CSVTemplate returns an example CSV batch file
func CSVTemplate() string {
	return strings.Join(csvColumns, ",") + "\n" +
		`WXR,TOR,"029095 029097",30,KWNS/NWS,8,,default` + "\n" +
		`WXR,SVR,048001,15,WXYZ/FM,8,Severe thunderstorm warning for Anderson County,female_newscast` + "\n" +
		`CIV,EVI,012345,60,KCIV/TV,10,,male_authoritative` + "\n" +
		`EAS,RWT,000000,15,TEST/FM,8,This is a test,default` + "\n"
}

// JSONTemplate returns an example JSON batch file
func JSONTemplate() string {
	doc := map[string][]Alert{"alerts": {
		{Originator: "WXR", Event: "TOR", Locations: []string{"029095", "029097"}, DurationMinutes: 30,
			Callsign: "KWNS/NWS", AttentionDuration: 8, VoiceStyle: defaultStyle},
		{Originator: "WXR", Event: "SVR", Locations: []string{"048001"}, DurationMinutes: 15,
			Callsign: "WXYZ/FM", AttentionDuration: 8, VoiceText: "Severe thunderstorm warning for Anderson County",
			VoiceStyle: "female_newscast"},
	}}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return string(out)
}
