package same

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		locations []string
		callsign  string
	}{
		{
			name:      "canonical",
			input:     "ZCZC-WXR-TOR-029095+0030-0151234-KWNS/NWS-",
			locations: []string{"029095"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "missing prefix and trailing dash",
			input:     "WXR-TOR-029095-029097+0030-0151234-KWNS/NWS",
			locations: []string{"029095", "029097"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "prefix without dash",
			input:     "ZCZCWXR-TOR-029095+0030-0151234-KWNS/NWS-",
			locations: []string{"029095"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "lowercase with spaces around delimiters",
			input:     "  zczc - wxr - tor - 029095 + 0030 - 0151234 - kwns/nws -  ",
			locations: []string{"029095"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "ragged location runs",
			input:     "ZCZC-WXR-TOR-29095-0290951+0030-0151234-KWNS/NWS-",
			locations: []string{"029095", "029095"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "garbled location dropped",
			input:     "ZCZC-WXR-TOR-029095-02#097-029099+0030-0151234-KWNS/NWS-",
			locations: []string{"029095", "029099"},
			callsign:  "KWNS/NWS",
		},
		{
			name:      "spaced callsign",
			input:     "ZCZC-WXR-TOR-029095+0030-0151234-KWNS NWS-",
			locations: []string{"029095"},
			callsign:  "KWNSNWS",
		},
		{
			name:      "overlong spaced callsign",
			input:     "ZCZC-WXR-TOR-029095+0030-0151234-KWNS NWS XY-",
			locations: []string{"029095"},
			callsign:  "KWNSNWSX",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.input)
			require.NoError(t, err)

			assert.Equal(t, "WXR", m.Originator())
			assert.Equal(t, "TOR", m.Event())
			assert.Equal(t, tt.locations, m.Locations())
			assert.Equal(t, "0030", m.PurgeTime())
			assert.Equal(t, "0151234", m.IssueTime())
			assert.Equal(t, tt.callsign, m.Callsign())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "hello world"},
		{"eom", "NNNN"},
		{"no usable locations", "ZCZC-WXR-TOR-ABCDEF+0030-0151234-KWNS-"},
		{"missing plus", "ZCZC-WXR-TOR-029095-0030-0151234-KWNS-"},
		{"short issue time", "ZCZC-WXR-TOR-029095+0030-015123-KWNS-"},
		{"missing callsign", "ZCZC-WXR-TOR-029095+0030-0151234-"},
		{"numeric originator", "ZCZC-W1R-TOR-029095+0030-0151234-KWNS-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, tt.input, perr.Input)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"WXR-TOR", "ZCZC-WXR-TOR-"},
		{"zczc-wxr-", "ZCZC-WXR-"},
		{"ZCZC -WXR- TOR", "ZCZC-WXR-TOR-"},
		{"ZCZC-WXR-TOR-029095+0030-0151234-KW NS", "ZCZC-WXR-TOR-029095+0030-0151234-KW NS-"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeHeader(tt.input))
		})
	}
}
