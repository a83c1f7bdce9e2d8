package voice

import "strings"

// Style selects a preset voice for announcements
type Style string

const (
	StyleDefault             Style = "default"
	StyleMaleAuthoritative   Style = "male_authoritative"
	StyleMaleNewscast        Style = "male_newscast"
	StyleFemaleAuthoritative Style = "female_authoritative"
	StyleFemaleNewscast      Style = "female_newscast"
	StyleMaleRobotic         Style = "male_robotic"
)

// neural voice each style maps to on the TTS endpoint
var styleVoices = map[Style]string{
	StyleDefault:             "en-US-GuyNeural",
	StyleMaleAuthoritative:   "en-US-GuyNeural",
	StyleMaleNewscast:        "en-US-ChristopherNeural",
	StyleFemaleAuthoritative: "en-US-JennyNeural",
	StyleFemaleNewscast:      "en-US-AriaNeural",
	StyleMaleRobotic:         "en-US-DavisNeural",
}

// ParseStyle maps a style name to a Style. Unknown or empty names select
// StyleDefault; callers never get an error for a bad style.
func ParseStyle(name string) Style {
	s := Style(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := styleVoices[s]; ok {
		return s
	}
	return StyleDefault
}

// Voice returns the TTS voice identifier for the style
func (s Style) Voice() string {
	if v, ok := styleVoices[s]; ok {
		return v
	}
	return styleVoices[StyleDefault]
}

// Styles lists every style in a stable order
func Styles() []Style {
	return []Style{
		StyleDefault,
		StyleMaleAuthoritative,
		StyleMaleNewscast,
		StyleFemaleAuthoritative,
		StyleFemaleNewscast,
		StyleMaleRobotic,
	}
}
