package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Koooper/EAS-Webapp/internal/audio"
)

// ErrUnavailable is returned when no synthesis backend can serve a request
var ErrUnavailable = errors.New("voice synthesis unavailable")

// Synthesizer turns text into speech
type Synthesizer interface {
	// IsAvailable reports whether Synthesize can currently succeed
	IsAvailable(ctx context.Context) bool
	// Synthesize renders text in the given style
	Synthesize(ctx context.Context, text string, style Style) (*audio.Clip, error)
}

// Disabled is the Synthesizer used when voice synthesis is turned off
type Disabled struct{}

func (Disabled) IsAvailable(context.Context) bool { return false }

func (Disabled) Synthesize(context.Context, string, Style) (*audio.Clip, error) {
	return nil, ErrUnavailable
}

// Announcement builds the standard spoken text for an alert
func Announcement(eventName string, locations []string, originatorName, callsign string) string {
	return fmt.Sprintf(
		"The following message is transmitted at the request of the %s. A %s has been issued for %s. This is %s.",
		originatorName, eventName, strings.Join(locations, ", "), callsign)
}
