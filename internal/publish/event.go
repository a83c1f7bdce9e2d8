package publish

import (
	"time"

	"github.com/Koooper/EAS-Webapp/internal/same"
)

// Kind says where an alert event came from
type Kind string

const (
	KindEncoded   Kind = "encoded"
	KindDecoded   Kind = "decoded"
	KindMonitored Kind = "monitored"
)

// AlertEvent is the JSON document written for every alert the service
// produces or hears. Header fields are empty for EOM bursts and for headers
// that failed to parse.
type AlertEvent struct {
	Kind       Kind      `json:"kind"`
	Raw        string    `json:"raw"`
	Burst      same.Kind `json:"burst"`
	Originator string    `json:"originator,omitempty"`
	Event      string    `json:"event,omitempty"`
	Locations  []string  `json:"locations,omitempty"`
	PurgeTime  string    `json:"purge_time,omitempty"`
	IssueTime  string    `json:"issue_time,omitempty"`
	Callsign   string    `json:"callsign,omitempty"`
	ParseError string    `json:"parse_error,omitempty"`
	Source     string    `json:"source"`
	StreamID   *uint32   `json:"stream_id,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewEncodedEvent describes an alert the service synthesized
func NewEncodedEvent(m same.Message, source string, at time.Time) AlertEvent {
	e := AlertEvent{Kind: KindEncoded, Raw: m.String(), Burst: same.KindHeader, Source: source, ObservedAt: at.UTC()}
	e.setMessage(m)
	return e
}

// NewDecodedEvent describes a burst recovered from audio. A non-nil streamID
// marks it as heard on a monitored stream.
func NewDecodedEvent(dm same.DecodedMessage, source string, streamID *uint32, at time.Time) AlertEvent {
	kind := KindDecoded
	if streamID != nil {
		kind = KindMonitored
	}

	e := AlertEvent{
		Kind:       kind,
		Raw:        dm.Raw,
		Burst:      dm.Kind,
		Source:     source,
		StreamID:   streamID,
		ObservedAt: at.UTC(),
	}
	switch {
	case dm.Err != nil:
		e.ParseError = dm.Err.Error()
	case dm.Kind == same.KindHeader:
		e.setMessage(dm.Message)
	}
	return e
}

func (e *AlertEvent) setMessage(m same.Message) {
	e.Originator = m.Originator()
	e.Event = m.Event()
	e.Locations = m.Locations()
	e.PurgeTime = m.PurgeTime()
	e.IssueTime = m.IssueTime()
	e.Callsign = m.Callsign()
}
