package same

import (
	"fmt"
	"strings"
	"time"
)

// Message is a SAME header:
//
//	ZCZC-ORG-EEE-PSSCCC[-PSSCCC...]+TTTT-JJJHHMM-LLLLLLLL-
//
// A Message is immutable and always satisfies the header grammar; build one
// with NewMessage, Create or Parse.
type Message struct {
	originator string
	event      string
	locations  []string
	purgeTime  string // HHMM
	issueTime  string // JJJHHMM
	callsign   string
}

// NewMessage validates the fields and returns the corresponding Message.
// The location slice is copied.
func NewMessage(originator, event string, locations []string, purgeTime, issueTime, callsign string) (Message, error) {
	if err := checkLetters("originator", originator, 3); err != nil {
		return Message{}, err
	}
	if err := checkLetters("event", event, 3); err != nil {
		return Message{}, err
	}
	if len(locations) == 0 {
		return Message{}, &ValidationError{Field: "locations", Reason: "at least one location code required"}
	}
	for _, loc := range locations {
		if err := checkDigits("location", loc, 6); err != nil {
			return Message{}, err
		}
	}
	if err := checkDigits("purge time", purgeTime, 4); err != nil {
		return Message{}, err
	}
	if err := checkDigits("issue time", issueTime, 7); err != nil {
		return Message{}, err
	}
	if err := checkCallsign(callsign); err != nil {
		return Message{}, err
	}

	return Message{
		originator: originator,
		event:      event,
		locations:  append([]string(nil), locations...),
		purgeTime:  purgeTime,
		issueTime:  issueTime,
		callsign:   callsign,
	}, nil
}

// Create builds a Message issued at the given instant, valid for
// durationMinutes. Codes and callsign are uppercased. Durations that do not
// fit the HHMM purge field (negative, or 100 hours and more) are rejected by
// validation rather than capped.
func Create(originator, event string, locations []string, durationMinutes int, callsign string, issued time.Time) (Message, error) {
	issued = issued.UTC()
	issueTime := fmt.Sprintf("%03d%02d%02d", issued.YearDay(), issued.Hour(), issued.Minute())

	purgeTime := fmt.Sprintf("%02d%02d", durationMinutes/60, durationMinutes%60)
	if durationMinutes < 0 {
		purgeTime = fmt.Sprintf("%d", durationMinutes)
	}

	return NewMessage(
		strings.ToUpper(originator),
		strings.ToUpper(event),
		locations,
		purgeTime,
		issueTime,
		strings.ToUpper(callsign),
	)
}

func (m Message) Originator() string { return m.originator }
func (m Message) Event() string      { return m.event }
func (m Message) PurgeTime() string  { return m.purgeTime }
func (m Message) IssueTime() string  { return m.issueTime }
func (m Message) Callsign() string   { return m.callsign }

// Locations returns a copy of the location codes in transmission order.
func (m Message) Locations() []string {
	return append([]string(nil), m.locations...)
}

// String renders the header in wire format. The zero Message renders as "".
func (m Message) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s-%s+%s-%s-%s-",
		HeaderStart, m.originator, m.event, strings.Join(m.locations, "-"),
		m.purgeTime, m.issueTime, m.callsign)
}

// IsZero reports whether m is the zero Message.
func (m Message) IsZero() bool {
	return m.originator == ""
}

// PurgeDuration returns the purge time as a duration, zero for the zero
// Message.
func (m Message) PurgeDuration() time.Duration {
	if m.IsZero() {
		return 0
	}
	hours := atoi(m.purgeTime[:2])
	minutes := atoi(m.purgeTime[2:])
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
}

// IssuedAt reconstructs the issue instant in the given year. The header only
// carries the day of year, so the year has to come from the caller. The zero
// Message yields the zero time.
func (m Message) IssuedAt(year int) time.Time {
	if m.IsZero() {
		return time.Time{}
	}
	day := atoi(m.issueTime[:3])
	hour := atoi(m.issueTime[3:5])
	minute := atoi(m.issueTime[5:7])

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, day-1).
		Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ExpiresAt returns the instant the alert becomes void, interpreting the
// issue time in the given year. Near year boundaries the answer depends on
// picking the right year.
func (m Message) ExpiresAt(year int) time.Time {
	if m.IsZero() {
		return time.Time{}
	}
	return m.IssuedAt(year).Add(m.PurgeDuration())
}

func checkLetters(field, value string, n int) error {
	if len(value) != n {
		return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("must be %d characters", n)}
	}
	for i := 0; i < len(value); i++ {
		if !isUpper(value[i]) {
			return &ValidationError{Field: field, Value: value, Reason: "must be uppercase letters"}
		}
	}
	return nil
}

func checkDigits(field, value string, n int) error {
	if len(value) != n {
		return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("must be %d digits", n)}
	}
	for i := 0; i < len(value); i++ {
		if !isDigit(value[i]) {
			return &ValidationError{Field: field, Value: value, Reason: "must be numeric"}
		}
	}
	return nil
}

func checkCallsign(value string) error {
	if len(value) < 1 || len(value) > MaxCallsignLen {
		return &ValidationError{Field: "callsign", Value: value, Reason: fmt.Sprintf("must be 1-%d characters", MaxCallsignLen)}
	}
	for i := 0; i < len(value); i++ {
		if !isCallsignChar(value[i]) {
			return &ValidationError{Field: "callsign", Value: value, Reason: "allowed characters are A-Z, 0-9, / and -"}
		}
	}
	return nil
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isCallsignChar(c byte) bool {
	return isUpper(c) || isDigit(c) || c == '/' || c == '-'
}

// atoi converts a string already validated as digits.
func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
