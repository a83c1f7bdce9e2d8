package same

import (
	"fmt"
	"strings"
)

// Parse reads a SAME header. The text is normalized first (uppercased,
// trimmed, whitespace around '-' and '+' removed, "ZCZC-" prefix and trailing
// '-' added when missing), then matched against the strict header grammar.
// When that fails a lenient pass tolerant of decoder artifacts is tried:
// location runs of the wrong length are zero-padded or truncated to six
// digits, unusable runs are dropped and spaces inside the callsign are
// removed.
func Parse(text string) (Message, error) {
	header := normalizeHeader(text)

	if m, err := parseStrict(header); err == nil {
		return m, nil
	}

	m, err := parseLenient(header)
	if err != nil {
		return Message{}, &ParseError{Input: text, Reason: err.Error()}
	}
	return m, nil
}

func normalizeHeader(text string) string {
	text = strings.ToUpper(strings.TrimSpace(text))

	var b strings.Builder
	b.Grow(len(text) + 6)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !isSpace(c) {
			b.WriteByte(c)
			continue
		}
		// drop a whitespace run that touches a delimiter on either side
		j := i
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		prev := byte(0)
		if b.Len() > 0 {
			prev = b.String()[b.Len()-1]
		}
		next := byte(0)
		if j < len(text) {
			next = text[j]
		}
		if !isDelimiter(prev) && !isDelimiter(next) {
			b.WriteString(text[i:j])
		}
		i = j - 1
	}
	header := b.String()

	switch {
	case strings.HasPrefix(header, HeaderStart+"-"):
	case strings.HasPrefix(header, HeaderStart):
		header = HeaderStart + "-" + header[len(HeaderStart):]
	default:
		header = HeaderStart + "-" + header
	}
	if !strings.HasSuffix(header, "-") {
		header += "-"
	}
	return header
}

func isSpace(c byte) bool     { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }
func isDelimiter(c byte) bool { return c == '-' || c == '+' }

// scanner walks a normalized header left to right.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) peek() byte {
	if sc.pos >= len(sc.s) {
		return 0
	}
	return sc.s[sc.pos]
}

func (sc *scanner) expect(lit string) error {
	if !strings.HasPrefix(sc.s[sc.pos:], lit) {
		return fmt.Errorf("expected %q at offset %d", lit, sc.pos)
	}
	sc.pos += len(lit)
	return nil
}

// run consumes up to the next occurrence of stop (exclusive) and the stop byte
// itself.
func (sc *scanner) run(stop byte) (string, error) {
	i := strings.IndexByte(sc.s[sc.pos:], stop)
	if i < 0 {
		return "", fmt.Errorf("missing %q after offset %d", stop, sc.pos)
	}
	out := sc.s[sc.pos : sc.pos+i]
	sc.pos += i + 1
	return out, nil
}

func (sc *scanner) fixed(n int, class func(byte) bool, what string) (string, error) {
	if sc.pos+n > len(sc.s) {
		return "", fmt.Errorf("truncated %s at offset %d", what, sc.pos)
	}
	for i := sc.pos; i < sc.pos+n; i++ {
		if !class(sc.s[i]) {
			return "", fmt.Errorf("invalid %s at offset %d", what, sc.pos)
		}
	}
	out := sc.s[sc.pos : sc.pos+n]
	sc.pos += n
	return out, nil
}

// codes reads "ZCZC-ORG-EEE-", shared by both stages.
func (sc *scanner) codes() (originator, event string, err error) {
	if err = sc.expect(HeaderStart + "-"); err != nil {
		return "", "", err
	}
	if originator, err = sc.fixed(3, isUpper, "originator"); err != nil {
		return "", "", err
	}
	if err = sc.expect("-"); err != nil {
		return "", "", err
	}
	if event, err = sc.fixed(3, isUpper, "event"); err != nil {
		return "", "", err
	}
	if err = sc.expect("-"); err != nil {
		return "", "", err
	}
	return originator, event, nil
}

// times reads "TTTT-JJJHHMM-" following the '+'.
func (sc *scanner) times() (purge, issue string, err error) {
	if purge, err = sc.fixed(4, isDigit, "purge time"); err != nil {
		return "", "", err
	}
	if err = sc.expect("-"); err != nil {
		return "", "", err
	}
	if issue, err = sc.fixed(7, isDigit, "issue time"); err != nil {
		return "", "", err
	}
	if err = sc.expect("-"); err != nil {
		return "", "", err
	}
	return purge, issue, nil
}

// rest returns the callsign, everything left before the final '-'.
func (sc *scanner) rest() (string, error) {
	tail := sc.s[sc.pos:]
	if len(tail) < 2 || tail[len(tail)-1] != '-' {
		return "", fmt.Errorf("missing callsign at offset %d", sc.pos)
	}
	sc.pos = len(sc.s)
	return tail[:len(tail)-1], nil
}

func parseStrict(header string) (Message, error) {
	sc := &scanner{s: header}

	originator, event, err := sc.codes()
	if err != nil {
		return Message{}, err
	}

	var locations []string
	for {
		loc, err := sc.fixed(6, isDigit, "location")
		if err != nil {
			return Message{}, err
		}
		locations = append(locations, loc)
		if sc.peek() != '-' {
			break
		}
		sc.pos++
	}
	if err := sc.expect("+"); err != nil {
		return Message{}, err
	}

	purge, issue, err := sc.times()
	if err != nil {
		return Message{}, err
	}

	callsign, err := sc.rest()
	if err != nil {
		return Message{}, err
	}

	return NewMessage(originator, event, locations, purge, issue, callsign)
}

func parseLenient(header string) (Message, error) {
	sc := &scanner{s: header}

	originator, event, err := sc.codes()
	if err != nil {
		return Message{}, err
	}

	field, err := sc.run('+')
	if err != nil {
		return Message{}, err
	}
	locations := repairLocations(field)
	if len(locations) == 0 {
		return Message{}, fmt.Errorf("no usable location codes in %q", field)
	}

	purge, issue, err := sc.times()
	if err != nil {
		return Message{}, err
	}

	callsign, err := sc.rest()
	if err != nil {
		return Message{}, err
	}
	callsign = strings.Join(strings.Fields(callsign), "")
	if len(callsign) > MaxCallsignLen {
		callsign = callsign[:MaxCallsignLen]
	}

	return NewMessage(originator, event, locations, purge, issue, callsign)
}

// repairLocations splits a dash separated location field, left-pads short
// digit runs to six digits, truncates long ones and drops anything else.
func repairLocations(field string) []string {
	var out []string
	for _, run := range strings.Split(field, "-") {
		run = strings.TrimSpace(run)
		if run == "" || !allDigits(run) {
			continue
		}
		switch {
		case len(run) < 6:
			run = strings.Repeat("0", 6-len(run)) + run
		case len(run) > 6:
			run = run[:6]
		}
		out = append(out, run)
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
