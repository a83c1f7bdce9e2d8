package same

import "fmt"

// ValidationError reports a Message field that violates the header grammar.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseError reports header text that neither the strict nor the lenient
// grammar accepts.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid SAME header %q: %s", e.Input, e.Reason)
}
