package eas

import (
	"fmt"
	"sort"
	"strings"
)

// Originator describes a SAME originator code
type Originator struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

var originators = map[string]Originator{
	"PEP": {Name: "Primary Entry Point System", Description: "Presidential-level alerts from FEMA IPAWS", Priority: 1},
	"CIV": {Name: "Civil Authorities", Description: "State and local government alerts", Priority: 2},
	"WXR": {Name: "National Weather Service", Description: "Weather-related warnings and watches", Priority: 3},
	"EAS": {Name: "EAS Participant", Description: "Broadcast station or cable system", Priority: 4},
}

// LookupOriginator returns the originator for a code (case-insensitive)
func LookupOriginator(code string) (Originator, bool) {
	code = strings.ToUpper(code)
	o, ok := originators[code]
	o.Code = code
	return o, ok
}

// OriginatorName returns a readable name, or "Unknown originator: XXX"
func OriginatorName(code string) string {
	if o, ok := LookupOriginator(code); ok {
		return o.Name
	}
	return fmt.Sprintf("Unknown originator: %s", strings.ToUpper(code))
}

// Originators lists all originators by priority
func Originators() []Originator {
	out := make([]Originator, 0, len(originators))
	for code := range originators {
		o, _ := LookupOriginator(code)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// LookupEvent returns the event for a code (case-insensitive)
func LookupEvent(code string) (Event, bool) {
	code = strings.ToUpper(code)
	e, ok := events[code]
	e.Code = code
	return e, ok
}

// EventName returns a readable name, or "Unknown event: XXX"
func EventName(code string) string {
	if e, ok := LookupEvent(code); ok {
		return e.Name
	}
	return fmt.Sprintf("Unknown event: %s", strings.ToUpper(code))
}

// Events lists events, optionally filtered by category, sorted by code
func Events(category Category) []Event {
	out := make([]Event, 0, len(events))
	for code := range events {
		e, _ := LookupEvent(code)
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
