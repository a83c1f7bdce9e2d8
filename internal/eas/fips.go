package eas

import (
	"fmt"
	"sort"
)

// State FIPS codes (ANSI INCITS 38), territories and NWS marine areas
var states = map[string]string{
	"00": "United States",
	"01": "Alabama",
	"02": "Alaska",
	"04": "Arizona",
	"05": "Arkansas",
	"06": "California",
	"08": "Colorado",
	"09": "Connecticut",
	"10": "Delaware",
	"11": "District of Columbia",
	"12": "Florida",
	"13": "Georgia",
	"15": "Hawaii",
	"16": "Idaho",
	"17": "Illinois",
	"18": "Indiana",
	"19": "Iowa",
	"20": "Kansas",
	"21": "Kentucky",
	"22": "Louisiana",
	"23": "Maine",
	"24": "Maryland",
	"25": "Massachusetts",
	"26": "Michigan",
	"27": "Minnesota",
	"28": "Mississippi",
	"29": "Missouri",
	"30": "Montana",
	"31": "Nebraska",
	"32": "Nevada",
	"33": "New Hampshire",
	"34": "New Jersey",
	"35": "New Mexico",
	"36": "New York",
	"37": "North Carolina",
	"38": "North Dakota",
	"39": "Ohio",
	"40": "Oklahoma",
	"41": "Oregon",
	"42": "Pennsylvania",
	"44": "Rhode Island",
	"45": "South Carolina",
	"46": "South Dakota",
	"47": "Tennessee",
	"48": "Texas",
	"49": "Utah",
	"50": "Vermont",
	"51": "Virginia",
	"53": "Washington",
	"54": "West Virginia",
	"55": "Wisconsin",
	"56": "Wyoming",
	"60": "American Samoa",
	"66": "Guam",
	"69": "Northern Mariana Islands",
	"72": "Puerto Rico",
	"78": "Virgin Islands",
	"91": "Lake Superior",
	"92": "Lake Michigan",
	"93": "Lake Huron",
	"94": "Lake St. Clair",
	"95": "Lake Erie",
}

var subdivisions = [10]string{
	"Entire area",
	"Northwest",
	"North",
	"Northeast",
	"West",
	"Central",
	"East",
	"Southwest",
	"South",
	"Southeast",
}

// State is one row of the state table
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// States lists the state table ordered by code
func States() []State {
	out := make([]State, 0, len(states))
	for code, name := range states {
		out = append(out, State{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// StateName returns the state for a 2-digit code, or "Unknown state: SS"
func StateName(code string) string {
	if name, ok := states[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown state: %s", code)
}

// Location is a PSSCCC location code split into its parts
type Location struct {
	Subdivision string `json:"subdivision"`
	State       string `json:"state"`
	County      string `json:"county"`
	Raw         string `json:"raw"`
}

// ParseLocation splits a 6-digit location code
func ParseLocation(code string) (Location, error) {
	if len(code) != 6 {
		return Location{}, fmt.Errorf("invalid location code %q: must be 6 digits", code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return Location{}, fmt.Errorf("invalid location code %q: must be numeric", code)
		}
	}
	return Location{
		Subdivision: code[0:1],
		State:       code[1:3],
		County:      code[3:6],
		Raw:         code,
	}, nil
}

// BuildLocation assembles a location code. Empty county and subdivision
// default to the whole state and entire area.
func BuildLocation(state, county, subdivision string) string {
	if county == "" {
		county = "000"
	}
	if subdivision == "" {
		subdivision = "0"
	}
	return subdivision + state + county
}

// SubdivisionName returns the name of a 1-digit subdivision code
func SubdivisionName(code string) string {
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return subdivisions[code[0]-'0']
	}
	return ""
}

// FormatLocation renders a location code for people, for example
// "Northwest County 095, Missouri". Invalid codes are returned unchanged.
func FormatLocation(code string) string {
	loc, err := ParseLocation(code)
	if err != nil {
		return code
	}

	state := StateName(loc.State)
	sub := SubdivisionName(loc.Subdivision)

	place := state
	if loc.County != "000" {
		place = fmt.Sprintf("County %s, %s", loc.County, state)
	}
	if loc.Subdivision != "0" {
		place = sub + " " + place
	}
	return place
}
