package eas

// Category groups event codes
type Category string

const (
	CategoryNational Category = "national"
	CategoryWeather  Category = "weather"
	CategoryCivil    Category = "civil"
	CategoryTest     Category = "test"
)

// Event describes a SAME event code
type Event struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Originator  string   `json:"originator"` // usual originator
	Priority    int      `json:"priority"`   // 1 is most urgent
}

var events = map[string]Event{
	"EAN": {Name: "Emergency Action Notification", Category: CategoryNational, Description: "National emergency, presidential message", Originator: "PEP", Priority: 1},
	"EAT": {Name: "Emergency Action Termination", Category: CategoryNational, Description: "Termination of EAN", Originator: "PEP", Priority: 1},
	"NIC": {Name: "National Information Center", Category: CategoryNational, Description: "National information statement", Originator: "PEP", Priority: 2},
	"TOR": {Name: "Tornado Warning", Category: CategoryWeather, Description: "Tornado has been sighted or indicated by radar", Originator: "WXR", Priority: 1},
	"SVR": {Name: "Severe Thunderstorm Warning", Category: CategoryWeather, Description: "Severe thunderstorm with damaging winds/hail", Originator: "WXR", Priority: 2},
	"FFW": {Name: "Flash Flood Warning", Category: CategoryWeather, Description: "Flash flooding is imminent or occurring", Originator: "WXR", Priority: 2},
	"SMW": {Name: "Special Marine Warning", Category: CategoryWeather, Description: "Hazardous marine conditions", Originator: "WXR", Priority: 3},
	"SVS": {Name: "Severe Weather Statement", Category: CategoryWeather, Description: "Follow-up to severe weather warning", Originator: "WXR", Priority: 3},
	"EWW": {Name: "Extreme Wind Warning", Category: CategoryWeather, Description: "Extreme sustained winds of 115+ mph", Originator: "WXR", Priority: 1},
	"TOA": {Name: "Tornado Watch", Category: CategoryWeather, Description: "Conditions favorable for tornadoes", Originator: "WXR", Priority: 3},
	"SVA": {Name: "Severe Thunderstorm Watch", Category: CategoryWeather, Description: "Conditions favorable for severe storms", Originator: "WXR", Priority: 4},
	"FFA": {Name: "Flash Flood Watch", Category: CategoryWeather, Description: "Conditions favorable for flash flooding", Originator: "WXR", Priority: 4},
	"FLW": {Name: "Flood Warning", Category: CategoryWeather, Description: "Flooding is imminent or occurring", Originator: "WXR", Priority: 3},
	"FLS": {Name: "Flood Statement", Category: CategoryWeather, Description: "Follow-up to flood warning", Originator: "WXR", Priority: 4},
	"FLA": {Name: "Flood Watch", Category: CategoryWeather, Description: "Conditions favorable for flooding", Originator: "WXR", Priority: 5},
	"WSW": {Name: "Winter Storm Warning", Category: CategoryWeather, Description: "Significant winter weather expected", Originator: "WXR", Priority: 3},
	"BZW": {Name: "Blizzard Warning", Category: CategoryWeather, Description: "Blizzard conditions expected", Originator: "WXR", Priority: 2},
	"WSA": {Name: "Winter Storm Watch", Category: CategoryWeather, Description: "Potential for significant winter weather", Originator: "WXR", Priority: 4},
	"WCW": {Name: "Wind Chill Warning", Category: CategoryWeather, Description: "Dangerously cold wind chills", Originator: "WXR", Priority: 3},
	"ICW": {Name: "Ice Storm Warning", Category: CategoryWeather, Description: "Significant ice accumulation expected", Originator: "WXR", Priority: 2},
	"EHW": {Name: "Excessive Heat Warning", Category: CategoryWeather, Description: "Dangerously high temperatures", Originator: "WXR", Priority: 2},
	"HWW": {Name: "High Wind Warning", Category: CategoryWeather, Description: "High sustained winds expected", Originator: "WXR", Priority: 3},
	"HUW": {Name: "Hurricane Warning", Category: CategoryWeather, Description: "Hurricane conditions expected within 36 hours", Originator: "WXR", Priority: 1},
	"HUA": {Name: "Hurricane Watch", Category: CategoryWeather, Description: "Hurricane conditions possible within 48 hours", Originator: "WXR", Priority: 2},
	"HLS": {Name: "Hurricane Statement", Category: CategoryWeather, Description: "Hurricane information statement", Originator: "WXR", Priority: 3},
	"TRW": {Name: "Tropical Storm Warning", Category: CategoryWeather, Description: "Tropical storm conditions expected", Originator: "WXR", Priority: 2},
	"TRA": {Name: "Tropical Storm Watch", Category: CategoryWeather, Description: "Tropical storm conditions possible", Originator: "WXR", Priority: 3},
	"TSW": {Name: "Tsunami Warning", Category: CategoryWeather, Description: "Tsunami expected, immediate action required", Originator: "WXR", Priority: 1},
	"TSA": {Name: "Tsunami Watch", Category: CategoryWeather, Description: "Tsunami possible, be alert", Originator: "WXR", Priority: 2},
	"FRW": {Name: "Fire Warning", Category: CategoryWeather, Description: "Wildfire threatening populated areas", Originator: "WXR", Priority: 2},
	"DSW": {Name: "Dust Storm Warning", Category: CategoryWeather, Description: "Dust storm reducing visibility", Originator: "WXR", Priority: 3},
	"VOW": {Name: "Volcano Warning", Category: CategoryWeather, Description: "Volcanic activity threatening area", Originator: "WXR", Priority: 1},
	"CDW": {Name: "Civil Danger Warning", Category: CategoryCivil, Description: "Civil emergency in progress", Originator: "CIV", Priority: 1},
	"CEM": {Name: "Civil Emergency Message", Category: CategoryCivil, Description: "Civil emergency information", Originator: "CIV", Priority: 2},
	"LAE": {Name: "Local Area Emergency", Category: CategoryCivil, Description: "Emergency affecting local area", Originator: "CIV", Priority: 2},
	"LEW": {Name: "Law Enforcement Warning", Category: CategoryCivil, Description: "Law enforcement emergency", Originator: "CIV", Priority: 1},
	"CAE": {Name: "Child Abduction Emergency", Category: CategoryCivil, Description: "AMBER Alert", Originator: "CIV", Priority: 1},
	"BLU": {Name: "Blue Alert", Category: CategoryCivil, Description: "Law enforcement officer threat", Originator: "CIV", Priority: 1},
	"SPW": {Name: "Shelter in Place Warning", Category: CategoryCivil, Description: "Shelter in place required", Originator: "CIV", Priority: 1},
	"EVA": {Name: "Evacuation Immediate", Category: CategoryCivil, Description: "Immediate evacuation required", Originator: "CIV", Priority: 1},
	"NUW": {Name: "Nuclear Power Plant Warning", Category: CategoryCivil, Description: "Nuclear power plant emergency", Originator: "CIV", Priority: 1},
	"RHW": {Name: "Radiological Hazard Warning", Category: CategoryCivil, Description: "Radiological hazard in area", Originator: "CIV", Priority: 1},
	"HMW": {Name: "Hazardous Materials Warning", Category: CategoryCivil, Description: "Hazardous materials release", Originator: "CIV", Priority: 1},
	"RWT": {Name: "Required Weekly Test", Category: CategoryTest, Description: "Weekly EAS equipment test", Originator: "EAS", Priority: 10},
	"RMT": {Name: "Required Monthly Test", Category: CategoryTest, Description: "Monthly EAS equipment test", Originator: "EAS", Priority: 10},
	"NPT": {Name: "National Periodic Test", Category: CategoryTest, Description: "National EAS test", Originator: "PEP", Priority: 5},
	"DMO": {Name: "Practice/Demo Warning", Category: CategoryTest, Description: "Practice or demonstration alert", Originator: "EAS", Priority: 10},
	"ADR": {Name: "Administrative Message", Category: CategoryCivil, Description: "Administrative information", Originator: "EAS", Priority: 8},
	"AVW": {Name: "Avalanche Warning", Category: CategoryWeather, Description: "Avalanche expected or occurring", Originator: "WXR", Priority: 2},
	"AVA": {Name: "Avalanche Watch", Category: CategoryWeather, Description: "Conditions favorable for avalanche", Originator: "WXR", Priority: 4},
}
