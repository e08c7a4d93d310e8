package audit

// Hotspot is a named high-risk coordinate used when an audit request carries
// a state code but no coordinate.
type Hotspot struct {
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	StateCode string  `json:"state_code"`
}

var hotspots = map[string]Hotspot{
	"DELHI": {
		Name:      "Yamuna Floodplain (Okhla)",
		Lat:       28.545,
		Lng:       77.300,
		StateCode: "DELHI",
	},
	"UP": {
		Name:      "Sonbhadra Mining Belt",
		Lat:       24.150,
		Lng:       82.900,
		StateCode: "UP",
	},
}

// HotspotFor returns the preset coordinate for a state code.
func HotspotFor(stateCode string) (Hotspot, bool) {
	h, ok := hotspots[stateCode]
	return h, ok
}

// Hotspots returns all presets, for sweep runs.
func Hotspots() []Hotspot {
	out := make([]Hotspot, 0, len(hotspots))
	for _, code := range []string{"DELHI", "UP"} {
		out = append(out, hotspots[code])
	}
	return out
}
