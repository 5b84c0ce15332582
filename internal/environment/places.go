package environment

import "strings"

// Place is a named coordinate the user can jump to.
type Place struct {
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
}

// Location labels.
const (
	DefaultLabel  = "Cologne, Germany"
	DeviceLabel   = "Your Location"
	SelectedLabel = "Selected Point"
)

// DefaultCoordinate is the fallback location when nothing else is known.
var DefaultCoordinate = Coordinate{Lat: 50.9375, Lon: 6.9603}

// DefaultPlace returns the default location.
func DefaultPlace() Place {
	return Place{Name: DefaultLabel, Coordinate: DefaultCoordinate}
}

// Presets returns the quick-select locations around Cologne.
func Presets() []Place {
	return []Place{
		{Name: "Altstadt-Nord", Coordinate: Coordinate{Lat: 50.9413, Lon: 6.9583}},
		{Name: "Deutz", Coordinate: Coordinate{Lat: 50.9406, Lon: 6.9747}},
		{Name: "Ehrenfeld", Coordinate: Coordinate{Lat: 50.9549, Lon: 6.9083}},
		{Name: "Südstadt", Coordinate: Coordinate{Lat: 50.9174, Lon: 6.9608}},
		{Name: "Leverkusen Boundary", Coordinate: Coordinate{Lat: 50.9845, Lon: 7.0008}},
	}
}

// LookupPreset finds a preset by name, ignoring case.
func LookupPreset(name string) (Place, bool) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Place{}, false
}
