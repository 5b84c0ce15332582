package aqi

// Category is a coarse health classification of an index value.
type Category string

const (
	CategoryGood      Category = "good"
	CategoryModerate  Category = "moderate"
	CategoryUnhealthy Category = "unhealthy"
	CategoryHazardous Category = "hazardous"
	CategoryNoData    Category = "no_data"
)

// Band describes one category's index range and display attributes.
type Band struct {
	Category Category
	// Floor and Ceiling bound the index values that fall in this band.
	// A value v belongs to the first band with v <= Ceiling.
	Floor   int
	Ceiling int
	Color   string
	// Radius is the display radius in metres.
	Radius int
}

// Bands is the single threshold table behind Classify, DisplayColor,
// DisplayRadius and the heatmap intensity ranges.
var Bands = []Band{
	{Category: CategoryGood, Floor: 0, Ceiling: 50, Color: "#22c55e", Radius: 400},
	{Category: CategoryModerate, Floor: 50, Ceiling: 100, Color: "#eab308", Radius: 700},
	{Category: CategoryUnhealthy, Floor: 100, Ceiling: 150, Color: "#ef4444", Radius: 1000},
	{Category: CategoryHazardous, Floor: 150, Ceiling: MaxIndex, Color: "#a855f7", Radius: 1400},
}

var noData = Band{Category: CategoryNoData, Color: "#374151", Radius: 400}

// BandFor returns the band containing index, and false for a nil index.
// Values above the last ceiling belong to the last band.
func BandFor(index *int) (Band, bool) {
	if index == nil {
		return noData, false
	}
	for _, b := range Bands {
		if *index <= b.Ceiling {
			return b, true
		}
	}
	return Bands[len(Bands)-1], true
}

// Classify returns the category for an index.
func Classify(index *int) Category {
	b, _ := BandFor(index)
	return b.Category
}

// DisplayColor returns the hex color used to render an index.
func DisplayColor(index *int) string {
	b, _ := BandFor(index)
	return b.Color
}

// DisplayRadius returns the marker radius in metres for an index.
func DisplayRadius(index *int) int {
	b, _ := BandFor(index)
	return b.Radius
}

// Label returns a human-readable name for the category.
func (c Category) Label() string {
	switch c {
	case CategoryGood:
		return "Good"
	case CategoryModerate:
		return "Moderate"
	case CategoryUnhealthy:
		return "Unhealthy"
	case CategoryHazardous:
		return "Hazardous"
	default:
		return "No data"
	}
}
