// Package heatmap builds a jittered grid of intensity points around a location
// for rendering as an air quality heat layer.
package heatmap

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/breatheroute/envwatch/internal/aqi"
	"github.com/breatheroute/envwatch/internal/environment"
)

// Grid geometry.
const (
	GridSize       = 10
	LatSpan        = 0.05
	LonSpan        = 0.10
	PositionNoise  = 0.005
	IntensityNoise = 0.1

	MinIntensity = 0.1
	MaxIntensity = 1.0

	// bandStep is the intensity range covered by one index band.
	bandStep = 0.2
)

// Point is one weighted heat sample.
type Point struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity float64 `json:"intensity"`
}

// Generator produces heatmap fields. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator. A nil src uses a randomly seeded PCG.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

// Points returns GridSize*GridSize samples covering center ±LatSpan/±LonSpan.
// A nil index yields no points.
func (g *Generator) Points(center environment.Coordinate, index *int) []Point {
	if index == nil {
		return []Point{}
	}
	base := BaseIntensity(*index)

	g.mu.Lock()
	defer g.mu.Unlock()

	minLat, minLon := center.Lat-LatSpan, center.Lon-LonSpan
	latRange, lonRange := 2*LatSpan, 2*LonSpan

	points := make([]Point, 0, GridSize*GridSize)
	for i := 0; i < GridSize; i++ {
		for j := 0; j < GridSize; j++ {
			lat := minLat + latRange*float64(i)/GridSize + (g.rng.Float64()-0.5)*PositionNoise
			lon := minLon + lonRange*float64(j)/GridSize + (g.rng.Float64()-0.5)*PositionNoise
			intensity := base + (g.rng.Float64()-0.5)*IntensityNoise

			points = append(points, Point{
				Lat:       lat,
				Lon:       lon,
				Intensity: clamp(intensity, MinIntensity, MaxIntensity),
			})
		}
	}
	return points
}

// BaseIntensity maps an index onto [0.2, 1.0] by linear interpolation within
// its category band, each band spanning 0.2 of intensity.
func BaseIntensity(index int) float64 {
	b, _ := aqi.BandFor(&index)
	ordinal := 0
	for i, band := range aqi.Bands {
		if band.Category == b.Category {
			ordinal = i
			break
		}
	}

	frac := float64(index-b.Floor) / float64(b.Ceiling-b.Floor)
	return bandStep*float64(ordinal+1) + clamp(frac, 0, 1)*bandStep
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
