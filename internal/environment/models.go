// Package environment defines the shared data model for environmental
// conditions: coordinates, hourly pollutant and weather series, hydrological
// readings and the snapshots published by the refresh orchestrator.
package environment

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Errors surfaced by source clients and the geolocation provider.
var (
	// ErrNetworkFailure indicates the upstream was unreachable or answered non-2xx.
	ErrNetworkFailure = errors.New("network failure")

	// ErrInvalidPayload indicates the upstream response could not be decoded
	// or lacked required structure (e.g. the hourly time axis).
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrTimeout indicates a request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrGeolocationDenied indicates the position could not be obtained.
	ErrGeolocationDenied = errors.New("geolocation denied")

	// ErrGeolocationUnsupported indicates no position source is available.
	ErrGeolocationUnsupported = errors.New("geolocation unsupported")

	// ErrInvalidCoordinates indicates a coordinate outside WGS84 bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provenance tags whether a snapshot came from upstream or was synthesized.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports ErrInvalidCoordinates for non-finite or out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %.6f out of range", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %.6f out of range", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// Offset returns the coordinate shifted by the given deltas.
func (c Coordinate) Offset(dLat, dLon float64) Coordinate {
	return Coordinate{Lat: c.Lat + dLat, Lon: c.Lon + dLon}
}

// PollutantReading holds pollutant concentrations at one instant.
// A nil field means the upstream omitted the value.
type PollutantReading struct {
	Time time.Time `json:"time"`
	PM25 *float64  `json:"pm25"`
	PM10 *float64  `json:"pm10"`
	NO2  *float64  `json:"no2"`
	O3   *float64  `json:"o3"`
	CO   *float64  `json:"co"`
}

// AirSeries is an hourly pollutant series. All slices share one index.
type AirSeries struct {
	Time []time.Time `json:"time"`
	PM25 []*float64  `json:"pm25"`
	PM10 []*float64  `json:"pm10"`
	NO2  []*float64  `json:"no2"`
	O3   []*float64  `json:"o3"`
	CO   []*float64  `json:"co"`
}

// Len returns the number of points on the time axis.
func (s AirSeries) Len() int {
	return len(s.Time)
}

// Validate checks that the series has a time axis and every pollutant is aligned to it.
func (s AirSeries) Validate() error {
	n := len(s.Time)
	if n == 0 {
		return fmt.Errorf("%w: empty air time axis", ErrInvalidPayload)
	}
	for name, col := range map[string][]*float64{
		"pm2_5": s.PM25, "pm10": s.PM10, "nitrogen_dioxide": s.NO2, "ozone": s.O3, "carbon_monoxide": s.CO,
	} {
		if len(col) != n {
			return fmt.Errorf("%w: %s has %d values for %d timestamps", ErrInvalidPayload, name, len(col), n)
		}
	}
	return nil
}

// Latest returns the reading at the last index. Callers must validate first.
func (s AirSeries) Latest() PollutantReading {
	i := len(s.Time) - 1
	if i < 0 {
		return PollutantReading{}
	}
	return PollutantReading{
		Time: s.Time[i],
		PM25: s.PM25[i],
		PM10: s.PM10[i],
		NO2:  s.NO2[i],
		O3:   s.O3[i],
		CO:   s.CO[i],
	}
}

// WeatherSnapshot is the current weather at the location.
type WeatherSnapshot struct {
	Temperature float64   `json:"temperature"`
	WindSpeed   float64   `json:"windSpeed"`
	Time        time.Time `json:"time"`
}

// WeatherSeries is an hourly weather series aligned like AirSeries.
type WeatherSeries struct {
	Time        []time.Time `json:"time"`
	Temperature []*float64  `json:"temperature"`
	Humidity    []*float64  `json:"humidity"`
	WindSpeed   []*float64  `json:"windSpeed"`
}

// Len returns the number of points on the time axis.
func (s WeatherSeries) Len() int {
	return len(s.Time)
}

// Validate checks the weather series alignment.
func (s WeatherSeries) Validate() error {
	n := len(s.Time)
	if n == 0 {
		return fmt.Errorf("%w: empty weather time axis", ErrInvalidPayload)
	}
	if len(s.Temperature) != n || len(s.Humidity) != n || len(s.WindSpeed) != n {
		return fmt.Errorf("%w: weather series misaligned with %d timestamps", ErrInvalidPayload, n)
	}
	return nil
}

// Measurement is a scalar with its unit as reported upstream.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// HydroReading is the parsed output of the hydrological source.
type HydroReading struct {
	StationID   string
	StationName string
	Location    *Coordinate
	ObservedAt  *time.Time
	Level       *Measurement
	Discharge   *Measurement
	WaterTemp   *Measurement
}

// HydroSnapshot is a published river gauge reading.
type HydroSnapshot struct {
	StationID   string       `json:"stationId,omitempty"`
	StationName string       `json:"stationName"`
	Location    *Coordinate  `json:"location,omitempty"`
	ObservedAt  *time.Time   `json:"observedAt,omitempty"`
	Level       *Measurement `json:"level,omitempty"`
	Discharge   *Measurement `json:"discharge,omitempty"`
	WaterTemp   *Measurement `json:"waterTemp,omitempty"`
	Provenance  Provenance   `json:"provenance"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// NewHydroSnapshot tags a reading with its provenance.
func NewHydroSnapshot(r *HydroReading, p Provenance, at time.Time) *HydroSnapshot {
	return &HydroSnapshot{
		StationID:   r.StationID,
		StationName: r.StationName,
		Location:    r.Location,
		ObservedAt:  r.ObservedAt,
		Level:       r.Level,
		Discharge:   r.Discharge,
		WaterTemp:   r.WaterTemp,
		Provenance:  p,
		GeneratedAt: at,
	}
}

// AirWeatherPayload is the joined output of the air-quality and weather sources.
type AirWeatherPayload struct {
	Air            AirSeries
	Weather        WeatherSeries
	CurrentWeather WeatherSnapshot
}

// Snapshot is one published view of the environment at a location.
// Snapshots are never mutated after publication.
type Snapshot struct {
	Location       Coordinate       `json:"location"`
	Index          *int             `json:"index"`
	Current        PollutantReading `json:"current"`
	AirHourly      AirSeries        `json:"airHourly"`
	CurrentWeather WeatherSnapshot  `json:"currentWeather"`
	WeatherHourly  WeatherSeries    `json:"weatherHourly"`
	Provenance     Provenance       `json:"provenance"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
