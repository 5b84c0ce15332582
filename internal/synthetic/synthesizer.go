// Package synthetic produces plausible stand-in environmental data used when
// the live sources are unavailable.
package synthetic

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/breatheroute/envwatch/internal/aqi"
	"github.com/breatheroute/envwatch/internal/environment"
)

// Points is the number of hourly samples in a synthesized series.
const Points = 24

// Lower bounds for synthesized values.
const (
	MinPM25        = 3.0
	MinPM10        = 5.0
	MinNO2         = 10.0
	MinO3          = 20.0
	MinCO          = 100.0
	MinTemperature = 5.0
	MinHumidity    = 40.0
	MaxHumidity    = 100.0
	MinWindSpeed   = 0.5
)

// Hydro fallback reading.
const (
	DemoStationName = "KÖLN (Demo)"
	DemoLevelCM     = 304.0
	DemoDischarge   = 1910.0
	DemoWaterTemp   = 9.1
	demoOffset      = 0.0005
)

// wave is one synthesized signal: base + amp*f(i/period) + jitter*U[0,1).
type wave struct {
	base, amp, period, jitter float64
	fn                        func(float64) float64
	lo, hi                    float64
}

func (w wave) at(i int, r float64) float64 {
	v := w.base + w.fn(float64(i)/w.period)*w.amp + r*w.jitter
	return math.Min(math.Max(v, w.lo), w.hi)
}

var (
	pm25Wave     = wave{base: 8, amp: 4, period: 3, jitter: 2, fn: math.Sin, lo: MinPM25, hi: math.Inf(1)}
	pm10Wave     = wave{base: 15, amp: 5, period: 4, jitter: 3, fn: math.Cos, lo: MinPM10, hi: math.Inf(1)}
	no2Wave      = wave{base: 20, amp: 8, period: 5, jitter: 5, fn: math.Sin, lo: MinNO2, hi: math.Inf(1)}
	o3Wave       = wave{base: 40, amp: 10, period: 6, jitter: 7, fn: math.Cos, lo: MinO3, hi: math.Inf(1)}
	coWave       = wave{base: 200, amp: 50, period: 7, jitter: 30, fn: math.Sin, lo: MinCO, hi: math.Inf(1)}
	tempWave     = wave{base: 15, amp: 10, period: 8, jitter: 4, fn: math.Sin, lo: MinTemperature, hi: math.Inf(1)}
	humidityWave = wave{base: 60, amp: 20, period: 9, jitter: 10, fn: math.Cos, lo: MinHumidity, hi: MaxHumidity}
	windWave     = wave{base: 2, amp: 1.5, period: 10, jitter: 1, fn: math.Sin, lo: MinWindSpeed, hi: math.Inf(1)}
)

// Synthesizer generates synthetic snapshots. It is safe for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Synthesizer drawing jitter from src. A nil src uses a randomly seeded PCG.
func New(src rand.Source) *Synthesizer {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Synthesizer{rng: rand.New(src)}
}

func (s *Synthesizer) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Environment synthesizes a 24-hour series ending at anchor for the given location.
// The current reading equals the last element of the series.
func (s *Synthesizer) Environment(anchor time.Time, at environment.Coordinate) *environment.Snapshot {
	air := environment.AirSeries{
		Time: make([]time.Time, 0, Points),
		PM25: make([]*float64, 0, Points),
		PM10: make([]*float64, 0, Points),
		NO2:  make([]*float64, 0, Points),
		O3:   make([]*float64, 0, Points),
		CO:   make([]*float64, 0, Points),
	}
	wx := environment.WeatherSeries{
		Time:        make([]time.Time, 0, Points),
		Temperature: make([]*float64, 0, Points),
		Humidity:    make([]*float64, 0, Points),
		WindSpeed:   make([]*float64, 0, Points),
	}

	for i := Points - 1; i >= 0; i-- {
		ts := anchor.Add(-time.Duration(i) * time.Hour)

		air.Time = append(air.Time, ts)
		air.PM25 = append(air.PM25, environment.Float(pm25Wave.at(i, s.float())))
		air.PM10 = append(air.PM10, environment.Float(pm10Wave.at(i, s.float())))
		air.NO2 = append(air.NO2, environment.Float(no2Wave.at(i, s.float())))
		air.O3 = append(air.O3, environment.Float(o3Wave.at(i, s.float())))
		air.CO = append(air.CO, environment.Float(coWave.at(i, s.float())))

		wx.Time = append(wx.Time, ts)
		wx.Temperature = append(wx.Temperature, environment.Float(tempWave.at(i, s.float())))
		wx.Humidity = append(wx.Humidity, environment.Float(humidityWave.at(i, s.float())))
		wx.WindSpeed = append(wx.WindSpeed, environment.Float(windWave.at(i, s.float())))
	}

	current := air.Latest()
	last := len(wx.Time) - 1

	return &environment.Snapshot{
		Location:  at,
		Index:     aqi.FromPM25(current.PM25),
		Current:   current,
		AirHourly: air,
		CurrentWeather: environment.WeatherSnapshot{
			Temperature: *wx.Temperature[last],
			WindSpeed:   *wx.WindSpeed[last],
			Time:        anchor,
		},
		WeatherHourly: wx,
		Provenance:    environment.ProvenanceSynthetic,
		GeneratedAt:   anchor,
	}
}

// Hydro returns the fixed demo gauge reading placed next to the default location.
func (s *Synthesizer) Hydro(anchor time.Time) *environment.HydroSnapshot {
	loc := environment.DefaultCoordinate.Offset(demoOffset, demoOffset)
	observed := anchor

	return &environment.HydroSnapshot{
		StationName: DemoStationName,
		Location:    &loc,
		ObservedAt:  &observed,
		Level:       &environment.Measurement{Value: DemoLevelCM, Unit: "cm"},
		Discharge:   &environment.Measurement{Value: DemoDischarge, Unit: "m³/s"},
		WaterTemp:   &environment.Measurement{Value: DemoWaterTemp, Unit: "°C"},
		Provenance:  environment.ProvenanceSynthetic,
		GeneratedAt: anchor,
	}
}
