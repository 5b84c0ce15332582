package synthetic_test

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/aqi"
	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/synthetic"
)

func assertAtLeast(t *testing.T, values []*float64, floor float64, name string) {
	t.Helper()
	for i, v := range values {
		require.NotNil(t, v, "%s[%d]", name, i)
		assert.GreaterOrEqual(t, *v, floor, "%s[%d]", name, i)
	}
}

func TestSynthesizer_Environment(t *testing.T) {
	s := synthetic.New(rand.NewPCG(1, 2))
	anchor := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	at := environment.Coordinate{Lat: 50.94, Lon: 6.95}

	for run := 0; run < 50; run++ {
		snap := s.Environment(anchor, at)
		require.NotNil(t, snap)

		require.NoError(t, snap.AirHourly.Validate())
		require.NoError(t, snap.WeatherHourly.Validate())
		assert.Equal(t, synthetic.Points, snap.AirHourly.Len())
		assert.Equal(t, synthetic.Points, snap.WeatherHourly.Len())

		assert.Equal(t, anchor.Add(-23*time.Hour), snap.AirHourly.Time[0])
		assert.Equal(t, anchor, snap.AirHourly.Time[synthetic.Points-1])
		assert.Equal(t, snap.AirHourly.Time, snap.WeatherHourly.Time)

		assertAtLeast(t, snap.AirHourly.PM25, synthetic.MinPM25, "pm25")
		assertAtLeast(t, snap.AirHourly.PM10, synthetic.MinPM10, "pm10")
		assertAtLeast(t, snap.AirHourly.NO2, synthetic.MinNO2, "no2")
		assertAtLeast(t, snap.AirHourly.O3, synthetic.MinO3, "o3")
		assertAtLeast(t, snap.AirHourly.CO, synthetic.MinCO, "co")
		assertAtLeast(t, snap.WeatherHourly.Temperature, synthetic.MinTemperature, "temperature")
		assertAtLeast(t, snap.WeatherHourly.Humidity, synthetic.MinHumidity, "humidity")
		assertAtLeast(t, snap.WeatherHourly.WindSpeed, synthetic.MinWindSpeed, "wind")
		for _, h := range snap.WeatherHourly.Humidity {
			assert.LessOrEqual(t, *h, synthetic.MaxHumidity)
		}

		last := synthetic.Points - 1
		assert.Equal(t, *snap.AirHourly.PM25[last], *snap.Current.PM25)
		assert.Equal(t, *snap.AirHourly.CO[last], *snap.Current.CO)
		assert.Equal(t, *snap.WeatherHourly.Temperature[last], snap.CurrentWeather.Temperature)
		assert.Equal(t, *snap.WeatherHourly.WindSpeed[last], snap.CurrentWeather.WindSpeed)

		assert.Equal(t, aqi.FromPM25(snap.Current.PM25), snap.Index)
		assert.Equal(t, at, snap.Location)
		assert.Equal(t, environment.ProvenanceSynthetic, snap.Provenance)
	}
}

func TestSynthesizer_Deterministic(t *testing.T) {
	anchor := time.Now()
	a := synthetic.New(rand.NewPCG(7, 7)).Environment(anchor, environment.DefaultCoordinate)
	b := synthetic.New(rand.NewPCG(7, 7)).Environment(anchor, environment.DefaultCoordinate)
	assert.Equal(t, a, b)
}

func TestSynthesizer_Hydro(t *testing.T) {
	s := synthetic.New(nil)
	anchor := time.Now()

	h := s.Hydro(anchor)
	require.NotNil(t, h)
	assert.Equal(t, synthetic.DemoStationName, h.StationName)
	require.NotNil(t, h.Level)
	assert.Equal(t, 304.0, h.Level.Value)
	assert.Equal(t, 1910.0, h.Discharge.Value)
	assert.Equal(t, 9.1, h.WaterTemp.Value)
	require.NotNil(t, h.Location)
	assert.InDelta(t, environment.DefaultCoordinate.Lat+0.0005, h.Location.Lat, 1e-9)
	assert.InDelta(t, environment.DefaultCoordinate.Lon+0.0005, h.Location.Lon, 1e-9)
	assert.Equal(t, environment.ProvenanceSynthetic, h.Provenance)
}

func TestSynthesizer_ConcurrentUse(t *testing.T) {
	s := synthetic.New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := s.Environment(time.Now(), environment.DefaultCoordinate)
			assert.NoError(t, snap.AirHourly.Validate())
		}()
	}
	wg.Wait()
}
