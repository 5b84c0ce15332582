package refresh_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/refresh"
	"github.com/breatheroute/envwatch/internal/synthetic"
)

var errUpstream = errors.New("upstream exploded")

var baseTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeAirWeather struct {
	fn        func(call int) (*environment.AirWeatherPayload, error)
	gate      chan struct{}
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeAirWeather) Name() string { return "fake-air" }

func (f *fakeAirWeather) FetchAirAndWeather(ctx context.Context, _ environment.Coordinate) (*environment.AirWeatherPayload, error) {
	n := f.calls.Add(1)
	a := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if a <= m || f.maxActive.CompareAndSwap(m, a) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fn == nil {
		return payload(12.0), nil
	}
	return f.fn(int(n))
}

type fakeHydro struct {
	fn    func(call int) (*environment.HydroReading, error)
	calls atomic.Int32
}

func (f *fakeHydro) Name() string { return "fake-hydro" }

func (f *fakeHydro) FetchHydro(context.Context) (*environment.HydroReading, error) {
	n := f.calls.Add(1)
	if f.fn == nil {
		return reading(320), nil
	}
	return f.fn(int(n))
}

type locatorFunc func(ctx context.Context) (environment.Coordinate, error)

func (f locatorFunc) Name() string { return "fake-locator" }

func (f locatorFunc) Locate(ctx context.Context) (environment.Coordinate, error) {
	return f(ctx)
}

func payload(pm25 float64) *environment.AirWeatherPayload {
	times := []time.Time{baseTime.Add(-time.Hour), baseTime}
	return &environment.AirWeatherPayload{
		Air: environment.AirSeries{
			Time: times,
			PM25: []*float64{environment.Float(pm25 + 5), environment.Float(pm25)},
			PM10: []*float64{environment.Float(20), environment.Float(21)},
			NO2:  []*float64{environment.Float(30), nil},
			O3:   []*float64{environment.Float(40), environment.Float(41)},
			CO:   []*float64{environment.Float(200), environment.Float(210)},
		},
		Weather: environment.WeatherSeries{
			Time:        times,
			Temperature: []*float64{environment.Float(11), environment.Float(12)},
			Humidity:    []*float64{environment.Float(70), environment.Float(68)},
			WindSpeed:   []*float64{environment.Float(9), environment.Float(10)},
		},
		CurrentWeather: environment.WeatherSnapshot{Temperature: 12, WindSpeed: 10, Time: baseTime},
	}
}

func reading(level float64) *environment.HydroReading {
	return &environment.HydroReading{
		StationID:   "a6ee8177-107b-47dd-bcfd-30960ccc6e9c",
		StationName: "KÖLN",
		Level:       &environment.Measurement{Value: level, Unit: "cm"},
		Discharge:   &environment.Measurement{Value: 1800, Unit: "m³/s"},
	}
}

func failAir(int) (*environment.AirWeatherPayload, error) {
	return nil, errUpstream
}

func failHydro(int) (*environment.HydroReading, error) {
	return nil, errUpstream
}

type harness struct {
	orch    *refresh.Orchestrator
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	air     *fakeAirWeather
	hydro   *fakeHydro
}

func newHarness(t *testing.T, mutate func(*refresh.Config)) *harness {
	t.Helper()

	h := &harness{
		clock:   clockwork.NewFakeClockAt(baseTime),
		metrics: observability.NewMetrics(nil),
		air:     &fakeAirWeather{},
		hydro:   &fakeHydro{},
	}

	cfg := refresh.DefaultConfig()
	cfg.AirWeather = h.air
	cfg.Hydro = h.hydro
	cfg.Clock = h.clock
	cfg.Metrics = h.metrics
	cfg.Synthesizer = synthetic.New(rand.NewPCG(1, 2))
	cfg.Logger = zerolog.Nop()
	if mutate != nil {
		mutate(&cfg)
	}

	h.orch = refresh.New(cfg)
	t.Cleanup(h.orch.Stop)
	return h
}

func (h *harness) waitSettled(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !h.orch.InFlight()
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, n))
}
