package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/api"
	"github.com/breatheroute/envwatch/internal/api/middleware"
	"github.com/breatheroute/envwatch/internal/api/models"
	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
	"github.com/breatheroute/envwatch/internal/refresh"
)

type stubAir struct{}

func (stubAir) Name() string { return "stub-air" }

func (stubAir) FetchAirAndWeather(_ context.Context, _ environment.Coordinate) (*environment.AirWeatherPayload, error) {
	t := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	return &environment.AirWeatherPayload{
		Air: environment.AirSeries{
			Time: []time.Time{t},
			PM25: []*float64{environment.Float(8)},
			PM10: []*float64{environment.Float(15)},
			NO2:  []*float64{environment.Float(20)},
			O3:   []*float64{environment.Float(50)},
			CO:   []*float64{environment.Float(200)},
		},
		Weather: environment.WeatherSeries{
			Time:        []time.Time{t},
			Temperature: []*float64{environment.Float(12)},
			Humidity:    []*float64{environment.Float(70)},
			WindSpeed:   []*float64{environment.Float(9)},
		},
		CurrentWeather: environment.WeatherSnapshot{Temperature: 12, WindSpeed: 9, Time: t},
	}, nil
}

type stubHydro struct{}

func (stubHydro) Name() string { return "stub-hydro" }

func (stubHydro) FetchHydro(context.Context) (*environment.HydroReading, error) {
	return &environment.HydroReading{
		StationName: "KÖLN",
		Level:       &environment.Measurement{Value: 310, Unit: "cm"},
	}, nil
}

type testServer struct {
	handler http.Handler
	orch    *refresh.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	reg := prometheus.NewRegistry()

	orch := refresh.New(refresh.Config{
		AirWeather: stubAir{},
		Hydro:      stubHydro{},
		Metrics:    observability.NewMetrics(reg),
		Logger:     logger,
	})
	t.Cleanup(orch.Stop)

	return &testServer{
		orch: orch,
		handler: api.NewRouter(api.RouterConfig{
			Version:      "test",
			BuildTime:    "2024-01-01T00:00:00Z",
			Logger:       logger,
			Orchestrator: orch,
			Registry:     resilience.NewRegistry(nil),
			Metrics:      middleware.NewHTTPMetrics(reg),
			Gatherer:     reg,
		}),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) waitSettled(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.orch.InFlight() }, 2*time.Second, 5*time.Millisecond)
}

func TestRouter_HealthAndHeaders(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/ops/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req_"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_ReadinessFollowsFirstSnapshot(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/v1/ops/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/v1/conditions/heatmap", "").Code)

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/v1/refresh", "").Code)
	s.waitSettled(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/ops/ready", "").Code)

	rec := s.do(t, http.MethodGet, "/v1/conditions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body models.Conditions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Environment)
	assert.Equal(t, environment.ProvenanceLive, body.Environment.Provenance)
	assert.Equal(t, "good", body.Index.Category)

	rec = s.do(t, http.MethodGet, "/v1/conditions/heatmap", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Commands(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/v1/location", `{"lat":50.9549,"lon":6.9083}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.waitSettled(t)
	assert.Equal(t, environment.SelectedLabel, s.orch.State().Label.Text)

	rec = s.do(t, http.MethodPut, "/v1/location/preset", `{"name":"Südstadt"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.waitSettled(t)
	assert.Equal(t, "Südstadt", s.orch.State().Label.Text)

	rec = s.do(t, http.MethodPut, "/v1/auto-refresh", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.orch.State().AutoRefresh)

	rec = s.do(t, http.MethodPost, "/v1/location/device", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return s.orch.State().Label.Text == environment.DefaultLabel && !s.orch.InFlight()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/location", strings.NewReader("lat=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_ListPresets(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body models.PresetList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Items, 5)
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/nope", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/v1/refresh", "").Code)
	s.waitSettled(t)

	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `envwatch_refresh_cycles_total{outcome="live"} 1`)
	assert.Contains(t, text, `envwatch_http_requests_total{method="POST",route="/v1/refresh",status="202"} 1`)
}
