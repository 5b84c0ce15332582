package openmeteo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/openmeteo"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
)

const airBody = `{
	"utc_offset_seconds": 3600,
	"timezone_abbreviation": "CET",
	"hourly": {
		"time": ["2024-03-10T12:00", "2024-03-10T13:00", "2024-03-10T14:00"],
		"pm10": [10.1, 11.2, 12.3],
		"pm2_5": [5.5, null, 12.0],
		"carbon_monoxide": [210.0, 205.0, 200.0],
		"nitrogen_dioxide": [18.0, 19.0, 20.0],
		"ozone": [44.0, 45.0, 46.0]
	}
}`

const weatherBody = `{
	"utc_offset_seconds": 3600,
	"timezone_abbreviation": "CET",
	"current_weather": {"temperature": 11.4, "windspeed": 7.9, "time": "2024-03-10T14:00"},
	"hourly": {
		"time": ["2024-03-10T12:00", "2024-03-10T13:00", "2024-03-10T14:00"],
		"temperature_2m": [10.0, 10.8, 11.4],
		"relative_humidity_2m": [70, 68, 65],
		"windspeed_10m": [6.1, 7.0, 7.9]
	}
}`

type upstream struct {
	air, weather             string
	airStatus, weatherStatus int
}

func newServer(t *testing.T, u upstream) *httptest.Server {
	t.Helper()
	if u.airStatus == 0 {
		u.airStatus = http.StatusOK
	}
	if u.weatherStatus == 0 {
		u.weatherStatus = http.StatusOK
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/air-quality", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50.9375", r.URL.Query().Get("latitude"))
		assert.Equal(t, "6.9603", r.URL.Query().Get("longitude"))
		assert.Equal(t, "pm10,pm2_5,carbon_monoxide,nitrogen_dioxide,ozone", r.URL.Query().Get("hourly"))
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		w.WriteHeader(u.airStatus)
		_, _ = w.Write([]byte(u.air))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		assert.Equal(t, "temperature_2m,relative_humidity_2m,windspeed_10m", r.URL.Query().Get("hourly"))
		w.WriteHeader(u.weatherStatus)
		_, _ = w.Write([]byte(u.weather))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newClient(server *httptest.Server) *openmeteo.Client {
	cfg := resilience.DefaultClientConfig("test")
	cfg.MaxRetries = 0
	return openmeteo.NewClient(openmeteo.ClientConfig{
		AirURL:     server.URL + "/v1/air-quality",
		WeatherURL: server.URL + "/v1/forecast",
		HTTPClient: resilience.NewClient(cfg),
	})
}

func TestClient_FetchAirAndWeather(t *testing.T) {
	server := newServer(t, upstream{air: airBody, weather: weatherBody})

	payload, err := newClient(server).FetchAirAndWeather(context.Background(), environment.DefaultCoordinate)
	require.NoError(t, err)
	require.NotNil(t, payload)

	assert.Equal(t, 3, payload.Air.Len())
	assert.Nil(t, payload.Air.PM25[1], "null values are preserved")
	latest := payload.Air.Latest()
	require.NotNil(t, latest.PM25)
	assert.Equal(t, 12.0, *latest.PM25)
	assert.Equal(t, 12.3, *latest.PM10)

	want := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(latest.Time), "local times honour utc_offset_seconds, got %s", latest.Time)

	assert.Equal(t, 3, payload.Weather.Len())
	assert.Equal(t, 65.0, *payload.Weather.Humidity[2])
	assert.Equal(t, 11.4, payload.CurrentWeather.Temperature)
	assert.Equal(t, 7.9, payload.CurrentWeather.WindSpeed)
}

func TestClient_MissingCurrentWeatherUsesLastHour(t *testing.T) {
	body := `{"hourly": {"time": ["2024-03-10T14:00"], "temperature_2m": [9.5], "relative_humidity_2m": [null], "windspeed_10m": [3.2]}}`
	server := newServer(t, upstream{air: airBody, weather: body})

	payload, err := newClient(server).FetchAirAndWeather(context.Background(), environment.DefaultCoordinate)
	require.NoError(t, err)
	assert.Equal(t, 9.5, payload.CurrentWeather.Temperature)
	assert.Equal(t, 3.2, payload.CurrentWeather.WindSpeed)
}

func TestClient_MissingPollutantArray(t *testing.T) {
	body := `{"hourly": {"time": ["2024-03-10T14:00"], "pm2_5": [4.0]}}`
	server := newServer(t, upstream{air: body, weather: weatherBody})

	payload, err := newClient(server).FetchAirAndWeather(context.Background(), environment.DefaultCoordinate)
	require.NoError(t, err)
	latest := payload.Air.Latest()
	assert.Nil(t, latest.NO2)
	assert.Nil(t, latest.CO)
	assert.Equal(t, 4.0, *latest.PM25)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		up      upstream
		wantErr error
	}{
		{
			name:    "air non-2xx",
			up:      upstream{air: `{}`, weather: weatherBody, airStatus: http.StatusBadRequest},
			wantErr: environment.ErrNetworkFailure,
		},
		{
			name:    "weather server error",
			up:      upstream{air: airBody, weather: `{}`, weatherStatus: http.StatusBadGateway},
			wantErr: environment.ErrNetworkFailure,
		},
		{
			name:    "missing time axis",
			up:      upstream{air: `{"hourly": {"pm2_5": [1.0]}}`, weather: weatherBody},
			wantErr: environment.ErrInvalidPayload,
		},
		{
			name:    "empty time axis",
			up:      upstream{air: `{"hourly": {"time": []}}`, weather: weatherBody},
			wantErr: environment.ErrInvalidPayload,
		},
		{
			name:    "misaligned arrays",
			up:      upstream{air: `{"hourly": {"time": ["2024-03-10T14:00"], "pm10": [1.0, 2.0]}}`, weather: weatherBody},
			wantErr: environment.ErrInvalidPayload,
		},
		{
			name:    "undecodable json",
			up:      upstream{air: airBody, weather: `not json`},
			wantErr: environment.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, tt.up)
			payload, err := newClient(server).FetchAirAndWeather(context.Background(), environment.DefaultCoordinate)
			assert.Nil(t, payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_InvalidCoordinate(t *testing.T) {
	client := openmeteo.NewClient(openmeteo.ClientConfig{})
	_, err := client.FetchAirAndWeather(context.Background(), environment.Coordinate{Lat: 91})
	assert.ErrorIs(t, err, environment.ErrInvalidCoordinates)
	assert.Equal(t, openmeteo.ProviderName, client.Name())
}
