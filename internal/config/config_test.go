package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/config"
	"github.com/breatheroute/envwatch/internal/environment"
)

var keys = []string{
	"APP_PORT", "APP_ENV", "LOG_LEVEL",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLE_RATIO",
	"DEFAULT_LAT", "DEFAULT_LON", "DEFAULT_LABEL",
	"AUTO_REFRESH_ENABLED", "AUTO_REFRESH_INTERVAL", "HYDRO_REFRESH_INTERVAL",
	"GEOLOCATION_ENABLED", "GEOLOCATION_TIMEOUT", "GEOLOCATION_URL",
	"SOURCE_TIMEOUT", "OPENMETEO_AIR_URL", "OPENMETEO_WEATHER_URL",
	"PEGELONLINE_URL", "PEGELONLINE_STATION_ID", "UPSTREAM_RPS",
	"PUBSUB_PROJECT_ID", "PUBSUB_SUBSCRIPTION", "REQUIRE_TLS", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, environment.DefaultPlace(), cfg.DefaultPlace)
	assert.True(t, cfg.AutoRefreshEnabled)
	assert.Equal(t, 5*time.Minute, cfg.AutoRefreshInterval)
	assert.Equal(t, 10*time.Minute, cfg.HydroRefreshInterval)
	assert.True(t, cfg.GeolocationEnabled)
	assert.Equal(t, 7*time.Second, cfg.GeolocationTimeout)
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 2.0, cfg.UpstreamRPS)
	assert.False(t, cfg.PubSubEnabled())
	assert.False(t, cfg.RequireTLS)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DEFAULT_LAT", "52.52")
	t.Setenv("DEFAULT_LON", "13.405")
	t.Setenv("DEFAULT_LABEL", "Berlin")
	t.Setenv("AUTO_REFRESH_ENABLED", "false")
	t.Setenv("AUTO_REFRESH_INTERVAL", "90s")
	t.Setenv("PEGELONLINE_STATION_ID", "berlin-station")
	t.Setenv("PUBSUB_PROJECT_ID", "envwatch-prod")
	t.Setenv("PUBSUB_SUBSCRIPTION", "refresh-jobs")
	t.Setenv("REQUIRE_TLS", "true")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "Berlin", cfg.DefaultPlace.Name)
	assert.Equal(t, environment.Coordinate{Lat: 52.52, Lon: 13.405}, cfg.DefaultPlace.Coordinate)
	assert.False(t, cfg.AutoRefreshEnabled)
	assert.Equal(t, 90*time.Second, cfg.AutoRefreshInterval)
	assert.Equal(t, "berlin-station", cfg.PegelOnlineStationID)
	assert.True(t, cfg.PubSubEnabled())
	assert.True(t, cfg.RequireTLS)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "port not a number", env: map[string]string{"APP_PORT": "http"}, want: "APP_PORT"},
		{name: "port out of range", env: map[string]string{"APP_PORT": "70000"}, want: "APP_PORT"},
		{name: "bad level", env: map[string]string{"LOG_LEVEL": "loud"}, want: "LOG_LEVEL"},
		{name: "bad latitude", env: map[string]string{"DEFAULT_LAT": "95"}, want: "DEFAULT_LAT"},
		{name: "bad duration", env: map[string]string{"AUTO_REFRESH_INTERVAL": "soon"}, want: "AUTO_REFRESH_INTERVAL"},
		{name: "zero duration", env: map[string]string{"HYDRO_REFRESH_INTERVAL": "0s"}, want: "HYDRO_REFRESH_INTERVAL"},
		{name: "bad bool", env: map[string]string{"OTEL_ENABLED": "maybe"}, want: "OTEL_ENABLED"},
		{name: "sample ratio", env: map[string]string{"OTEL_SAMPLE_RATIO": "1.5"}, want: "OTEL_SAMPLE_RATIO"},
		{name: "subscription without project", env: map[string]string{"PUBSUB_SUBSCRIPTION": "jobs"}, want: "PUBSUB_PROJECT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.FromEnv()
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnv_ReportsEveryError(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "x")
	t.Setenv("SOURCE_TIMEOUT", "y")

	_, err := config.FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "SOURCE_TIMEOUT")
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv only fills unset keys, so the label must be absent entirely.
	require.NoError(t, os.Unsetenv("DEFAULT_LABEL"))
	t.Cleanup(func() { _ = os.Unsetenv("DEFAULT_LABEL") })
	t.Setenv("APP_PORT", "7070")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DEFAULT_LABEL=Ehrenfeld\nAPP_PORT=6060\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Ehrenfeld", cfg.DefaultPlace.Name)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
