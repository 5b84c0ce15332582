// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/environment"
)

// ErrInvalid wraps every validation failure returned by FromEnv.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all service settings.
type Config struct {
	Port     int
	Env      string
	LogLevel zerolog.Level

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	DefaultPlace         environment.Place
	AutoRefreshEnabled   bool
	AutoRefreshInterval  time.Duration
	HydroRefreshInterval time.Duration

	GeolocationEnabled bool
	GeolocationTimeout time.Duration
	GeolocationURL     string

	SourceTimeout        time.Duration
	OpenMeteoAirURL      string
	OpenMeteoWeatherURL  string
	PegelOnlineURL       string
	PegelOnlineStationID string
	UpstreamRPS          float64

	PubSubProjectID    string
	PubSubSubscription string

	RequireTLS      bool
	ShutdownTimeout time.Duration
}

// PubSubEnabled reports whether the job subscription should be started.
func (c Config) PubSubEnabled() bool {
	return c.PubSubSubscription != ""
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the given .env files, or ./.env when none are named, and then
// parses the environment. Missing files are ignored. Variables already set in
// the process environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv parses and validates the process environment.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		Port:     p.int("APP_PORT", 8080),
		Env:      getEnvOrDefault("APP_ENV", "development"),
		LogLevel: p.level("LOG_LEVEL", zerolog.InfoLevel),

		OTelEnabled:     p.bool("OTEL_ENABLED", false),
		OTLPEndpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: p.float("OTEL_SAMPLE_RATIO", 1),

		DefaultPlace: environment.Place{
			Name: getEnvOrDefault("DEFAULT_LABEL", environment.DefaultLabel),
			Coordinate: environment.Coordinate{
				Lat: p.float("DEFAULT_LAT", environment.DefaultCoordinate.Lat),
				Lon: p.float("DEFAULT_LON", environment.DefaultCoordinate.Lon),
			},
		},
		AutoRefreshEnabled:   p.bool("AUTO_REFRESH_ENABLED", true),
		AutoRefreshInterval:  p.duration("AUTO_REFRESH_INTERVAL", 5*time.Minute),
		HydroRefreshInterval: p.duration("HYDRO_REFRESH_INTERVAL", 10*time.Minute),

		GeolocationEnabled: p.bool("GEOLOCATION_ENABLED", true),
		GeolocationTimeout: p.duration("GEOLOCATION_TIMEOUT", 7*time.Second),
		GeolocationURL:     os.Getenv("GEOLOCATION_URL"),

		SourceTimeout:        p.duration("SOURCE_TIMEOUT", 10*time.Second),
		OpenMeteoAirURL:      os.Getenv("OPENMETEO_AIR_URL"),
		OpenMeteoWeatherURL:  os.Getenv("OPENMETEO_WEATHER_URL"),
		PegelOnlineURL:       os.Getenv("PEGELONLINE_URL"),
		PegelOnlineStationID: os.Getenv("PEGELONLINE_STATION_ID"),
		UpstreamRPS:          p.float("UPSTREAM_RPS", 2),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),

		RequireTLS:      p.bool("REQUIRE_TLS", false),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	p.errs = append(p.errs, cfg.validate()...)
	if len(p.errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(p.errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d out of range", c.Port))
	}
	if err := c.DefaultPlace.Coordinate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LON: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"AUTO_REFRESH_INTERVAL":  c.AutoRefreshInterval,
		"HYDRO_REFRESH_INTERVAL": c.HydroRefreshInterval,
		"GEOLOCATION_TIMEOUT":    c.GeolocationTimeout,
		"SOURCE_TIMEOUT":         c.SourceTimeout,
		"SHUTDOWN_TIMEOUT":       c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO %g outside [0,1]", c.OTelSampleRatio))
	}
	if c.UpstreamRPS < 0 {
		errs = append(errs, errors.New("UPSTREAM_RPS must not be negative"))
	}
	if c.PubSubSubscription != "" && c.PubSubProjectID == "" {
		errs = append(errs, errors.New("PUBSUB_SUBSCRIPTION requires PUBSUB_PROJECT_ID"))
	}
	return errs
}

// parser collects conversion errors so every bad key is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) level(key string, def zerolog.Level) zerolog.Level {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	l, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return l
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
