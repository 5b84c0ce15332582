// Package openmeteo fetches hourly air quality and weather data from the
// Open-Meteo APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "openmeteo"

	DefaultAirURL     = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

	airHourlyFields     = "pm10,pm2_5,carbon_monoxide,nitrogen_dioxide,ozone"
	weatherHourlyFields = "temperature_2m,relative_humidity_2m,windspeed_10m"
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	AirURL     string
	WeatherURL string

	// HTTPClient is shared by both endpoints. If nil, a resilient client with defaults is used.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client fetches air quality and weather for a coordinate.
type Client struct {
	airURL     string
	weatherURL string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	airURL := cfg.AirURL
	if airURL == "" {
		airURL = DefaultAirURL
	}
	weatherURL := cfg.WeatherURL
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		airURL:     airURL,
		weatherURL: weatherURL,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchAirAndWeather requests both endpoints concurrently and returns the
// joined payload. Either failure fails the whole call.
func (c *Client) FetchAirAndWeather(ctx context.Context, at environment.Coordinate) (*environment.AirWeatherPayload, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}

	var (
		air     *airResponse
		weather *weatherResponse
		g       errgroup.Group
	)

	g.Go(func() error {
		q := coordQuery(at)
		q.Set("hourly", airHourlyFields)
		var resp airResponse
		if err := c.getJSON(ctx, c.airURL, q, &resp); err != nil {
			return fmt.Errorf("fetching air quality: %w", err)
		}
		air = &resp
		return nil
	})

	g.Go(func() error {
		q := coordQuery(at)
		q.Set("current_weather", "true")
		q.Set("hourly", weatherHourlyFields)
		var resp weatherResponse
		if err := c.getJSON(ctx, c.weatherURL, q, &resp); err != nil {
			return fmt.Errorf("fetching weather: %w", err)
		}
		weather = &resp
		return nil
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn().Err(err).
			Float64("lat", at.Lat).
			Float64("lon", at.Lon).
			Msg("open-meteo fetch failed")
		return nil, err
	}

	airSeries, err := air.toSeries()
	if err != nil {
		return nil, fmt.Errorf("parsing air quality: %w", err)
	}
	weatherSeries, err := weather.toSeries()
	if err != nil {
		return nil, fmt.Errorf("parsing weather: %w", err)
	}
	current, err := weather.currentSnapshot(weatherSeries)
	if err != nil {
		return nil, fmt.Errorf("parsing current weather: %w", err)
	}

	c.logger.Debug().
		Int("air_points", airSeries.Len()).
		Int("weather_points", weatherSeries.Len()).
		Msg("open-meteo fetch complete")

	return &environment.AirWeatherPayload{
		Air:            airSeries,
		Weather:        weatherSeries,
		CurrentWeather: current,
	}, nil
}

func coordQuery(at environment.Coordinate) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(at.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(at.Lon, 'f', 4, 64))
	q.Set("timezone", "auto")
	return q
}

func (c *Client) getJSON(ctx context.Context, base string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status code %d", environment.ErrNetworkFailure, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", environment.ErrInvalidPayload, err)
	}
	return nil
}
