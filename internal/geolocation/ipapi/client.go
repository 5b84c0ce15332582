// Package ipapi resolves an approximate device position from its public IP
// address using an ip-api.com compatible endpoint.
package ipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this locator.
	ProviderName = "ipapi"

	// DefaultURL returns the position of the caller's IP.
	DefaultURL = "http://ip-api.com/json/?fields=status,message,lat,lon,city"
)

// ClientConfig holds configuration for the IP geolocation client.
type ClientConfig struct {
	URL        string
	HTTPClient *resilience.Client
	Logger     zerolog.Logger
}

// Client locates the device by IP address.
type Client struct {
	url        string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new IP geolocation client.
func NewClient(cfg ClientConfig) *Client {
	u := cfg.URL
	if u == "" {
		u = DefaultURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.MaxRetries = 0
		httpClient = resilience.NewClient(rc)
	}
	return &Client{
		url:        u,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the locator name.
func (c *Client) Name() string {
	return ProviderName
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

// Locate queries the endpoint. Every failure wraps environment.ErrGeolocationDenied.
func (c *Client) Locate(ctx context.Context) (environment.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return environment.Coordinate{}, fmt.Errorf("%w: creating request: %w", environment.ErrGeolocationDenied, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return environment.Coordinate{}, fmt.Errorf("%w: %w", environment.ErrGeolocationDenied, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return environment.Coordinate{}, fmt.Errorf("%w: unexpected status code %d", environment.ErrGeolocationDenied, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return environment.Coordinate{}, fmt.Errorf("%w: decoding response: %w", environment.ErrGeolocationDenied, err)
	}
	if body.Status != "success" {
		return environment.Coordinate{}, fmt.Errorf("%w: lookup %s: %s", environment.ErrGeolocationDenied, body.Status, body.Message)
	}

	coord := environment.Coordinate{Lat: body.Lat, Lon: body.Lon}
	if err := coord.Validate(); err != nil {
		return environment.Coordinate{}, fmt.Errorf("%w: %w", environment.ErrGeolocationDenied, err)
	}

	c.logger.Debug().Str("city", body.City).Msg("device located")
	return coord, nil
}
