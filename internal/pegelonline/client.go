// Package pegelonline fetches river gauge readings from the PegelOnline REST API.
package pegelonline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "pegelonline"

	// DefaultBaseURL is the stations collection endpoint.
	DefaultBaseURL = "https://pegelonline.wsv.de/webservices/rest-api/v2/stations"

	// DefaultStationID is the Cologne Rhine gauge.
	DefaultStationID = "a6ee8177-107b-47dd-bcfd-30960ccc6e9c"
)

// Timeseries short names.
const (
	seriesLevel     = "W"
	seriesDischarge = "Q"
	seriesWaterTemp = "WT"
)

// ClientConfig holds configuration for the PegelOnline client.
type ClientConfig struct {
	BaseURL   string
	StationID string

	// HTTPClient is the HTTP client to use. If nil, a resilient client with defaults is used.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client is a PegelOnline API client bound to one station.
type Client struct {
	baseURL    string
	stationID  string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new PegelOnline client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	stationID := cfg.StationID
	if stationID == "" {
		stationID = DefaultStationID
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		stationID:  stationID,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// StationID returns the configured station.
func (c *Client) StationID() string {
	return c.stationID
}

// FetchHydro fetches the current level, discharge and water temperature.
// Series the station does not report are left nil.
func (c *Client) FetchHydro(ctx context.Context) (*environment.HydroReading, error) {
	q := url.Values{}
	q.Set("includeTimeseries", "true")
	q.Set("includeCurrentMeasurement", "true")
	endpoint := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(c.stationID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status code %d", environment.ErrNetworkFailure, resp.StatusCode)
	}

	var station stationResponse
	if err := json.NewDecoder(resp.Body).Decode(&station); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", environment.ErrInvalidPayload, err)
	}

	reading := station.toReading(c.stationID)
	c.logger.Debug().
		Str("station", reading.StationName).
		Bool("has_level", reading.Level != nil).
		Msg("gauge reading fetched")
	return reading, nil
}

type stationResponse struct {
	UUID       string       `json:"uuid"`
	ShortName  string       `json:"shortname"`
	LongName   string       `json:"longname"`
	Latitude   *float64     `json:"latitude"`
	Longitude  *float64     `json:"longitude"`
	Timeseries []timeseries `json:"timeseries"`
}

type timeseries struct {
	ShortName          string `json:"shortname"`
	Unit               string `json:"unit"`
	CurrentMeasurement *struct {
		Timestamp string   `json:"timestamp"`
		Value     *float64 `json:"value"`
	} `json:"currentMeasurement"`
}

func (s *stationResponse) series(shortname string) *timeseries {
	for i := range s.Timeseries {
		if s.Timeseries[i].ShortName == shortname {
			return &s.Timeseries[i]
		}
	}
	return nil
}

func (s *stationResponse) measurement(shortname string) *environment.Measurement {
	ts := s.series(shortname)
	if ts == nil || ts.CurrentMeasurement == nil || ts.CurrentMeasurement.Value == nil {
		return nil
	}
	return &environment.Measurement{Value: *ts.CurrentMeasurement.Value, Unit: ts.Unit}
}

func (s *stationResponse) toReading(stationID string) *environment.HydroReading {
	r := &environment.HydroReading{
		StationID:   stationID,
		StationName: s.ShortName,
		Level:       s.measurement(seriesLevel),
		Discharge:   s.measurement(seriesDischarge),
		WaterTemp:   s.measurement(seriesWaterTemp),
	}
	if s.UUID != "" {
		r.StationID = s.UUID
	}
	if s.Latitude != nil && s.Longitude != nil {
		r.Location = &environment.Coordinate{Lat: *s.Latitude, Lon: *s.Longitude}
	}
	if w := s.series(seriesLevel); w != nil && w.CurrentMeasurement != nil {
		if ts, err := time.Parse(time.RFC3339, w.CurrentMeasurement.Timestamp); err == nil {
			r.ObservedAt = &ts
		}
	}
	return r
}
