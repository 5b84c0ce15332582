package models

import (
	"github.com/breatheroute/envwatch/internal/environment"
)

// Conditions is the response for GET /v1/conditions.
type Conditions struct {
	Location    LocationInfo               `json:"location"`
	Status      RefreshStatus              `json:"status"`
	AutoRefresh bool                       `json:"autoRefresh"`
	Index       *IndexInfo                 `json:"index,omitempty"`
	Environment *environment.Snapshot      `json:"environment,omitempty"`
	Hydro       *environment.HydroSnapshot `json:"hydro,omitempty"`
	Session     *Session                   `json:"session,omitempty"`
}

// LocationInfo is the current location with its label.
type LocationInfo struct {
	Point
	Label         string `json:"label"`
	DeviceSourced bool   `json:"deviceSourced"`
}

// RefreshStatus is the user-visible refresh state.
type RefreshStatus struct {
	State   string    `json:"state"`
	Message string    `json:"message"`
	At      Timestamp `json:"at"`
}

// IndexInfo describes the air quality index and its display attributes.
type IndexInfo struct {
	Value        *int   `json:"value"`
	Category     string `json:"category"`
	Label        string `json:"label"`
	Color        string `json:"color"`
	RadiusMeters int    `json:"radiusMeters"`
}

// Session is an in-flight refresh cycle.
type Session struct {
	ID        string    `json:"id"`
	Target    Point     `json:"target"`
	Silent    bool      `json:"silent"`
	StartedAt Timestamp `json:"startedAt"`
}

// Heatmap is the response for GET /v1/conditions/heatmap.
type Heatmap struct {
	Center Point       `json:"center"`
	Index  *int        `json:"index"`
	Points []HeatPoint `json:"points"`
}

// HeatPoint is one weighted heatmap sample.
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity float64 `json:"intensity"`
}

// Preset is a named quick-select location.
type Preset struct {
	Name string `json:"name"`
	Point
}

// PresetList is the response for GET /v1/presets.
type PresetList struct {
	Items []Preset `json:"items"`
}

// LocationRequest is the body of PUT /v1/location.
type LocationRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// PresetRequest is the body of PUT /v1/location/preset.
type PresetRequest struct {
	Name string `json:"name"`
}

// AutoRefreshRequest is the body of PUT /v1/auto-refresh.
type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

// AutoRefreshState is the response for PUT /v1/auto-refresh.
type AutoRefreshState struct {
	Enabled bool `json:"enabled"`
}

// RefreshAccepted is returned when a refresh cycle was started.
type RefreshAccepted struct {
	Target Point  `json:"target"`
	Label  string `json:"label,omitempty"`
}
