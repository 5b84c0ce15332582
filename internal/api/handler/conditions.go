package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/api/models"
	"github.com/breatheroute/envwatch/internal/api/response"
	"github.com/breatheroute/envwatch/internal/aqi"
	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/heatmap"
	"github.com/breatheroute/envwatch/internal/refresh"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 4 << 10

// Orchestrator is the subset of *refresh.Orchestrator the handlers use.
type Orchestrator interface {
	State() refresh.State
	Ready() bool
	RefreshCurrent(ctx context.Context) error
	SelectLocation(ctx context.Context, at environment.Coordinate) error
	SelectPreset(ctx context.Context, name string) (environment.Place, error)
	LocateAsync(ctx context.Context)
	SetAutoRefresh(enabled bool)
}

// ConditionsHandler serves the published snapshots and the refresh commands.
type ConditionsHandler struct {
	orch    Orchestrator
	heatmap *heatmap.Generator
	logger  zerolog.Logger
}

// NewConditionsHandler creates a new ConditionsHandler.
func NewConditionsHandler(orch Orchestrator, gen *heatmap.Generator, logger zerolog.Logger) *ConditionsHandler {
	if gen == nil {
		gen = heatmap.NewGenerator(nil)
	}
	return &ConditionsHandler{orch: orch, heatmap: gen, logger: logger}
}

// GetConditions handles GET /v1/conditions.
func (h *ConditionsHandler) GetConditions(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toConditions(h.orch.State()))
}

// GetHeatmap handles GET /v1/conditions/heatmap. Points are regenerated on
// every request around the published snapshot's location.
func (h *ConditionsHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	env := h.orch.State().Environment
	if env == nil {
		response.NotReady(w, r, "no conditions have been published yet")
		return
	}

	pts := h.heatmap.Points(env.Location, env.Index)
	out := models.Heatmap{
		Center: toPoint(env.Location),
		Index:  env.Index,
		Points: make([]models.HeatPoint, len(pts)),
	}
	for i, p := range pts {
		out.Points[i] = models.HeatPoint{Lat: p.Lat, Lon: p.Lon, Intensity: p.Intensity}
	}
	response.JSON(w, r, http.StatusOK, out)
}

// Refresh handles POST /v1/refresh - manual refresh of the current location.
func (h *ConditionsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.RefreshCurrent(r.Context()); err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	st := h.orch.State()
	response.Accepted(w, r, "/v1/conditions", models.RefreshAccepted{
		Target: toPoint(st.Location),
		Label:  st.Label.Text,
	})
}

// SetLocation handles PUT /v1/location - refresh an arbitrary coordinate.
func (h *ConditionsHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var input models.LocationRequest
	if !decode(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	if input.Lat == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "required", Code: "REQUIRED"})
	}
	if input.Lon == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "lat and lon are required", fieldErrors)
		return
	}

	at := environment.Coordinate{Lat: *input.Lat, Lon: *input.Lon}
	if err := h.orch.SelectLocation(r.Context(), at); err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	response.Accepted(w, r, "/v1/conditions", models.RefreshAccepted{
		Target: toPoint(at),
		Label:  environment.SelectedLabel,
	})
}

// ListPresets handles GET /v1/presets.
func (h *ConditionsHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets := environment.Presets()
	out := models.PresetList{Items: make([]models.Preset, len(presets))}
	for i, p := range presets {
		out.Items[i] = models.Preset{Name: p.Name, Point: toPoint(p.Coordinate)}
	}
	response.JSON(w, r, http.StatusOK, out)
}

// SelectPreset handles PUT /v1/location/preset.
func (h *ConditionsHandler) SelectPreset(w http.ResponseWriter, r *http.Request) {
	var input models.PresetRequest
	if !decode(w, r, &input) {
		return
	}
	if input.Name == "" {
		response.BadRequest(w, r, "name is required", []models.FieldError{
			{Field: "name", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	place, err := h.orch.SelectPreset(r.Context(), input.Name)
	if err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	response.Accepted(w, r, "/v1/conditions", models.RefreshAccepted{
		Target: toPoint(place.Coordinate),
		Label:  place.Name,
	})
}

// LocateDevice handles POST /v1/location/device - geolocate, then refresh.
func (h *ConditionsHandler) LocateDevice(w http.ResponseWriter, r *http.Request) {
	h.orch.LocateAsync(r.Context())
	response.Accepted(w, r, "/v1/conditions", nil)
}

// SetAutoRefresh handles PUT /v1/auto-refresh.
func (h *ConditionsHandler) SetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var input models.AutoRefreshRequest
	if !decode(w, r, &input) {
		return
	}
	if input.Enabled == nil {
		response.BadRequest(w, r, "enabled is required", []models.FieldError{
			{Field: "enabled", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	h.orch.SetAutoRefresh(*input.Enabled)
	response.JSON(w, r, http.StatusOK, models.AutoRefreshState{Enabled: *input.Enabled})
}

func (h *ConditionsHandler) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, refresh.ErrRefreshInFlight):
		response.RefreshInFlight(w, r)
	case errors.Is(err, environment.ErrInvalidCoordinates):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, refresh.ErrUnknownPreset):
		response.NotFound(w, r, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("refresh command failed")
		response.InternalError(w, r, "refresh could not be started")
	}
}

// decode reads a bounded JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

func toPoint(c environment.Coordinate) models.Point {
	return models.Point{Lat: c.Lat, Lon: c.Lon}
}

func toConditions(st refresh.State) models.Conditions {
	out := models.Conditions{
		Location: models.LocationInfo{
			Point:         toPoint(st.Location),
			Label:         st.Label.Text,
			DeviceSourced: st.Label.DeviceSourced,
		},
		Status: models.RefreshStatus{
			State:   string(st.Status),
			Message: st.Message,
			At:      models.Timestamp(st.StatusAt),
		},
		AutoRefresh: st.AutoRefresh,
		Environment: st.Environment,
		Hydro:       st.Hydro,
	}

	if st.Environment != nil {
		idx := st.Environment.Index
		category := aqi.Classify(idx)
		out.Index = &models.IndexInfo{
			Value:        idx,
			Category:     string(category),
			Label:        category.Label(),
			Color:        aqi.DisplayColor(idx),
			RadiusMeters: aqi.DisplayRadius(idx),
		}
	}

	if s := st.ActiveSession; s != nil {
		out.Session = &models.Session{
			ID:        s.ID,
			Target:    toPoint(s.Target),
			Silent:    s.Silent,
			StartedAt: models.Timestamp(s.StartedAt),
		}
	}
	return out
}
