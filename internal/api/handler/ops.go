// Package handler provides HTTP handlers for the envwatch API.
package handler

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/breatheroute/envwatch/internal/api/models"
	"github.com/breatheroute/envwatch/internal/api/response"
	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/provider/resilience"
	"github.com/breatheroute/envwatch/internal/refresh"
)

// StateReader exposes the orchestrator state to the ops endpoints.
type StateReader interface {
	State() refresh.State
	Ready() bool
}

// OpsConfig holds configuration for the OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	State     StateReader
	Registry  *resilience.Registry
	Clock     clockwork.Clock
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	state     StateReader
	registry  *resilience.Registry
	clock     clockwork.Clock
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		state:     cfg.State,
		registry:  cfg.Registry,
		clock:     cfg.Clock,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// first snapshot, live or synthetic, has been published.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.state != nil && !h.state.Ready() {
		response.NotReady(w, r, "waiting for the first refresh cycle")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - refresh pipeline and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.clock.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.state != nil {
		status.Subsystems = append(status.Subsystems, h.pipelineStatus(h.state.State())...)
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			ps := models.ProviderStatus{
				Provider:            ph.Name,
				Status:              providerStatus(ph),
				CircuitState:        ph.CircuitState.String(),
				ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
				LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
				LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
			}
			if ph.LastError != "" {
				msg := ph.LastError
				ps.Message = &msg
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worst(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pipelineStatus(st refresh.State) []models.SubsystemStatus {
	snapshot := models.SubsystemStatus{Name: "conditions", Status: models.HealthStatusOK}
	switch {
	case st.Environment == nil:
		snapshot.Status = models.HealthStatusFail
		snapshot.Detail = strPtr("no snapshot published")
	case st.Environment.Provenance == environment.ProvenanceSynthetic:
		snapshot.Status = models.HealthStatusDegraded
		snapshot.Detail = strPtr("serving synthetic data")
	}

	hydro := models.SubsystemStatus{Name: "hydro", Status: models.HealthStatusOK}
	switch {
	case st.Hydro == nil:
		hydro.Status = models.HealthStatusFail
		hydro.Detail = strPtr("no gauge reading published")
	case st.Hydro.Provenance == environment.ProvenanceSynthetic:
		hydro.Status = models.HealthStatusDegraded
		hydro.Detail = strPtr("serving demo gauge data")
	}

	auto := models.SubsystemStatus{Name: "auto-refresh", Status: models.HealthStatusOK}
	if !st.AutoRefresh {
		auto.Detail = strPtr("disabled")
	}

	return []models.SubsystemStatus{snapshot, hydro, auto}
}

func providerStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case ph.IsUnhealthy():
		return models.HealthStatusFail
	case ph.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

// worst returns the more severe status. Component failures cap the overall
// status at DEGRADED.
func worst(a, b models.HealthStatus) models.HealthStatus {
	if b == models.HealthStatusFail {
		b = models.HealthStatusDegraded
	}
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func strPtr(s string) *string {
	return &s
}
