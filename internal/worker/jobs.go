// Package worker accepts refresh commands from a Pub/Sub subscription and
// forwards them to the orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/refresh"
)

// Job types accepted on the subscription.
const (
	JobRefresh      = "refresh"
	JobHydroRefresh = "hydro_refresh"
	JobAutoRefresh  = "auto_refresh"
	JobHealthCheck  = "health_check"
)

var (
	// ErrMalformedJob is returned when a message body cannot be decoded or
	// lacks a field its job type needs.
	ErrMalformedJob = errors.New("malformed job message")

	// ErrNotReady is returned by health checks before any snapshot is published.
	ErrNotReady = errors.New("no snapshot published yet")
)

// Orchestrator is the subset of the refresh orchestrator driven by jobs.
type Orchestrator interface {
	RefreshCurrent(ctx context.Context) error
	RefreshHydro(ctx context.Context)
	SetAutoRefresh(enabled bool)
	Ready() bool
}

// JobMessage is the JSON body of a Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Dispatcher decodes job messages and runs them against the orchestrator.
type Dispatcher struct {
	orch    Orchestrator
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	Orchestrator Orchestrator
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

// NewDispatcher creates a Dispatcher. Metrics default to an unregistered set.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	return &Dispatcher{
		orch:    cfg.Orchestrator,
		metrics: metrics,
		logger:  cfg.Logger,
	}
}

// Dispatch runs the job encoded in data. A nil error means the message should
// be acked: the job ran, its refresh was dropped because one was already in
// flight, or its type is unknown. Any other error means nack.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	start := time.Now()

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		d.metrics.WorkerJobs.WithLabelValues("unparsed", observability.JobNack).Inc()
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	logger := d.logger.With().Str("job_type", msg.JobType).Logger()

	var err error
	switch msg.JobType {
	case JobRefresh:
		err = d.orch.RefreshCurrent(ctx)
		if errors.Is(err, refresh.ErrRefreshInFlight) {
			logger.Info().Msg("refresh already in flight, dropping job")
			err = nil
		}
	case JobHydroRefresh:
		d.orch.RefreshHydro(ctx)
	case JobAutoRefresh:
		if msg.Enabled == nil {
			err = fmt.Errorf("%w: auto_refresh requires enabled", ErrMalformedJob)
			break
		}
		d.orch.SetAutoRefresh(*msg.Enabled)
	case JobHealthCheck:
		if !d.orch.Ready() {
			err = ErrNotReady
		}
	default:
		logger.Warn().Msg("unknown job type")
		d.metrics.WorkerJobs.WithLabelValues("unknown", observability.JobAck).Inc()
		return nil
	}

	if err != nil {
		d.metrics.WorkerJobs.WithLabelValues(msg.JobType, observability.JobNack).Inc()
		return err
	}

	d.metrics.WorkerJobs.WithLabelValues(msg.JobType, observability.JobAck).Inc()
	logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}
