// Package observability holds the Prometheus collectors for the refresh pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "envwatch"

// Metrics holds the Prometheus counters, histograms, and gauges for refresh cycles.
type Metrics struct {
	RefreshCycles   *prometheus.CounterVec // labels: outcome={live,retried_live,synthetic,failed}
	RefreshDropped  prometheus.Counter
	RefreshDuration prometheus.Histogram
	RefreshInFlight prometheus.Gauge

	SourceFailures *prometheus.CounterVec // labels: source={air_weather,hydro}
	HydroRefreshes *prometheus.CounterVec // labels: outcome={live,synthetic,skipped,discarded}
	Geolocation    *prometheus.CounterVec // labels: outcome={success,denied,unsupported}

	AutoRefreshEnabled prometheus.Gauge
	CurrentIndex       prometheus.Gauge

	WorkerJobs *prometheus.CounterVec // labels: job_type, result={ack,nack}
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles by outcome.",
		}, []string{"outcome"}),
		RefreshDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_dropped_total",
			Help:      "Refresh requests dropped because a cycle was already in flight.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a refresh cycle including retries and fallback.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		RefreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh cycle is running.",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failed upstream fetches by source.",
		}, []string{"source"}),
		HydroRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hydro_refreshes_total",
			Help:      "Independent gauge refreshes by outcome.",
		}, []string{"outcome"}),
		Geolocation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolocation_total",
			Help:      "Device location attempts by outcome.",
		}, []string{"outcome"}),
		AutoRefreshEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auto_refresh_enabled",
			Help:      "1 when periodic refresh is on, 0 otherwise.",
		}),
		CurrentIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_aqi",
			Help:      "Air quality index of the published snapshot, -1 when unknown.",
		}),
		WorkerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Pub/Sub jobs handled, by job type and delivery result.",
		}, []string{"job_type", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RefreshCycles,
			m.RefreshDropped,
			m.RefreshDuration,
			m.RefreshInFlight,
			m.SourceFailures,
			m.HydroRefreshes,
			m.Geolocation,
			m.AutoRefreshEnabled,
			m.CurrentIndex,
			m.WorkerJobs,
		)
	}

	return m
}

// Pub/Sub delivery results.
const (
	JobAck  = "ack"
	JobNack = "nack"
)

// Cycle outcomes.
const (
	OutcomeLive        = "live"
	OutcomeRetriedLive = "retried_live"
	OutcomeSynthetic   = "synthetic"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeDiscarded   = "discarded"
)

// Sources.
const (
	SourceAirWeather = "air_weather"
	SourceHydro      = "hydro"
)

// Geolocation outcomes.
const (
	GeoSuccess     = "success"
	GeoDenied      = "denied"
	GeoUnsupported = "unsupported"
)
