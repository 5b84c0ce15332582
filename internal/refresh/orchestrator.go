// Package refresh coordinates the source clients, the synthesizer and the
// index engine into a single published view of environmental conditions.
//
// At most one refresh cycle runs at a time; requests arriving while a cycle
// is in flight are dropped, not queued. A cycle always converges to either a
// fully live or a fully synthetic snapshot.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/geolocation"
	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/synthetic"
)

const tracerName = "github.com/breatheroute/envwatch/internal/refresh"

var (
	// ErrRefreshInFlight is returned when a request is dropped because a cycle is running.
	ErrRefreshInFlight = errors.New("refresh already in flight")

	// ErrUnknownPreset is returned for a preset name that does not exist.
	ErrUnknownPreset = errors.New("unknown preset")
)

// AirWeatherSource fetches the combined air quality and weather payload.
type AirWeatherSource interface {
	Name() string
	FetchAirAndWeather(ctx context.Context, at environment.Coordinate) (*environment.AirWeatherPayload, error)
}

// HydroSource fetches the river gauge reading.
type HydroSource interface {
	Name() string
	FetchHydro(ctx context.Context) (*environment.HydroReading, error)
}

// Status is the user-visible refresh state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLocating   Status = "locating"
	StatusRefreshing Status = "refreshing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Status messages.
const (
	MsgAwaiting       = "Awaiting data…"
	MsgRefreshing     = "Refreshing…"
	MsgUpdated        = "Updated"
	MsgUpdateFailed   = "Update failed"
	MsgLocating       = "Locating…"
	MsgGeoUnsupported = "Geolocation not supported"
	MsgGeoFailed      = "Location access failed"
	MsgAutoOn         = "Auto-refresh on"
	MsgAutoOff        = "Auto-refresh off"
)

// Config holds configuration for the Orchestrator.
type Config struct {
	AirWeather AirWeatherSource
	Hydro      HydroSource

	// Locator resolves the device position. Nil means geolocation is unsupported.
	Locator geolocation.Locator

	// Synthesizer produces fallback data. If nil, a randomly seeded one is used.
	Synthesizer *synthetic.Synthesizer

	// Clock drives timers and timestamps. Default: real clock.
	Clock clockwork.Clock

	// Metrics receives cycle outcomes. If nil, unregistered collectors are used.
	Metrics *observability.Metrics

	// Tracer creates cycle spans. Default: the global tracer provider.
	Tracer trace.Tracer

	Logger zerolog.Logger

	// DefaultLocation is used at startup and whenever geolocation fails.
	// Default: environment.DefaultPlace()
	DefaultLocation environment.Place

	// AutoRefresh enables the periodic refresh timer at startup.
	AutoRefresh bool

	// AutoRefreshInterval is the period of the auto-refresh timer.
	// Default: 5 minutes
	AutoRefreshInterval time.Duration

	// HydroRefreshInterval is the period of the gauge-only timer.
	// Default: 10 minutes
	HydroRefreshInterval time.Duration

	// GeolocationTimeout bounds a single Locate call.
	// Default: 7 seconds
	GeolocationTimeout time.Duration
}

// DefaultConfig returns the standard intervals with auto-refresh enabled.
func DefaultConfig() Config {
	return Config{
		DefaultLocation:      environment.DefaultPlace(),
		AutoRefresh:          true,
		AutoRefreshInterval:  5 * time.Minute,
		HydroRefreshInterval: 10 * time.Minute,
		GeolocationTimeout:   7 * time.Second,
	}
}

// Session is an in-flight refresh cycle.
type Session struct {
	ID        string                 `json:"id"`
	Target    environment.Coordinate `json:"target"`
	Silent    bool                   `json:"silent"`
	StartedAt time.Time              `json:"startedAt"`
}

// Label describes where the current location came from.
type Label struct {
	Text string
	// DeviceSourced is true when the user picked or was located to the coordinate,
	// false for the default place.
	DeviceSourced bool
}

// State is a read-only copy of the orchestrator state.
type State struct {
	Location      environment.Coordinate
	Label         Label
	Status        Status
	Message       string
	StatusAt      time.Time
	AutoRefresh   bool
	Environment   *environment.Snapshot
	Hydro         *environment.HydroSnapshot
	ActiveSession *Session
}

// Orchestrator owns the published snapshots, the refresh guard and the timers.
type Orchestrator struct {
	airWeather AirWeatherSource
	hydro      HydroSource
	locator    geolocation.Locator
	synth      *synthetic.Synthesizer
	clock      clockwork.Clock
	metrics    *observability.Metrics
	tracer     trace.Tracer
	logger     zerolog.Logger
	cfg        Config

	// inFlight is the single refresh guard; set before any async work.
	inFlight atomic.Bool

	mu          sync.RWMutex
	location    environment.Coordinate
	label       Label
	status      Status
	message     string
	statusAt    time.Time
	autoRefresh bool
	env         *environment.Snapshot
	hydroSnap   *environment.HydroSnapshot
	session     *Session
	// publishSeq increments whenever a full cycle publishes.
	publishSeq uint64

	lifeMu     sync.Mutex
	running    bool
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	autoCancel context.CancelFunc
	autoDone   chan struct{}
	loops      sync.WaitGroup
	tasks      sync.WaitGroup
}

// New creates an Orchestrator. Timers are not started until Start.
func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = synthetic.New(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics(nil)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.DefaultLocation.Name == "" {
		cfg.DefaultLocation = environment.DefaultPlace()
	}
	if cfg.AutoRefreshInterval <= 0 {
		cfg.AutoRefreshInterval = 5 * time.Minute
	}
	if cfg.HydroRefreshInterval <= 0 {
		cfg.HydroRefreshInterval = 10 * time.Minute
	}
	if cfg.GeolocationTimeout <= 0 {
		cfg.GeolocationTimeout = 7 * time.Second
	}

	o := &Orchestrator{
		airWeather:  cfg.AirWeather,
		hydro:       cfg.Hydro,
		locator:     cfg.Locator,
		synth:       cfg.Synthesizer,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With().Str("component", "refresh").Logger(),
		cfg:         cfg,
		location:    cfg.DefaultLocation.Coordinate,
		label:       Label{Text: cfg.DefaultLocation.Name},
		status:      StatusIdle,
		message:     MsgAwaiting,
		statusAt:    cfg.Clock.Now(),
		autoRefresh: cfg.AutoRefresh,
	}
	o.metrics.CurrentIndex.Set(-1)
	o.metrics.AutoRefreshEnabled.Set(boolGauge(cfg.AutoRefresh))
	return o
}

// State returns a copy of the current state. Snapshots are shared, not
// copied; they are never mutated after publication.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var sess *Session
	if o.session != nil {
		s := *o.session
		sess = &s
	}
	return State{
		Location:      o.location,
		Label:         o.label,
		Status:        o.status,
		Message:       o.message,
		StatusAt:      o.statusAt,
		AutoRefresh:   o.autoRefresh,
		Environment:   o.env,
		Hydro:         o.hydroSnap,
		ActiveSession: sess,
	}
}

// Location returns the current coordinate.
func (o *Orchestrator) Location() environment.Coordinate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.location
}

// InFlight reports whether a refresh cycle is running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Ready reports whether a snapshot has been published.
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.env != nil
}

func (o *Orchestrator) setStatus(s Status, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
	o.message = msg
	o.statusAt = o.clock.Now()
}

// goTracked runs fn on a goroutine that Stop waits for.
func (o *Orchestrator) goTracked(name string, fn func()) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().Interface("panic", r).Str("task", name).Msg("task panicked")
				o.setStatus(StatusError, MsgUpdateFailed)
			}
		}()
		fn()
	}()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
