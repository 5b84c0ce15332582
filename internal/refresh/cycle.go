package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/envwatch/internal/aqi"
	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/observability"
)

// cycleResult is the outcome of one attempt at producing both snapshots.
// Either err is nil and both snapshots are set, or err is set.
type cycleResult struct {
	env   *environment.Snapshot
	hydro *environment.HydroSnapshot
	err   error
}

// orElse returns r when it succeeded, otherwise the result of fallback.
func (r cycleResult) orElse(fallback func() cycleResult) cycleResult {
	if r.err == nil {
		return r
	}
	return fallback()
}

// Refresh runs a full cycle for at and blocks until it settles.
// It returns ErrRefreshInFlight without touching state if a cycle is already running.
func (o *Orchestrator) Refresh(ctx context.Context, at environment.Coordinate, silent bool) error {
	sess, err := o.begin(at, nil, silent)
	if err != nil {
		return err
	}
	o.runCycle(context.WithoutCancel(ctx), sess)
	return nil
}

// RefreshAsync claims the guard synchronously and runs the cycle in the background.
func (o *Orchestrator) RefreshAsync(ctx context.Context, at environment.Coordinate, silent bool) error {
	return o.startCycle(ctx, at, nil, silent)
}

// RefreshCurrent refreshes the current location non-silently in the background.
func (o *Orchestrator) RefreshCurrent(ctx context.Context) error {
	return o.startCycle(ctx, o.Location(), nil, false)
}

func (o *Orchestrator) startCycle(ctx context.Context, at environment.Coordinate, label *Label, silent bool) error {
	sess, err := o.begin(at, label, silent)
	if err != nil {
		return err
	}
	cycleCtx := context.WithoutCancel(ctx)
	o.goTracked("refresh", func() {
		o.runCycle(cycleCtx, sess)
	})
	return nil
}

// begin claims the guard and opens a session. The location, and the label
// when given, only change once the guard is held.
func (o *Orchestrator) begin(at environment.Coordinate, label *Label, silent bool) (*Session, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		o.metrics.RefreshDropped.Inc()
		o.logger.Debug().
			Float64("lat", at.Lat).
			Float64("lon", at.Lon).
			Bool("silent", silent).
			Msg("refresh dropped, cycle in flight")
		return nil, ErrRefreshInFlight
	}
	o.metrics.RefreshInFlight.Set(1)

	now := o.clock.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Target:    at,
		Silent:    silent,
		StartedAt: now,
	}

	o.mu.Lock()
	o.session = sess
	o.location = at
	if label != nil {
		o.label = *label
	}
	if !silent {
		o.status = StatusRefreshing
		o.message = MsgRefreshing
		o.statusAt = now
	}
	o.mu.Unlock()

	return sess, nil
}

// finish clears the session and then releases the guard.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.session = nil
	o.mu.Unlock()

	o.inFlight.Store(false)
	o.metrics.RefreshInFlight.Set(0)
}

// runCycle fetches live data, retries once on failure and falls back to
// synthetic data when the retry fails too. It always publishes.
func (o *Orchestrator) runCycle(ctx context.Context, sess *Session) {
	defer o.finish()

	ctx, span := o.tracer.Start(ctx, "refresh.cycle",
		trace.WithAttributes(
			attribute.String("refresh.session_id", sess.ID),
			attribute.Float64("refresh.lat", sess.Target.Lat),
			attribute.Float64("refresh.lon", sess.Target.Lon),
			attribute.Bool("refresh.silent", sess.Silent),
		))
	defer span.End()

	start := o.clock.Now()
	log := o.logger.With().Str("session_id", sess.ID).Logger()

	outcome := observability.OutcomeLive
	res := o.tryLive(ctx, sess.Target)
	if res.err != nil {
		log.Warn().Err(res.err).Msg("live fetch failed, retrying")
		span.RecordError(res.err)
		o.setStatus(StatusError, MsgUpdateFailed)

		res = o.tryLive(ctx, sess.Target)
		if res.err == nil {
			outcome = observability.OutcomeRetriedLive
		} else {
			log.Warn().Err(res.err).Msg("retry failed, publishing synthetic data")
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "live sources unavailable")
			outcome = observability.OutcomeSynthetic
		}
	}

	final := res.orElse(func() cycleResult {
		return o.synthesize(sess.Target)
	})
	o.publish(final)

	if res.err == nil {
		o.setStatus(StatusSuccess, MsgUpdated)
	}

	elapsed := o.clock.Since(start)
	o.metrics.RefreshCycles.WithLabelValues(outcome).Inc()
	o.metrics.RefreshDuration.Observe(elapsed.Seconds())
	span.SetAttributes(attribute.String("refresh.outcome", outcome))

	event := log.Info()
	if outcome == observability.OutcomeSynthetic {
		event = log.Warn()
	}
	event.
		Str("outcome", outcome).
		Str("provenance", string(final.env.Provenance)).
		Dur("duration", elapsed).
		Msg("refresh cycle settled")
}

// tryLive fetches both sources concurrently. Both must succeed.
func (o *Orchestrator) tryLive(ctx context.Context, at environment.Coordinate) cycleResult {
	var (
		payload *environment.AirWeatherPayload
		reading *environment.HydroReading
		g       errgroup.Group
	)

	g.Go(func() error {
		if o.airWeather == nil {
			return fmt.Errorf("%w: no air and weather source configured", environment.ErrNetworkFailure)
		}
		p, err := o.airWeather.FetchAirAndWeather(ctx, at)
		if err != nil {
			o.metrics.SourceFailures.WithLabelValues(observability.SourceAirWeather).Inc()
			return fmt.Errorf("%s: %w", o.airWeather.Name(), err)
		}
		payload = p
		return nil
	})
	g.Go(func() error {
		r, err := o.fetchHydro(ctx)
		if err != nil {
			return err
		}
		reading = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return cycleResult{err: err}
	}

	now := o.clock.Now()
	return cycleResult{
		env:   liveSnapshot(at, payload, now),
		hydro: environment.NewHydroSnapshot(reading, environment.ProvenanceLive, now),
	}
}

func (o *Orchestrator) fetchHydro(ctx context.Context) (*environment.HydroReading, error) {
	if o.hydro == nil {
		return nil, fmt.Errorf("%w: no hydro source configured", environment.ErrNetworkFailure)
	}
	r, err := o.hydro.FetchHydro(ctx)
	if err != nil {
		o.metrics.SourceFailures.WithLabelValues(observability.SourceHydro).Inc()
		return nil, fmt.Errorf("%s: %w", o.hydro.Name(), err)
	}
	return r, nil
}

func liveSnapshot(at environment.Coordinate, p *environment.AirWeatherPayload, now time.Time) *environment.Snapshot {
	current := p.Air.Latest()
	return &environment.Snapshot{
		Location:       at,
		Index:          aqi.FromPM25(current.PM25),
		Current:        current,
		AirHourly:      p.Air,
		CurrentWeather: p.CurrentWeather,
		WeatherHourly:  p.Weather,
		Provenance:     environment.ProvenanceLive,
		GeneratedAt:    now,
	}
}

func (o *Orchestrator) synthesize(at environment.Coordinate) cycleResult {
	anchor := o.clock.Now()
	return cycleResult{
		env:   o.synth.Environment(anchor, at),
		hydro: o.synth.Hydro(anchor),
	}
}

// publish replaces both snapshots atomically.
func (o *Orchestrator) publish(res cycleResult) {
	o.mu.Lock()
	o.env = res.env
	o.hydroSnap = res.hydro
	o.publishSeq++
	o.mu.Unlock()

	if res.env.Index != nil {
		o.metrics.CurrentIndex.Set(float64(*res.env.Index))
	} else {
		o.metrics.CurrentIndex.Set(-1)
	}
}

// RefreshHydro updates only the gauge snapshot. It is skipped while a full
// cycle runs and its result is discarded if a full cycle published meanwhile.
func (o *Orchestrator) RefreshHydro(ctx context.Context) {
	if o.inFlight.Load() {
		o.metrics.HydroRefreshes.WithLabelValues(observability.OutcomeSkipped).Inc()
		o.logger.Debug().Msg("hydro refresh skipped, cycle in flight")
		return
	}

	o.mu.RLock()
	seq := o.publishSeq
	o.mu.RUnlock()

	outcome := observability.OutcomeLive
	var snap *environment.HydroSnapshot
	reading, err := o.fetchHydro(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("hydro refresh failed, using synthetic gauge data")
		outcome = observability.OutcomeSynthetic
		snap = o.synth.Hydro(o.clock.Now())
	} else {
		snap = environment.NewHydroSnapshot(reading, environment.ProvenanceLive, o.clock.Now())
	}

	o.mu.Lock()
	if o.publishSeq != seq {
		o.mu.Unlock()
		o.metrics.HydroRefreshes.WithLabelValues(observability.OutcomeDiscarded).Inc()
		o.logger.Debug().Msg("hydro result superseded by full cycle")
		return
	}
	o.hydroSnap = snap
	o.mu.Unlock()

	o.metrics.HydroRefreshes.WithLabelValues(outcome).Inc()
}
