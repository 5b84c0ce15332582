package refresh

import (
	"context"
)

// Start launches the auto-refresh and hydro timers. It does not run an
// initial refresh; callers decide between UseDeviceLocation and a default refresh.
func (o *Orchestrator) Start(ctx context.Context) {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	if o.running {
		return
	}
	o.running = true
	o.lifeCtx, o.lifeCancel = context.WithCancel(ctx)

	o.loops.Add(1)
	go o.hydroLoop(o.lifeCtx)

	o.mu.RLock()
	auto := o.autoRefresh
	o.mu.RUnlock()
	if auto {
		o.startAutoLocked()
	}

	o.logger.Info().
		Bool("auto_refresh", auto).
		Dur("auto_interval", o.cfg.AutoRefreshInterval).
		Dur("hydro_interval", o.cfg.HydroRefreshInterval).
		Msg("timers started")
}

// Stop cancels both timers and waits for running cycles to settle.
func (o *Orchestrator) Stop() {
	o.lifeMu.Lock()
	if o.running {
		o.stopAutoLocked()
		o.lifeCancel()
		o.running = false
	}
	o.lifeMu.Unlock()

	o.loops.Wait()
	o.tasks.Wait()
	o.logger.Info().Msg("timers stopped")
}

// SetAutoRefresh enables or disables the periodic refresh. Disabling stops
// the timer; enabling creates a fresh one, so two timers never coexist.
func (o *Orchestrator) SetAutoRefresh(enabled bool) {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	o.stopAutoLocked()

	o.mu.Lock()
	o.autoRefresh = enabled
	o.mu.Unlock()

	if enabled {
		o.setStatus(StatusSuccess, MsgAutoOn)
		if o.running {
			o.startAutoLocked()
		}
	} else {
		o.setStatus(StatusIdle, MsgAutoOff)
	}
	o.metrics.AutoRefreshEnabled.Set(boolGauge(enabled))
	o.logger.Info().Bool("enabled", enabled).Msg("auto-refresh toggled")
}

func (o *Orchestrator) startAutoLocked() {
	ctx, cancel := context.WithCancel(o.lifeCtx)
	done := make(chan struct{})
	o.autoCancel = cancel
	o.autoDone = done

	o.loops.Add(1)
	go func() {
		defer close(done)
		o.autoLoop(ctx)
	}()
}

// stopAutoLocked cancels the auto-refresh timer and waits for its goroutine.
func (o *Orchestrator) stopAutoLocked() {
	if o.autoCancel == nil {
		return
	}
	o.autoCancel()
	<-o.autoDone
	o.autoCancel = nil
	o.autoDone = nil
}

// autoLoop refreshes silently on every tick. The coordinate is read at tick
// time, so location changes take effect without restarting the timer.
func (o *Orchestrator) autoLoop(ctx context.Context) {
	defer o.loops.Done()

	ticker := o.clock.NewTicker(o.cfg.AutoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := o.RefreshAsync(ctx, o.Location(), true); err != nil {
				o.logger.Debug().Err(err).Msg("auto-refresh tick not run")
			}
		}
	}
}

func (o *Orchestrator) hydroLoop(ctx context.Context) {
	defer o.loops.Done()

	ticker := o.clock.NewTicker(o.cfg.HydroRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			o.RefreshHydro(context.WithoutCancel(ctx))
		}
	}
}
