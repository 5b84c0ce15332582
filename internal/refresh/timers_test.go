package refresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/observability"
	"github.com/breatheroute/envwatch/internal/refresh"
)

func TestAutoRefresh_TicksSilently(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Start(context.Background())
	h.waitTimers(t, 2)

	h.clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return h.air.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.waitSettled(t)

	st := h.orch.State()
	require.NotNil(t, st.Environment)
	assert.Equal(t, environment.DefaultCoordinate, st.Environment.Location)
	assert.Equal(t, refresh.StatusSuccess, st.Status)

	h.clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return h.air.calls.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
	h.waitSettled(t)
}

func TestAutoRefresh_UsesCurrentLocation(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Start(context.Background())
	h.waitTimers(t, 2)

	require.NoError(t, h.orch.SelectLocation(context.Background(), deutz))
	h.waitSettled(t)
	require.Equal(t, int32(1), h.air.calls.Load())

	h.clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return h.air.calls.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)
	h.waitSettled(t)

	st := h.orch.State()
	assert.Equal(t, deutz, st.Environment.Location)
	assert.Equal(t, environment.SelectedLabel, st.Label.Text)
}

func TestAutoRefresh_DisabledAtStart(t *testing.T) {
	h := newHarness(t, func(cfg *refresh.Config) {
		cfg.AutoRefresh = false
	})
	h.orch.Start(context.Background())
	h.waitTimers(t, 1)

	h.clock.Advance(5 * time.Minute)
	assert.Never(t, func() bool {
		return h.air.calls.Load() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, h.orch.State().AutoRefresh)
}

func TestSetAutoRefresh_Toggle(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Start(context.Background())
	h.waitTimers(t, 2)

	h.orch.SetAutoRefresh(false)
	st := h.orch.State()
	assert.False(t, st.AutoRefresh)
	assert.Equal(t, refresh.StatusIdle, st.Status)
	assert.Equal(t, refresh.MsgAutoOff, st.Message)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.AutoRefreshEnabled))
	h.waitTimers(t, 1)

	h.clock.Advance(5 * time.Minute)
	assert.Never(t, func() bool {
		return h.air.calls.Load() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	h.orch.SetAutoRefresh(true)
	h.orch.SetAutoRefresh(true)
	st = h.orch.State()
	assert.True(t, st.AutoRefresh)
	assert.Equal(t, refresh.StatusSuccess, st.Status)
	assert.Equal(t, refresh.MsgAutoOn, st.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AutoRefreshEnabled))
	h.waitTimers(t, 2)

	h.clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return h.air.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.waitSettled(t)
	assert.Never(t, func() bool {
		return h.air.calls.Load() > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSetAutoRefresh_BeforeStart(t *testing.T) {
	h := newHarness(t, nil)

	h.orch.SetAutoRefresh(false)
	h.orch.Start(context.Background())
	h.waitTimers(t, 1)
	assert.False(t, h.orch.State().AutoRefresh)
}

func TestHydroTimer_UpdatesOnlyHydro(t *testing.T) {
	h := newHarness(t, func(cfg *refresh.Config) {
		cfg.AutoRefresh = false
	})
	require.NoError(t, h.orch.Refresh(context.Background(), deutz, false))
	before := h.orch.State()

	h.hydro.fn = func(int) (*environment.HydroReading, error) {
		return reading(410), nil
	}
	h.orch.Start(context.Background())
	h.waitTimers(t, 1)

	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool {
		hy := h.orch.State().Hydro
		return hy != nil && hy.Level.Value == 410
	}, 2*time.Second, 5*time.Millisecond)

	after := h.orch.State()
	assert.Same(t, before.Environment, after.Environment)
	assert.Equal(t, environment.ProvenanceLive, after.Hydro.Provenance)
	assert.Equal(t, int32(1), h.air.calls.Load())
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HydroRefreshes.WithLabelValues(observability.OutcomeLive)))
}

func TestHydroTimer_FailureUsesSyntheticGauge(t *testing.T) {
	h := newHarness(t, func(cfg *refresh.Config) {
		cfg.AutoRefresh = false
	})
	require.NoError(t, h.orch.Refresh(context.Background(), deutz, false))
	before := h.orch.State()

	h.hydro.fn = failHydro
	h.orch.Start(context.Background())
	h.waitTimers(t, 1)

	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool {
		return h.orch.State().Hydro.Provenance == environment.ProvenanceSynthetic
	}, 2*time.Second, 5*time.Millisecond)

	after := h.orch.State()
	assert.Same(t, before.Environment, after.Environment)
	assert.Equal(t, environment.ProvenanceLive, after.Environment.Provenance)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HydroRefreshes.WithLabelValues(observability.OutcomeSynthetic)))
}

func TestHydroTimer_SkippedWhileCycleInFlight(t *testing.T) {
	h := newHarness(t, func(cfg *refresh.Config) {
		cfg.AutoRefresh = false
	})
	h.air.gate = make(chan struct{})
	h.orch.Start(context.Background())
	h.waitTimers(t, 1)

	require.NoError(t, h.orch.RefreshAsync(context.Background(), deutz, false))
	h.clock.Advance(10 * time.Minute)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.HydroRefreshes.WithLabelValues(observability.OutcomeSkipped)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(h.air.gate)
	h.waitSettled(t)
	assert.Equal(t, environment.ProvenanceLive, h.orch.State().Hydro.Provenance)
}
