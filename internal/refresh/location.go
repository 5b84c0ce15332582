package refresh

import (
	"context"
	"fmt"

	"github.com/breatheroute/envwatch/internal/environment"
	"github.com/breatheroute/envwatch/internal/observability"
)

// UseDeviceLocation resolves the device position and refreshes there. When
// geolocation is unsupported or fails, it refreshes the default place instead.
// The returned error is only non-nil when the resulting refresh was dropped.
func (o *Orchestrator) UseDeviceLocation(ctx context.Context) error {
	at, label := o.locate(ctx)
	sess, err := o.begin(at, &label, false)
	if err != nil {
		return err
	}
	o.runCycle(context.WithoutCancel(ctx), sess)
	return nil
}

// LocateAsync runs UseDeviceLocation in the background.
func (o *Orchestrator) LocateAsync(ctx context.Context) {
	locateCtx := context.WithoutCancel(ctx)
	o.goTracked("locate", func() {
		if err := o.UseDeviceLocation(locateCtx); err != nil {
			o.logger.Debug().Err(err).Msg("refresh after locate not run")
		}
	})
}

func (o *Orchestrator) locate(ctx context.Context) (environment.Coordinate, Label) {
	fallback := o.cfg.DefaultLocation

	if o.locator == nil {
		o.metrics.Geolocation.WithLabelValues(observability.GeoUnsupported).Inc()
		o.setStatus(StatusError, MsgGeoUnsupported)
		o.logger.Info().Msg("geolocation unsupported, using default location")
		return fallback.Coordinate, Label{Text: fallback.Name}
	}

	o.setStatus(StatusLocating, MsgLocating)

	locateCtx, cancel := context.WithTimeout(ctx, o.cfg.GeolocationTimeout)
	defer cancel()

	at, err := o.locator.Locate(locateCtx)
	if err == nil {
		err = at.Validate()
	}
	if err != nil {
		o.metrics.Geolocation.WithLabelValues(observability.GeoDenied).Inc()
		o.setStatus(StatusError, MsgGeoFailed)
		o.logger.Warn().Err(err).Str("locator", o.locator.Name()).Msg("geolocation failed, using default location")
		return fallback.Coordinate, Label{Text: fallback.Name}
	}

	o.metrics.Geolocation.WithLabelValues(observability.GeoSuccess).Inc()
	return at, Label{Text: environment.DeviceLabel, DeviceSourced: true}
}

// SelectLocation refreshes an arbitrary coordinate, such as a map click, in
// the background.
func (o *Orchestrator) SelectLocation(ctx context.Context, at environment.Coordinate) error {
	return o.startCycle(ctx, at, &Label{Text: environment.SelectedLabel, DeviceSourced: true}, false)
}

// SelectPreset refreshes a named preset in the background.
func (o *Orchestrator) SelectPreset(ctx context.Context, name string) (environment.Place, error) {
	place, ok := environment.LookupPreset(name)
	if !ok {
		return environment.Place{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	label := Label{Text: place.Name, DeviceSourced: true}
	if err := o.startCycle(ctx, place.Coordinate, &label, false); err != nil {
		return place, err
	}
	return place, nil
}
