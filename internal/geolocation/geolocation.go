// Package geolocation resolves the position of the device running the service.
package geolocation

import (
	"context"

	"github.com/breatheroute/envwatch/internal/environment"
)

// Locator returns the current device position.
type Locator interface {
	// Name returns the locator identifier.
	Name() string

	// Locate returns the position or an error wrapping
	// environment.ErrGeolocationDenied.
	Locate(ctx context.Context) (environment.Coordinate, error)
}

// Static is a Locator with a fixed, configured position.
type Static struct {
	Coordinate environment.Coordinate
}

// Name returns the locator name.
func (s Static) Name() string {
	return "static"
}

// Locate returns the configured coordinate.
func (s Static) Locate(ctx context.Context) (environment.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return environment.Coordinate{}, err
	}
	return s.Coordinate, nil
}
