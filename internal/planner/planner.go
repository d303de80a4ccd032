// Package planner evaluates candidate travel routes and watched places
// against the live sensor snapshot.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
)

// ErrNoRoutes is surfaced when the routing collaborator fails or returns
// nothing. Upstream trouble degrades to "no routes available", never a
// crash.
var ErrNoRoutes = errors.New("no routes available")

// Router is the external routing collaborator: given two coordinates it
// returns candidate road routes, fastest first.
type Router interface {
	Routes(ctx context.Context, origin, destination domain.Coordinate) ([]domain.RouteCandidate, error)
}

// SensorSource supplies the current device snapshot.
type SensorSource interface {
	ListDevices(ctx context.Context) ([]domain.DeviceState, error)
}

// Planner scores and selects routes using the flood-risk engine.
type Planner struct {
	router       Router
	sensors      SensorSource
	radiusMeters float64
	logger       *slog.Logger
}

// New creates a Planner. A nil router means no routing provider is
// configured; route operations then report ErrNoRoutes.
func New(router Router, sensors SensorSource, radiusMeters float64, logger *slog.Logger) *Planner {
	return &Planner{
		router:       router,
		sensors:      sensors,
		radiusMeters: radiusMeters,
		logger:       logger,
	}
}

// SafestRoute fetches candidates from the provider and picks the first
// hit-free one, falling back to the fastest with its hit set attached.
func (p *Planner) SafestRoute(ctx context.Context, origin, destination domain.Coordinate) (domain.RouteSelection, error) {
	candidates, sensors, err := p.fetch(ctx, origin, destination)
	if err != nil {
		return domain.RouteSelection{}, err
	}

	selection, ok := domain.SelectRoute(candidates, sensors, p.radiusMeters)
	if !ok {
		return domain.RouteSelection{}, ErrNoRoutes
	}
	return selection, nil
}

// AvoidanceRoute re-selects among provider alternatives when a watched route
// is already known to be flooded, preferring the fewest flood hits.
func (p *Planner) AvoidanceRoute(ctx context.Context, origin, destination domain.Coordinate,
	floodedSensors []domain.DeviceState) (domain.RouteSelection, error) {
	if p.router == nil {
		return domain.RouteSelection{}, ErrNoRoutes
	}
	alternatives, err := p.router.Routes(ctx, origin, destination)
	if err != nil {
		p.logger.Warn("routing provider failed", "error", err)
		return domain.RouteSelection{}, ErrNoRoutes
	}

	selection, ok := domain.SelectAvoidance(alternatives, floodedSensors, p.radiusMeters)
	if !ok {
		return domain.RouteSelection{}, ErrNoRoutes
	}
	return selection, nil
}

// CheckPlace evaluates a watched place against the current snapshot.
func (p *Planner) CheckPlace(ctx context.Context, place domain.WatchedPlace) (domain.FloodCheckResult, error) {
	sensors, err := p.sensors.ListDevices(ctx)
	if err != nil {
		return domain.FloodCheckResult{}, fmt.Errorf("list devices: %w", err)
	}
	return domain.CheckPlace(place, sensors), nil
}

func (p *Planner) fetch(ctx context.Context, origin, destination domain.Coordinate) ([]domain.RouteCandidate, []domain.DeviceState, error) {
	if p.router == nil {
		return nil, nil, ErrNoRoutes
	}
	candidates, err := p.router.Routes(ctx, origin, destination)
	if err != nil {
		p.logger.Warn("routing provider failed", "error", err)
		return nil, nil, ErrNoRoutes
	}
	if len(candidates) == 0 {
		return nil, nil, ErrNoRoutes
	}

	sensors, err := p.sensors.ListDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list devices: %w", err)
	}
	return candidates, sensors, nil
}
