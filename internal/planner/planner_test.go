package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
)

type mockRouter struct {
	routes []domain.RouteCandidate
	err    error
}

func (m *mockRouter) Routes(context.Context, domain.Coordinate, domain.Coordinate) ([]domain.RouteCandidate, error) {
	return m.routes, m.err
}

type mockSensors struct {
	devices []domain.DeviceState
	err     error
}

func (m *mockSensors) ListDevices(context.Context) ([]domain.DeviceState, error) {
	return m.devices, m.err
}

var (
	origin      = domain.Coordinate{Lat: 6.24, Lng: -75.58}
	destination = domain.Coordinate{Lat: 6.26, Lng: -75.56}
)

func newPlanner(router Router, sensors SensorSource) *Planner {
	return New(router, sensors, 500, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func routeThrough(id string, duration float64, points ...domain.Coordinate) domain.RouteCandidate {
	return domain.RouteCandidate{ID: id, Polyline: points, DurationSeconds: duration}
}

func TestSafestRoute(t *testing.T) {
	flooded := domain.DeviceState{DeviceID: "d1", Lat: 6.25, Lng: -75.57, Status: domain.StatusAlert}

	hit := routeThrough("fast", 300,
		domain.Coordinate{Lat: 6.24, Lng: -75.58},
		domain.Coordinate{Lat: 6.25, Lng: -75.57},
		domain.Coordinate{Lat: 6.26, Lng: -75.56})
	clear := routeThrough("detour", 600,
		domain.Coordinate{Lat: 6.24, Lng: -75.58},
		domain.Coordinate{Lat: 6.25, Lng: -75.52},
		domain.Coordinate{Lat: 6.26, Lng: -75.56})

	t.Run("prefers hit-free candidate", func(t *testing.T) {
		p := newPlanner(&mockRouter{routes: []domain.RouteCandidate{hit, clear}},
			&mockSensors{devices: []domain.DeviceState{flooded}})
		sel, err := p.SafestRoute(context.Background(), origin, destination)
		require.NoError(t, err)
		assert.Equal(t, "detour", sel.Route.ID)
		assert.Empty(t, sel.Check.Sensors)
	})

	t.Run("nil router", func(t *testing.T) {
		p := newPlanner(nil, &mockSensors{})
		_, err := p.SafestRoute(context.Background(), origin, destination)
		assert.ErrorIs(t, err, ErrNoRoutes)
	})

	t.Run("provider failure degrades to no routes", func(t *testing.T) {
		p := newPlanner(&mockRouter{err: errors.New("upstream 500")}, &mockSensors{})
		_, err := p.SafestRoute(context.Background(), origin, destination)
		assert.ErrorIs(t, err, ErrNoRoutes)
	})

	t.Run("empty candidate list", func(t *testing.T) {
		p := newPlanner(&mockRouter{}, &mockSensors{})
		_, err := p.SafestRoute(context.Background(), origin, destination)
		assert.ErrorIs(t, err, ErrNoRoutes)
	})

	t.Run("sensor source failure is not masked", func(t *testing.T) {
		p := newPlanner(&mockRouter{routes: []domain.RouteCandidate{hit}},
			&mockSensors{err: errors.New("pool closed")})
		_, err := p.SafestRoute(context.Background(), origin, destination)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoRoutes)
	})
}

func TestAvoidanceRoute(t *testing.T) {
	flooded := []domain.DeviceState{
		{DeviceID: "d1", Lat: 6.25, Lng: -75.57, Status: domain.StatusAlert},
	}

	hit := routeThrough("through", 300, domain.Coordinate{Lat: 6.25, Lng: -75.57})
	clear := routeThrough("around", 600, domain.Coordinate{Lat: 6.25, Lng: -75.52})

	t.Run("fewest hits wins", func(t *testing.T) {
		p := newPlanner(&mockRouter{routes: []domain.RouteCandidate{hit, clear}}, &mockSensors{})
		sel, err := p.AvoidanceRoute(context.Background(), origin, destination, flooded)
		require.NoError(t, err)
		assert.Equal(t, "around", sel.Route.ID)
	})

	t.Run("no alternatives", func(t *testing.T) {
		p := newPlanner(&mockRouter{}, &mockSensors{})
		_, err := p.AvoidanceRoute(context.Background(), origin, destination, flooded)
		assert.ErrorIs(t, err, ErrNoRoutes)
	})
}

func TestPlannerCheckPlace(t *testing.T) {
	place := domain.WatchedPlace{ID: "home", Lat: 6.25, Lng: -75.57, RadiusMeters: 1000}

	t.Run("returns hits from the snapshot", func(t *testing.T) {
		sensors := &mockSensors{devices: []domain.DeviceState{
			{DeviceID: "d1", Lat: 6.251, Lng: -75.57, Status: domain.StatusWarn},
		}}
		p := newPlanner(nil, sensors)
		res, err := p.CheckPlace(context.Background(), place)
		require.NoError(t, err)
		assert.Len(t, res.Sensors, 1)
		assert.Equal(t, domain.SeverityModerate, res.Severity)
	})

	t.Run("snapshot failure propagates", func(t *testing.T) {
		p := newPlanner(nil, &mockSensors{err: errors.New("pool closed")})
		_, err := p.CheckPlace(context.Background(), place)
		assert.Error(t, err)
	})
}
