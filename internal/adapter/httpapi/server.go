// Package httpapi exposes the webhook ingestion endpoint, the flood-risk
// read endpoints, and the health/readiness/metrics routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-watch-service/internal/adapter/mapbox"
	"github.com/couchcryptid/flood-watch-service/internal/domain"
	"github.com/couchcryptid/flood-watch-service/internal/ingest"
	"github.com/couchcryptid/flood-watch-service/internal/planner"
)

const maxUplinkBody = 1 << 20 // 1 MiB

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Uplink-Signature"

// Ingestor processes one raw webhook delivery.
type Ingestor interface {
	Ingest(ctx context.Context, body []byte, signature string) (ingest.Result, error)
}

// RoutePlanner evaluates routes and places against the live sensor snapshot.
type RoutePlanner interface {
	SafestRoute(ctx context.Context, origin, destination domain.Coordinate) (domain.RouteSelection, error)
	CheckPlace(ctx context.Context, place domain.WatchedPlace) (domain.FloodCheckResult, error)
}

// DeviceLister supplies current device snapshots.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]domain.DeviceState, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server wires all HTTP routes.
type Server struct {
	httpServer *http.Server
	ingestor   Ingestor
	planner    RoutePlanner
	devices    DeviceLister
	geocoder   mapbox.Geocoder
	logger     *slog.Logger
}

// NewServer creates the HTTP server. geocoder may be nil when no provider is
// configured; the search endpoint then reports upstream unavailability.
func NewServer(addr string, ingestor Ingestor, routePlanner RoutePlanner, devices DeviceLister,
	geocoder mapbox.Geocoder, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ingestor: ingestor,
		planner:  routePlanner,
		devices:  devices,
		geocoder: geocoder,
		logger:   logger,
	}

	// The uplink route checks the method itself so 405 responses carry the
	// same JSON error shape as the rest of the API.
	mux.HandleFunc("/v1/uplink", s.handleUplink)
	mux.HandleFunc("GET /v1/devices", s.handleListDevices)
	mux.HandleFunc("POST /v1/routes/safest", s.handleSafestRoute)
	mux.HandleFunc("POST /v1/places/check", s.handleCheckPlace)
	mux.HandleFunc("GET /v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleUplink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUplinkBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		var vErr *domain.ValidationError
		switch {
		case errors.Is(err, ingest.ErrUnauthorized):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Reason})
		default:
			s.logger.Error("uplink ingestion failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	if result.Outcome == ingest.OutcomeThrottled {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   string(ingest.OutcomeThrottled),
			"deviceId": result.DeviceID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         string(ingest.OutcomeAccepted),
		"deviceId":       result.DeviceID,
		"computedStatus": result.Status,
		"waterLevelCm":   result.WaterLevelCm,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		s.logger.Error("list devices failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

type routeRequest struct {
	Origin      domain.Coordinate `json:"origin"`
	Destination domain.Coordinate `json:"destination"`
}

func (s *Server) handleSafestRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	selection, err := s.planner.SafestRoute(ctx, req.Origin, req.Destination)
	if err != nil {
		if errors.Is(err, planner.ErrNoRoutes) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "no routes available"})
			return
		}
		s.logger.Error("route selection failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, selection)
}

func (s *Server) handleCheckPlace(w http.ResponseWriter, r *http.Request) {
	var place domain.WatchedPlace
	if err := json.NewDecoder(r.Body).Decode(&place); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := s.planner.CheckPlace(ctx, place)
	if err != nil {
		s.logger.Error("place check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q parameter is required"})
		return
	}
	if s.geocoder == nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "geocoding unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	results, err := s.geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		s.logger.Warn("geocoding failed", "query", query, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "geocoding unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": results})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
