// Package mapbox adapts the Mapbox Directions and Geocoding APIs to the
// planner's Router interface and the place-search geocoder. Both are
// untrusted, possibly-slow external services: every call carries the
// configured timeout, and failures surface as errors for the planner to
// degrade on, never as crashes.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
	"github.com/couchcryptid/flood-watch-service/internal/observability"
)

// GeocodingResult is one ranked match for a free-text place query.
type GeocodingResult struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Client calls the Mapbox HTTP APIs.
type Client struct {
	token         string
	httpClient    *http.Client
	directionsURL string
	geocodeURL    string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a Mapbox client with the given request timeout.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:         token,
		httpClient:    &http.Client{Timeout: timeout},
		directionsURL: "https://api.mapbox.com/directions/v5/mapbox/driving",
		geocodeURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics:       metrics,
		logger:        logger,
	}
}

// Routes fetches candidate driving routes between two coordinates,
// alternatives included, fastest first per provider ordering.
// Implements planner.Router.
func (c *Client) Routes(ctx context.Context, origin, destination domain.Coordinate) ([]domain.RouteCandidate, error) {
	// Mapbox uses lng,lat order.
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	params := url.Values{
		"access_token": {c.token},
		"alternatives": {"true"},
		"geometries":   {"geojson"},
		"overview":     {"full"},
	}

	start := time.Now()
	var resp directionsResponse
	err := c.doRequest(ctx, c.directionsURL+"/"+coords+"?"+params.Encode(), &resp)
	c.metrics.RoutingAPIDuration.WithLabelValues("directions").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RoutingRequests.WithLabelValues("directions", "error").Inc()
		return nil, err
	}
	if len(resp.Routes) == 0 {
		c.metrics.RoutingRequests.WithLabelValues("directions", "empty").Inc()
		return nil, nil
	}
	c.metrics.RoutingRequests.WithLabelValues("directions", "success").Inc()

	candidates := make([]domain.RouteCandidate, 0, len(resp.Routes))
	for i, r := range resp.Routes {
		polyline := make([]domain.Coordinate, 0, len(r.Geometry.Coordinates))
		for _, pair := range r.Geometry.Coordinates {
			if len(pair) != 2 {
				continue
			}
			polyline = append(polyline, domain.Coordinate{Lat: pair[1], Lng: pair[0]})
		}
		candidates = append(candidates, domain.RouteCandidate{
			ID:              fmt.Sprintf("route-%d", i),
			Label:           r.Summary(),
			Polyline:        polyline,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		})
	}
	return candidates, nil
}

// ForwardGeocode converts a free-text query to ranked coordinate matches.
func (c *Client) ForwardGeocode(ctx context.Context, query string) ([]GeocodingResult, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"5"},
	}

	start := time.Now()
	var resp geocodeResponse
	err := c.doRequest(ctx, fmt.Sprintf("%s/%s.json?%s", c.geocodeURL, url.PathEscape(query), params.Encode()), &resp)
	c.metrics.RoutingAPIDuration.WithLabelValues("geocode").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RoutingRequests.WithLabelValues("geocode", "error").Inc()
		return nil, err
	}
	if len(resp.Features) == 0 {
		c.metrics.RoutingRequests.WithLabelValues("geocode", "empty").Inc()
		return nil, nil
	}
	c.metrics.RoutingRequests.WithLabelValues("geocode", "success").Inc()

	results := make([]GeocodingResult, 0, len(resp.Features))
	for _, f := range resp.Features {
		r := GeocodingResult{
			FormattedAddress: f.PlaceName,
			PlaceName:        f.Text,
			Confidence:       f.Relevance,
		}
		if len(f.Center) == 2 {
			r.Lng = f.Center[0]
			r.Lat = f.Center[1]
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Mapbox API response types.

type directionsResponse struct {
	Routes []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
	} `json:"geometry"`
	Legs []struct {
		Summary string `json:"summary"`
	} `json:"legs"`
}

func (r directionsRoute) Summary() string {
	if len(r.Legs) == 0 {
		return ""
	}
	return r.Legs[0].Summary
}

type geocodeResponse struct {
	Features []geocodeFeature `json:"features"`
}

type geocodeFeature struct {
	Center    []float64 `json:"center"` // [lng, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
