// Package geocode resolves free-form address queries to coordinates via the
// Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Google Geocoding JSON endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client geocodes a single free-form query.
type Client interface {
	// Geocode returns a matched Result, an unmatched Result with a nil
	// error, or an error satisfying IsQuotaExceeded or *TransportError.
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output for a query.
type Result struct {
	Latitude         float64
	Longitude        float64
	Status           string // provider status, e.g. "OK", "ZERO_RESULTS"
	Quality          string // "rooftop", "range", "centroid", "approximate"
	FormattedAddress string
	Message          string // provider error_message, set on some unmatched statuses
	Matched          bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client. It replaces the timeout set by
// WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.httpClient.Timeout = d
		}
	}
}

// WithBaseURL overrides the geocoding endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithRateLimit sets a client-side requests-per-second ceiling. A value <= 0
// disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a Google geocoding Client for the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(50, 50), // Google default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
