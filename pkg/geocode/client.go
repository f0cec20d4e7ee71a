// Package geocode resolves address strings to coordinates via an external
// geocoding capability, with a persisted cache in front of it.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Result holds the geocoding output for an address.
type Result struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Matched bool    `json:"matched"`
	Source  string  `json:"source"` // "google" or "cache"
}

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Option configures the Google provider.
type Option func(*GoogleProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *GoogleProvider) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls. Fractional
// rates below 1 still get a burst of one so Wait can ever succeed.
func WithRateLimit(rps float64) Option {
	return func(g *GoogleProvider) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// NewGoogleProvider creates a Google Geocoding API provider.
func NewGoogleProvider(apiKey string, opts ...Option) *GoogleProvider {
	g := &GoogleProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
