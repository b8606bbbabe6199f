// internal/browser/network/ratelimit.go
package network

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware delays outgoing requests to stay under a requests-per-second budget.
type RateLimitMiddleware struct {
	Transport http.RoundTripper
	limiter   *rate.Limiter
}

// NewRateLimitMiddleware wraps transport with a token bucket of the given rate and burst.
func NewRateLimitMiddleware(transport http.RoundTripper, limit rate.Limit, burst int) *RateLimitMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitMiddleware{Transport: transport, limiter: rate.NewLimiter(limit, burst)}
}

// RoundTrip implements http.RoundTripper. It blocks until a token is available
// or the request context is done.
func (m *RateLimitMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := m.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return m.Transport.RoundTrip(req)
}
