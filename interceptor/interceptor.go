// Package interceptor provides http.RoundTripper middleware that attaches the session's
// tokens to outgoing requests and refreshes them when an API answers 401.
package interceptor

import (
	"net/http"

	"github.com/jrsteele09/go-keycloak-session/auth"
)

// Request markers. A request carrying one of these headers skips the matching middleware;
// the marker is removed before the request leaves the process.
const (
	SkipAuthHeader   = "skip-keycloak-interceptor"
	SkipTokenInvalid = "skip-keycloak-token-invalid-interceptor"
)

// CurrentUserHeader carries the stored user identity when the session tracks one.
const CurrentUserHeader = "currentUser"

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain applies middleware so that the first one listed sees the request first.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	chained := base
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// NewClient returns a client whose requests carry the session's tokens and, when the update
// strategy allows it, are replayed once after a refresh triggered by a 401.
func NewClient(session *auth.SessionService, base http.RoundTripper, options ...TokenInvalidOption) *http.Client {
	cfg := session.Config()
	return &http.Client{
		Transport: Chain(base,
			TokenInvalid(session, cfg.GetUpdateStrategy(), options...),
			AuthHeader(session.Store(), session.Store().UsesIdentity()),
		),
	}
}

// MarkSkipAuthHeader flags req so AuthHeader leaves it untouched.
func MarkSkipAuthHeader(req *http.Request) {
	req.Header.Set(SkipAuthHeader, "true")
}

// MarkSkipTokenInvalid flags req so TokenInvalid never refreshes or replays it.
func MarkSkipTokenInvalid(req *http.Request) {
	req.Header.Set(SkipTokenInvalid, "true")
}

func hasMarker(req *http.Request, marker string) bool {
	_, ok := req.Header[http.CanonicalHeaderKey(marker)]
	return ok
}

// withoutMarker returns a copy of req without the marker header. req itself is not modified.
func withoutMarker(req *http.Request, marker string) *http.Request {
	if !hasMarker(req, marker) {
		return req
	}
	clone := req.Clone(req.Context())
	clone.Header.Del(marker)
	return clone
}
