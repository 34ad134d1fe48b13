package interceptor

import (
	"context"
	"io"
	"net/http"

	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/jrsteele09/go-keycloak-session/oauth2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Refresher forces an access token refresh. *auth.SessionService implements it.
type Refresher interface {
	ForceUpdateAccessToken(ctx context.Context, header http.Header) (*oauth2.TokenPair, error)
}

type tokenInvalid struct {
	refresher Refresher
	strategy  auth.UpdateStrategy
	logger    zerolog.Logger
	metrics   *auth.Metrics
	limiter   *rate.Limiter
}

type TokenInvalidOption func(*tokenInvalid)

func WithLogger(logger zerolog.Logger) TokenInvalidOption {
	return func(t *tokenInvalid) {
		t.logger = logger
	}
}

func WithMetrics(metrics *auth.Metrics) TokenInvalidOption {
	return func(t *tokenInvalid) {
		t.metrics = metrics
	}
}

// WithRefreshLimit caps how often a 401 may trigger a refresh. Responses over the limit
// are returned without a refresh or replay.
func WithRefreshLimit(limit rate.Limit, burst int) TokenInvalidOption {
	return func(t *tokenInvalid) {
		t.limiter = rate.NewLimiter(limit, burst)
	}
}

// TokenInvalid refreshes the access token when a response is 401 Unauthorized and replays
// the request exactly once. A failed refresh is returned as the request's error; the replay's
// response is returned as is, even when it is another 401. It must wrap AuthHeader so the
// replay carries the new token.
func TokenInvalid(refresher Refresher, strategy auth.UpdateStrategy, options ...TokenInvalidOption) Middleware {
	t := &tokenInvalid{
		refresher: refresher,
		strategy:  strategy,
		logger:    log.With().Str("component", "token-invalid-interceptor").Logger(),
	}
	for _, opt := range options {
		opt(t)
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if hasMarker(req, SkipTokenInvalid) || !t.strategy.ShouldUpdateByInterceptor() {
				return next.RoundTrip(withoutMarker(req, SkipTokenInvalid))
			}
			return t.roundTrip(next, req)
		})
	}
}

func (t *tokenInvalid) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	resp, err := next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.logger.Debug().Str("url", req.URL.String()).Msg("Unauthorized response not replayable, body cannot be rewound")
		return resp, nil
	}
	if t.limiter != nil && !t.limiter.Allow() {
		t.logger.Warn().Str("url", req.URL.String()).Msg("Refresh rate limit reached, returning unauthorized response")
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if _, err := t.refresher.ForceUpdateAccessToken(req.Context(), nil); err != nil {
		t.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Refresh after unauthorized response failed")
		return nil, err
	}

	replay := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		replay.Body = body
	}

	t.metrics.ObserveReplay()
	t.logger.Debug().Str("url", req.URL.String()).Msg("Replaying request with refreshed token")
	return next.RoundTrip(replay)
}
