package interceptor

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// TokenSource supplies the values AuthHeader attaches. *token.Store implements it.
type TokenSource interface {
	AccessToken() string
	Identity() (string, error)
}

// AuthHeader sets "Authorization: Bearer <access token>" and, with useIdentity, the
// currentUser header. No Authorization header is added while there is no access token.
func AuthHeader(tokens TokenSource, useIdentity bool) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if hasMarker(req, SkipAuthHeader) {
				return next.RoundTrip(withoutMarker(req, SkipAuthHeader))
			}

			req = req.Clone(req.Context())
			if accessToken := tokens.AccessToken(); accessToken != "" {
				req.Header.Set("Authorization", "Bearer "+accessToken)
			}
			if useIdentity {
				identity, err := tokens.Identity()
				if err != nil {
					log.Warn().Err(err).Msg("Could not read session identity")
				} else if identity != "" {
					// Set directly to keep the header's exact casing on the wire.
					req.Header[CurrentUserHeader] = []string{identity}
				}
			}
			return next.RoundTrip(req)
		})
	}
}
