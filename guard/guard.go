// Package guard protects HTTP routes based on the validity of the session's tokens.
package guard

import (
	"net/http"

	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/rs/zerolog/log"
)

// TokenKind selects which token a guard checks.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Validity reports live token validity. *auth.SessionService implements it.
type Validity interface {
	IsAccessTokenValid() bool
	IsRefreshTokenValid() bool
}

// Options configure one guarded route.
type Options struct {
	// Token selects the token to check. Anything but AccessToken checks the refresh token.
	Token TokenKind
	// Reverse admits requests only while the token is NOT valid, e.g. for a login page.
	Reverse bool
}

// Fallback is where denied requests go.
type Fallback struct {
	URL             string
	Callback        auth.GuardFallbackFunc
	ReverseURL      string
	ReverseCallback auth.GuardFallbackFunc
}

// FallbackFromConfig reads the guard fallbacks from a session config.
func FallbackFromConfig(cfg auth.Config) Fallback {
	return Fallback{
		URL:             cfg.GuardFallbackURL,
		Callback:        cfg.GuardFallbackCallback,
		ReverseURL:      cfg.ReverseGuardFallbackURL,
		ReverseCallback: cfg.ReverseGuardFallbackCallback,
	}
}

type Guard struct {
	validity Validity
	fallback Fallback
}

func New(validity Validity, fallback Fallback) *Guard {
	return &Guard{validity: validity, fallback: fallback}
}

// Allow reports whether a request may proceed under opts.
func (g *Guard) Allow(opts Options) bool {
	var valid bool
	if opts.Token == AccessToken {
		valid = g.validity.IsAccessTokenValid()
	} else {
		valid = g.validity.IsRefreshTokenValid()
	}
	return valid != opts.Reverse
}

// Middleware admits requests Allow accepts. A denied request runs the fallback callback of
// the same direction and is redirected (303) to its fallback URL, or answered 401 when none is set.
func (g *Guard) Middleware(opts Options) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if g.Allow(opts) {
				next(w, r)
				return
			}

			callback, url := g.fallback.Callback, g.fallback.URL
			if opts.Reverse {
				callback, url = g.fallback.ReverseCallback, g.fallback.ReverseURL
			}
			log.Debug().Str("path", r.URL.Path).Bool("reverse", opts.Reverse).Msg("Route guard denied request")

			if callback != nil {
				callback(r)
			}
			if url != "" {
				http.Redirect(w, r, url, http.StatusSeeOther)
				return
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
}

// Chain wraps route in mw. The first middleware listed runs first.
func Chain(route http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chained := route
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}
