package guard_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/jrsteele09/go-keycloak-session/guard"
	"github.com/stretchr/testify/require"
)

type fakeValidity struct {
	access  bool
	refresh bool
}

func (f fakeValidity) IsAccessTokenValid() bool  { return f.access }
func (f fakeValidity) IsRefreshTokenValid() bool { return f.refresh }

func TestAllow(t *testing.T) {
	tests := []struct {
		name     string
		validity fakeValidity
		opts     guard.Options
		want     bool
	}{
		{name: "refresh valid", validity: fakeValidity{refresh: true}, opts: guard.Options{}, want: true},
		{name: "refresh invalid", validity: fakeValidity{access: true}, opts: guard.Options{}, want: false},
		{name: "access valid", validity: fakeValidity{access: true}, opts: guard.Options{Token: guard.AccessToken}, want: true},
		{name: "access invalid", validity: fakeValidity{refresh: true}, opts: guard.Options{Token: guard.AccessToken}, want: false},
		{name: "reverse with valid token", validity: fakeValidity{refresh: true}, opts: guard.Options{Reverse: true}, want: false},
		{name: "reverse without token", validity: fakeValidity{}, opts: guard.Options{Reverse: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := guard.New(tt.validity, guard.Fallback{})
			require.Equal(t, tt.want, g.Allow(tt.opts))
		})
	}
}

type guardFixture struct {
	forward int
	reverse int
	guard   *guard.Guard
}

func setupGuard(t *testing.T, validity fakeValidity, withURLs bool) *guardFixture {
	t.Helper()

	f := &guardFixture{}
	cfg := auth.Config{
		GuardFallbackCallback:        func(*http.Request) { f.forward++ },
		ReverseGuardFallbackCallback: func(*http.Request) { f.reverse++ },
	}
	if withURLs {
		cfg.GuardFallbackURL = "/login"
		cfg.ReverseGuardFallbackURL = "/home"
	}
	f.guard = guard.New(validity, guard.FallbackFromConfig(cfg))
	return f
}

func serve(handler http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	return rec
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestMiddlewareAllows(t *testing.T) {
	f := setupGuard(t, fakeValidity{refresh: true}, true)

	rec := serve(f.guard.Middleware(guard.Options{})(okHandler))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, f.forward+f.reverse)
}

func TestMiddlewareRedirectsToFallback(t *testing.T) {
	f := setupGuard(t, fakeValidity{}, true)

	rec := serve(f.guard.Middleware(guard.Options{})(okHandler))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
	require.Equal(t, 1, f.forward)
	require.Zero(t, f.reverse)
}

func TestMiddlewareReverseRedirectsToReverseFallback(t *testing.T) {
	f := setupGuard(t, fakeValidity{refresh: true}, true)

	rec := serve(f.guard.Middleware(guard.Options{Reverse: true})(okHandler))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/home", rec.Header().Get("Location"))
	require.Equal(t, 1, f.reverse)
	require.Zero(t, f.forward)
}

func TestMiddlewareWithoutFallbackURL(t *testing.T) {
	f := setupGuard(t, fakeValidity{}, false)

	rec := serve(f.guard.Middleware(guard.Options{Token: guard.AccessToken})(okHandler))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, 1, f.forward)
}

func TestChainRunsGuardBeforeRoute(t *testing.T) {
	f := setupGuard(t, fakeValidity{}, true)

	var order []string
	trace := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	handler := guard.Chain(okHandler, trace("logging"), f.guard.Middleware(guard.Options{}), trace("inner"))
	rec := serve(handler)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, []string{"logging"}, order)
}
