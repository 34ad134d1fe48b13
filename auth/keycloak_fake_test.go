package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-keycloak-session/token/jwt/jwttest"
)

const (
	testRealm    = "test"
	testClientID = "test-client"
	testUsername = "john.doe@example.com"
	testPassword = "secret"
	realmPath    = "/realms/" + testRealm
	oidcPath     = realmPath + "/protocol/openid-connect"
)

// keycloakFake serves the token, revoke, logout and discovery endpoints of one realm.
type keycloakFake struct {
	t      *testing.T
	server *httptest.Server

	tokenCalls   atomic.Int32
	refreshCalls atomic.Int32
	revokeCalls  atomic.Int32
	logoutCalls  atomic.Int32

	lock          sync.Mutex
	accessTTL     time.Duration
	refreshTTL    time.Duration
	failRefresh   bool
	revokeStatus  int
	logoutStatus  int
	delay         time.Duration
	extra         map[string]any
	lastTokenForm url.Values
	lastRevoke    url.Values
	lastLogout    url.Values
	lastHeader    http.Header
}

func newKeycloakFake(t *testing.T) *keycloakFake {
	t.Helper()

	kc := &keycloakFake{
		t:            t,
		accessTTL:    5 * time.Minute,
		refreshTTL:   30 * time.Minute,
		revokeStatus: http.StatusOK,
		logoutStatus: http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+oidcPath+"/token", kc.handleToken)
	mux.HandleFunc("POST "+oidcPath+"/revoke", kc.handleRevoke)
	mux.HandleFunc("POST "+oidcPath+"/logout", kc.handleLogout)
	mux.HandleFunc("GET "+realmPath+"/.well-known/openid-configuration", kc.handleDiscovery)

	kc.server = httptest.NewServer(mux)
	t.Cleanup(kc.server.Close)
	return kc
}

func (kc *keycloakFake) URL() string {
	return kc.server.URL
}

func (kc *keycloakFake) configure(fn func(kc *keycloakFake)) {
	kc.lock.Lock()
	defer kc.lock.Unlock()
	fn(kc)
}

// fakeRequests is what the fake last received on each endpoint.
type fakeRequests struct {
	tokenForm  url.Values
	revokeForm url.Values
	logoutForm url.Values
	header     http.Header
}

func (kc *keycloakFake) requests() fakeRequests {
	kc.lock.Lock()
	defer kc.lock.Unlock()
	return fakeRequests{
		tokenForm:  kc.lastTokenForm,
		revokeForm: kc.lastRevoke,
		logoutForm: kc.lastLogout,
		header:     kc.lastHeader,
	}
}

// wait delays the response, giving up when the client goes away.
func (kc *keycloakFake) wait(r *http.Request) {
	kc.lock.Lock()
	delay := kc.delay
	kc.lock.Unlock()
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
	}
}

func (kc *keycloakFake) handleToken(w http.ResponseWriter, r *http.Request) {
	kc.tokenCalls.Add(1)
	kc.wait(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	kc.lock.Lock()
	kc.lastTokenForm = r.PostForm
	kc.lastHeader = r.Header.Clone()
	accessTTL, refreshTTL, failRefresh, extra := kc.accessTTL, kc.refreshTTL, kc.failRefresh, kc.extra
	kc.lock.Unlock()

	if r.PostForm.Get("client_id") != testClientID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") != testUsername || r.PostForm.Get("password") != testPassword {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant")
			return
		}
	case "refresh_token":
		kc.refreshCalls.Add(1)
		if failRefresh || r.PostForm.Get("refresh_token") == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	response := map[string]any{
		"access_token":       jwttest.Mint(kc.t, accessTTL, jwttest.WithAudience("account", "orders-api"), jwttest.WithRealmRoles("offline_access")),
		"refresh_token":      jwttest.Mint(kc.t, refreshTTL, jwttest.WithClaim("typ", "Refresh")),
		"token_type":         "Bearer",
		"expires_in":         int(accessTTL.Seconds()),
		"refresh_expires_in": int(refreshTTL.Seconds()),
		"session_state":      "a1b2c3",
		"scope":              "profile email",
		"not-before-policy":  0,
	}
	for key, value := range extra {
		response[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (kc *keycloakFake) handleRevoke(w http.ResponseWriter, r *http.Request) {
	kc.revokeCalls.Add(1)
	kc.wait(r)
	_ = r.ParseForm()

	kc.lock.Lock()
	kc.lastRevoke = r.PostForm
	status := kc.revokeStatus
	kc.lock.Unlock()

	if status != http.StatusOK {
		writeOAuthError(w, status, "invalid_request")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (kc *keycloakFake) handleLogout(w http.ResponseWriter, r *http.Request) {
	kc.logoutCalls.Add(1)
	kc.wait(r)
	_ = r.ParseForm()

	kc.lock.Lock()
	kc.lastLogout = r.PostForm
	kc.lastHeader = r.Header.Clone()
	status := kc.logoutStatus
	kc.lock.Unlock()

	if status >= http.StatusBadRequest {
		writeOAuthError(w, status, "invalid_grant")
		return
	}
	w.WriteHeader(status)
}

func (kc *keycloakFake) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := kc.server.URL + realmPath
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
		"token_endpoint":         issuer + "/protocol/openid-connect/token",
		"revocation_endpoint":    issuer + "/protocol/openid-connect/revoke",
		"end_session_endpoint":   issuer + "/protocol/openid-connect/logout",
		"jwks_uri":               issuer + "/protocol/openid-connect/certs",
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
