// Package jwttest mints unsigned-by-Keycloak HS256 tokens shaped like Keycloak's, for tests.
package jwttest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var signingKey = []byte("jwttest-signing-key")

// TokenOption adjusts the claims of a minted token.
type TokenOption func(jwtlib.MapClaims)

func WithClaim(name string, value any) TokenOption {
	return func(c jwtlib.MapClaims) {
		c[name] = value
	}
}

func WithAudience(aud ...string) TokenOption {
	return WithClaim("aud", aud)
}

func WithRealmRoles(roles ...string) TokenOption {
	return WithClaim("realm_access", map[string]any{"roles": roles})
}

func WithResourceRoles(resource string, roles ...string) TokenOption {
	return func(c jwtlib.MapClaims) {
		access, _ := c["resource_access"].(map[string]any)
		if access == nil {
			access = map[string]any{}
		}
		access[resource] = map[string]any{"roles": roles}
		c["resource_access"] = access
	}
}

func WithAllowedOrigins(origins ...string) TokenOption {
	return WithClaim("allowed-origins", origins)
}

// Mint creates an access-token-like JWT issued now and expiring after ttl (ttl may be negative).
func Mint(t testing.TB, ttl time.Duration, options ...TokenOption) string {
	t.Helper()
	now := NowTimeFunc()
	return MintAt(t, now, now.Add(ttl), options...)
}

// MintAt creates a JWT with explicit iat and exp.
func MintAt(t testing.TB, iat, exp time.Time, options ...TokenOption) string {
	t.Helper()

	claims := jwtlib.MapClaims{
		"iss":                "http://keycloak.test/realms/test",
		"sub":                uuid.New().String(),
		"typ":                "Bearer",
		"azp":                "test-client",
		"iat":                iat.Unix(),
		"exp":                exp.Unix(),
		"jti":                uuid.New().String(),
		"email":              "john.doe@example.com",
		"preferred_username": "john.doe",
	}
	for _, opt := range options {
		opt(claims)
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("jwttest.MintAt: %v", err)
	}
	return signed
}
