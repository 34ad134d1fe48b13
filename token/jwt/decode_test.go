package jwt_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/jrsteele09/go-keycloak-session/token/jwt"
	"github.com/jrsteele09/go-keycloak-session/token/jwt/jwttest"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	iat := time.Now().Truncate(time.Second)
	exp := iat.Add(5 * time.Minute)
	raw := jwttest.MintAt(t, iat, exp,
		jwttest.WithAudience("account", "orders-api"),
		jwttest.WithRealmRoles("offline_access", "admin"),
		jwttest.WithResourceRoles("orders-api", "read", "write"),
		jwttest.WithAllowedOrigins("https://app.example.com"),
	)

	claims, err := jwt.Decode(raw)
	require.NoError(t, err)

	gotExp, ok := claims.Expiry()
	require.True(t, ok)
	require.Equal(t, exp.Unix(), gotExp.Unix())

	gotIat, ok := claims.IssuedAtTime()
	require.True(t, ok)
	require.Equal(t, iat.Unix(), gotIat.Unix())

	require.True(t, claims.HasAudience("orders-api"))
	require.False(t, claims.HasAudience("billing"))
	require.True(t, claims.HasRealmRole("admin"))
	require.False(t, claims.HasRealmRole("root"))
	require.True(t, claims.HasResourceRole("orders-api", "write"))
	require.False(t, claims.HasResourceRole("orders-api", "delete"))
	require.False(t, claims.HasResourceRole("billing", "read"))
	require.True(t, claims.HasAllowedOrigin("https://app.example.com"))
	require.Equal(t, "john.doe", claims.PreferredUsername)
}

func TestDecodeSingleAudienceString(t *testing.T) {
	raw := jwttest.Mint(t, time.Minute, jwttest.WithClaim("aud", "account"))

	claims, err := jwt.Decode(raw)
	require.NoError(t, err)
	require.True(t, claims.HasAudience("account"))
}

func TestDecodeMalformed(t *testing.T) {
	garbage := base64.RawURLEncoding.EncodeToString([]byte("not json"))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "single segment", token: "abc"},
		{name: "empty payload", token: "abc..def"},
		{name: "payload not json", token: "eyJhbGciOiJIUzI1NiJ9." + garbage + ".sig"},
		{name: "payload not base64", token: "eyJhbGciOiJIUzI1NiJ9.%%%.sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := jwt.Decode(tt.token)
			require.ErrorIs(t, err, jwt.ErrMalformedToken)
			require.Nil(t, claims)
			require.Nil(t, jwt.TryDecode(tt.token))
		})
	}
}

func TestDecodeReadsOnlyPayload(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	payload := encode(`{"exp":4102444800,"iat":1}`)

	tests := []struct {
		name  string
		token string
	}{
		{name: "two segments", token: "e30." + payload},
		{name: "header without alg", token: encode(`{"typ":"JWT"}`) + "." + payload + ".sig"},
		{name: "unknown alg", token: encode(`{"alg":"RSA-OAEP"}`) + "." + payload + ".sig"},
		{name: "garbage header", token: "%%%." + payload + ".sig"},
		{name: "padded payload", token: "e30." + base64.URLEncoding.EncodeToString([]byte(`{"exp":4102444800,"iat":1}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := jwt.Decode(tt.token)
			require.NoError(t, err)

			exp, ok := claims.Expiry()
			require.True(t, ok)
			require.Equal(t, int64(4102444800), exp.Unix())
			require.NotNil(t, jwt.TryDecode(tt.token))
		})
	}
}

func TestClaimsValidity(t *testing.T) {
	now := time.Now()

	valid, err := jwt.Decode(jwttest.Mint(t, time.Minute))
	require.NoError(t, err)
	require.True(t, valid.IsValidAt(now))

	expired, err := jwt.Decode(jwttest.Mint(t, -time.Minute))
	require.NoError(t, err)
	require.False(t, expired.IsValidAt(now))

	var missing *jwt.Claims
	require.False(t, missing.IsValidAt(now))
	require.False(t, missing.HasAudience("account"))
}
