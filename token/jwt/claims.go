package jwt

import (
	"slices"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Roles is the `{"roles": [...]}` object Keycloak uses for realm and resource access.
type Roles struct {
	Roles []string `json:"roles"`
}

// Claims represents the decoded payload of a Keycloak access or refresh token.
// Identity fields are informational only; nothing in this module makes decisions on them.
type Claims struct {
	jwtlib.RegisteredClaims

	Type            string           `json:"typ,omitempty"`             // Bearer / Refresh / ID
	AuthorizedParty string           `json:"azp,omitempty"`             // Client the token was issued to
	SessionID       string           `json:"sid,omitempty"`             // Keycloak user session
	SessionState    string           `json:"session_state,omitempty"`   // Legacy session identifier
	Scope           string           `json:"scope,omitempty"`           // Space separated scopes
	AllowedOrigins  []string         `json:"allowed-origins,omitempty"` // Web origins of the client
	RealmAccess     Roles            `json:"realm_access"`              // Realm level roles
	ResourceAccess  map[string]Roles `json:"resource_access,omitempty"` // Client level roles keyed by client id

	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

// Expiry returns the exp claim and whether it was present.
func (c *Claims) Expiry() (time.Time, bool) {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// IssuedAtTime returns the iat claim and whether it was present.
func (c *Claims) IssuedAtTime() (time.Time, bool) {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}, false
	}
	return c.IssuedAt.Time, true
}

// IsValidAt reports whether exp is at or after now. A missing exp is invalid.
func (c *Claims) IsValidAt(now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	return exp.UnixMilli() >= now.UnixMilli()
}

func (c *Claims) HasAudience(aud string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Audience, aud)
}

func (c *Claims) HasAllowedOrigin(origin string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.AllowedOrigins, origin)
}

func (c *Claims) HasRealmRole(role string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.RealmAccess.Roles, role)
}

func (c *Claims) HasResourceRole(resource, role string) bool {
	if c == nil || c.ResourceAccess == nil {
		return false
	}
	access, ok := c.ResourceAccess[resource]
	if !ok {
		return false
	}
	return slices.Contains(access.Roles, role)
}
