package oauth2

import (
	"encoding/json"
	"reflect"
)

// TokenPair is the Keycloak token endpoint response as persisted by the client.
// It is replaced wholesale on every login and refresh.
type TokenPair struct {
	// AccessToken is presented as "Authorization: Bearer <access_token>" on API calls.
	AccessToken string `json:"access_token"`

	// RefreshToken is exchanged at the token endpoint with grant_type=refresh_token.
	RefreshToken string `json:"refresh_token"`

	// TokenType is "Bearer" for Keycloak.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. A hint only; exp in the JWT rules.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshExpiresIn is the refresh token lifetime in seconds.
	RefreshExpiresIn int64 `json:"refresh_expires_in,omitempty"`

	// IDToken is present when the openid scope was granted.
	IDToken string `json:"id_token,omitempty"`

	SessionState    string `json:"session_state,omitempty"`
	Scope           string `json:"scope,omitempty"`
	NotBeforePolicy int64  `json:"not-before-policy,omitempty"`

	// Extra holds any other response fields. They are stored alongside the known ones, untouched.
	Extra map[string]any `json:"-"`
}

// tokenPairFields has TokenPair's layout without its JSON methods.
type tokenPairFields TokenPair

var knownFields = []string{
	FieldAccessToken, FieldRefreshToken, FieldTokenType,
	ExtraExpiresIn, ExtraRefreshExpiresIn, ExtraIDToken,
	ExtraSessionState, ExtraScope, ExtraNotBeforePolicy,
}

// MarshalJSON writes the known fields over Extra, so a known field always wins.
func (p TokenPair) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(tokenPairFields(p))
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+len(knownFields))
	for key, value := range p.Extra {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the known fields and keeps every other key in Extra.
func (p *TokenPair) UnmarshalJSON(data []byte) error {
	var fields tokenPairFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range knownFields {
		delete(all, key)
	}
	if len(all) == 0 {
		all = nil
	}

	*p = TokenPair(fields)
	p.Extra = all
	return nil
}

// Equal reports structural equality, treating two nil pairs as equal.
// A nil and an empty Extra are equal.
func (p *TokenPair) Equal(other *TokenPair) bool {
	if p == nil || other == nil {
		return p == other
	}
	a, b := *p, *other
	a.Extra, b.Extra = nil, nil
	if !reflect.DeepEqual(a, b) {
		return false
	}
	if len(p.Extra) == 0 && len(other.Extra) == 0 {
		return true
	}
	return reflect.DeepEqual(p.Extra, other.Extra)
}
