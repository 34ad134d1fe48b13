package oauth2

// TokenTypeHint tells the revocation endpoint which kind of token is being revoked (RFC 7009).
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// Form field names used in the revoke and logout request bodies.
const (
	FieldClientID      = "client_id"
	FieldClientSecret  = "client_secret"
	FieldRefreshToken  = "refresh_token"
	FieldToken         = "token"
	FieldTokenTypeHint = "token_type_hint"
)

// Token response fields modelled by TokenPair that x/oauth2 also reads.
const (
	FieldAccessToken = "access_token"
	FieldTokenType   = "token_type"
)

// Extra response fields Keycloak adds to the standard token response.
const (
	ExtraExpiresIn        = "expires_in"
	ExtraRefreshExpiresIn = "refresh_expires_in"
	ExtraIDToken          = "id_token"
	ExtraSessionState     = "session_state"
	ExtraScope            = "scope"
	ExtraNotBeforePolicy  = "not-before-policy"
)
