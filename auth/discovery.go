package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-keycloak-session/internal/errors"
)

// providerMetadata holds the discovery fields go-oidc does not expose directly.
type providerMetadata struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// DiscoverEndpoints reads the realm's OpenID configuration document at
// {issuer}/.well-known/openid-configuration. A nil client selects http.DefaultClient.
func DiscoverEndpoints(ctx context.Context, issuer string, client *http.Client) (Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, apperrors.Wrapf(err, "failed to create OIDC provider for %s", issuer)
	}

	var metadata providerMetadata
	if err := provider.Claims(&metadata); err != nil {
		return Endpoints{}, apperrors.Wrapf(err, "failed to read provider metadata")
	}

	endpoints := Endpoints{
		Token:  provider.Endpoint().TokenURL,
		Revoke: metadata.RevocationEndpoint,
		Logout: metadata.EndSessionEndpoint,
	}
	if endpoints.Token == "" || endpoints.Revoke == "" || endpoints.Logout == "" {
		return Endpoints{}, fmt.Errorf("%w: issuer %s does not advertise token, revocation and end session endpoints", ErrInvalidConfig, issuer)
	}
	return endpoints, nil
}
