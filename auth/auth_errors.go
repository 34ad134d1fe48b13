package auth

import (
	"errors"
	"fmt"
)

var (
	ErrLogin               = errors.New("could not login")
	ErrRefresh             = errors.New("could not refresh access token")
	ErrInvalidRefreshToken = errors.New("expected refresh token to be valid")
	ErrRevoke              = errors.New("could not revoke token")
	ErrNetworkTimeout      = errors.New("request timed out")
	ErrLogout              = errors.New("could not logout")
	ErrInvalidConfig       = errors.New("invalid keycloak configuration")
)

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded with status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s responded with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
