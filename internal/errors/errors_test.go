package errors_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	apperrors "github.com/jrsteele09/go-keycloak-session/internal/errors"
	"github.com/stretchr/testify/require"
)

var errKind = errors.New("kind")

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "ignored"))

	cause := errors.New("boom")
	err := apperrors.Wrapf(cause, "refresh %s", "alice")
	require.EqualError(t, err, "refresh alice: boom")
	require.ErrorIs(t, err, cause)
}

func TestJoin(t *testing.T) {
	require.Equal(t, errKind, apperrors.Join(errKind, nil))

	cause := errors.New("connection refused")
	err := apperrors.Join(errKind, cause)
	require.ErrorIs(t, err, errKind)
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "kind: connection refused")
}

func TestIsTimeout(t *testing.T) {
	require.False(t, apperrors.IsTimeout(nil))
	require.False(t, apperrors.IsTimeout(errKind))
	require.True(t, apperrors.IsTimeout(context.DeadlineExceeded))

	wrapped := &url.Error{Op: "Post", URL: "http://kc/token", Err: context.DeadlineExceeded}
	require.True(t, apperrors.IsTimeout(apperrors.Join(errKind, wrapped)))
}
