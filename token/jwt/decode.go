package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned by Decode when the compact serialization cannot be read.
var ErrMalformedToken = errors.New("malformed token")

var segmentParser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())

// Decode reads the payload of a compact JWT without verifying its signature.
// Only the second segment is read; the header and signature are ignored.
func Decode(rawToken string) (*Claims, error) {
	segments := strings.Split(rawToken, ".")
	if len(segments) < 2 || segments[1] == "" {
		return nil, fmt.Errorf("%w: missing payload segment", ErrMalformedToken)
	}

	payload, err := segmentParser.DecodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return claims, nil
}

// TryDecode is Decode for callers that treat an unreadable token as absent.
func TryDecode(rawToken string) *Claims {
	if rawToken == "" {
		return nil
	}
	claims, err := Decode(rawToken)
	if err != nil {
		return nil
	}
	return claims
}
