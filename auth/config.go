package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-keycloak-session/storage"
)

const (
	DefaultTimeout          = 3000 * time.Millisecond
	DefaultExpirationOffset = 3000 * time.Millisecond
)

// UpdateStrategy selects which mechanisms keep the access token fresh.
type UpdateStrategy string

const (
	UpdateNone        UpdateStrategy = "none"
	UpdateInterval    UpdateStrategy = "interval"
	UpdateInterceptor UpdateStrategy = "interceptor"
	UpdateBoth        UpdateStrategy = "both"
)

// ParseUpdateStrategy maps a configuration string to an UpdateStrategy. Empty selects UpdateBoth.
func ParseUpdateStrategy(value string) (UpdateStrategy, error) {
	switch s := UpdateStrategy(strings.ToLower(strings.TrimSpace(value))); s {
	case "":
		return UpdateBoth, nil
	case UpdateNone, UpdateInterval, UpdateInterceptor, UpdateBoth:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown update strategy %q", ErrInvalidConfig, value)
	}
}

// ShouldUpdateByInterval reports whether timer driven refreshes are enabled.
func (s UpdateStrategy) ShouldUpdateByInterval() bool {
	return s == UpdateInterval || s == UpdateBoth
}

// ShouldUpdateByInterceptor reports whether a 401 response triggers a refresh.
func (s UpdateStrategy) ShouldUpdateByInterceptor() bool {
	return s == UpdateInterceptor || s == UpdateBoth
}

// GuardFallbackFunc runs when the route guard denies a request.
type GuardFallbackFunc func(r *http.Request)

// Config describes one Keycloak client and how its session is kept.
type Config struct {
	ServerURL    string   `mapstructure:"server_url" validate:"required,url"`
	Realm        string   `mapstructure:"realm" validate:"required"`
	Resource     string   `mapstructure:"resource" validate:"required"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`

	StorageKey string          `mapstructure:"storage_key" validate:"required"`
	Storage    storage.Storage `mapstructure:"-" validate:"required"`

	// UseEmailAsCurrentUser stores the login identity next to the tokens and sends it as a header.
	UseEmailAsCurrentUser bool           `mapstructure:"use_email_as_current_user"`
	Timeout               time.Duration  `mapstructure:"timeout" validate:"gte=0"`
	ExpirationOffset      time.Duration  `mapstructure:"expiration_offset"`
	UpdateStrategy        UpdateStrategy `mapstructure:"update_strategy" validate:"omitempty,oneof=none interval interceptor both"`

	GuardFallbackURL             string            `mapstructure:"guard_fallback_url"`
	ReverseGuardFallbackURL      string            `mapstructure:"reverse_guard_fallback_url"`
	GuardFallbackCallback        GuardFallbackFunc `mapstructure:"-"`
	ReverseGuardFallbackCallback GuardFallbackFunc `mapstructure:"-"`
}

var validate = validator.New()

// Validate checks the required fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// GetExpirationOffset returns the configured offset. Zero selects the default; negative values are kept.
func (c Config) GetExpirationOffset() time.Duration {
	if c.ExpirationOffset == 0 {
		return DefaultExpirationOffset
	}
	return c.ExpirationOffset
}

func (c Config) GetUpdateStrategy() UpdateStrategy {
	if c.UpdateStrategy == "" {
		return UpdateBoth
	}
	return c.UpdateStrategy
}

// RealmURL is the issuer URL of the realm.
func (c Config) RealmURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/realms/" + c.Realm
}

// Endpoints are the realm's OpenID Connect endpoints used by the session.
type Endpoints struct {
	Token  string
	Revoke string
	Logout string
}

// DefaultEndpoints builds the Keycloak endpoint URLs from the server URL and realm.
func (c Config) DefaultEndpoints() Endpoints {
	base := c.RealmURL() + "/protocol/openid-connect"
	return Endpoints{
		Token:  base + "/token",
		Revoke: base + "/revoke",
		Logout: base + "/logout",
	}
}
