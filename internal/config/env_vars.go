package config

import (
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment, e.g. KEYCLOAK_REALM.
const EnvPrefix = "KEYCLOAK"

const (
	keyServerURL               = "server_url"
	keyRealm                   = "realm"
	keyResource                = "resource"
	keyClientSecret            = "client_secret"
	keyScopes                  = "scopes"
	keyStorageKey              = "storage_key"
	keyStorageBackend          = "storage_backend"
	keyStorageDir              = "storage_dir"
	keyStorageSecret           = "storage_secret"
	keyRedisAddr               = "redis_addr"
	keyRedisPassword           = "redis_password"
	keyRedisDB                 = "redis_db"
	keyUseEmailAsCurrentUser   = "use_email_as_current_user"
	keyTimeout                 = "timeout"
	keyExpirationOffset        = "expiration_offset"
	keyUpdateStrategy          = "update_strategy"
	keyGuardFallbackURL        = "guard_fallback_url"
	keyReverseGuardFallbackURL = "reverse_guard_fallback_url"
	keyLogLevel                = "log_level"
	keyMetricsAddr             = "metrics_addr"
	keyAPIURL                  = "api_url"
	keyDiscover                = "discover"
	keyUsername                = "username"
	keyPassword                = "password"
)

// Storage backends selectable with storage_backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyStorageKey, "keycloak")
	v.SetDefault(keyStorageBackend, BackendMemory)
	v.SetDefault(keyStorageDir, "./data/session")
	v.SetDefault(keyRedisAddr, "localhost:6379")
	v.SetDefault(keyRedisDB, 0)
	v.SetDefault(keyTimeout, 3*time.Second)
	v.SetDefault(keyExpirationOffset, 3*time.Second)
	v.SetDefault(keyUpdateStrategy, "both")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyMetricsAddr, ":9090")
	v.SetDefault(keyDiscover, false)
}
