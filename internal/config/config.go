package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/jrsteele09/go-keycloak-session/storage"
	"github.com/spf13/viper"
)

// Config is everything the kcsession command needs. Durations use Go syntax, e.g. "3s".
type Config struct {
	ServerURL               string
	Realm                   string
	Resource                string
	ClientSecret            string
	Scopes                  []string
	StorageKey              string
	UseEmailAsCurrentUser   bool
	Timeout                 time.Duration
	ExpirationOffset        time.Duration
	UpdateStrategy          auth.UpdateStrategy
	GuardFallbackURL        string
	ReverseGuardFallbackURL string

	Storage StorageConfig

	LogLevel    string
	MetricsAddr string
	APIURL      string
	Discover    bool

	Username string
	Password string
}

type StorageConfig struct {
	Backend       string
	Dir           string
	Secret        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads .env, then an optional config file, then KEYCLOAK_* environment variables.
// An empty configFile looks for kcsession.{yaml,json,toml} in the working directory.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("kcsession")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	strategy, err := auth.ParseUpdateStrategy(v.GetString(keyUpdateStrategy))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:               v.GetString(keyServerURL),
		Realm:                   v.GetString(keyRealm),
		Resource:                v.GetString(keyResource),
		ClientSecret:            v.GetString(keyClientSecret),
		Scopes:                  v.GetStringSlice(keyScopes),
		StorageKey:              v.GetString(keyStorageKey),
		UseEmailAsCurrentUser:   v.GetBool(keyUseEmailAsCurrentUser),
		Timeout:                 v.GetDuration(keyTimeout),
		ExpirationOffset:        v.GetDuration(keyExpirationOffset),
		UpdateStrategy:          strategy,
		GuardFallbackURL:        v.GetString(keyGuardFallbackURL),
		ReverseGuardFallbackURL: v.GetString(keyReverseGuardFallbackURL),
		Storage: StorageConfig{
			Backend:       strings.ToLower(v.GetString(keyStorageBackend)),
			Dir:           v.GetString(keyStorageDir),
			Secret:        v.GetString(keyStorageSecret),
			RedisAddr:     v.GetString(keyRedisAddr),
			RedisPassword: v.GetString(keyRedisPassword),
			RedisDB:       v.GetInt(keyRedisDB),
		},
		LogLevel:    v.GetString(keyLogLevel),
		MetricsAddr: v.GetString(keyMetricsAddr),
		APIURL:      v.GetString(keyAPIURL),
		Discover:    v.GetBool(keyDiscover),
		Username:    v.GetString(keyUsername),
		Password:    v.GetString(keyPassword),
	}
	return cfg, nil
}

// Session builds the session config on top of backend.
func (c *Config) Session(backend storage.Storage) auth.Config {
	return auth.Config{
		ServerURL:               c.ServerURL,
		Realm:                   c.Realm,
		Resource:                c.Resource,
		ClientSecret:            c.ClientSecret,
		Scopes:                  c.Scopes,
		StorageKey:              c.StorageKey,
		Storage:                 backend,
		UseEmailAsCurrentUser:   c.UseEmailAsCurrentUser,
		Timeout:                 c.Timeout,
		ExpirationOffset:        c.ExpirationOffset,
		UpdateStrategy:          c.UpdateStrategy,
		GuardFallbackURL:        c.GuardFallbackURL,
		ReverseGuardFallbackURL: c.ReverseGuardFallbackURL,
	}
}

// OpenStorage creates the configured backend, wrapped in encryption when a secret is set.
// The returned close func releases backend connections.
func (c *Config) OpenStorage() (storage.Storage, func() error, error) {
	noop := func() error { return nil }

	var (
		backend storage.Storage
		closer  = noop
	)
	switch c.Storage.Backend {
	case "", BackendMemory:
		backend = storage.NewMemoryStorage()
	case BackendFile:
		fs, err := storage.NewFileStorage(c.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		backend = fs
	case BackendRedis:
		rs, err := storage.DialRedis(c.Storage.RedisAddr, c.Storage.RedisPassword, c.Storage.RedisDB,
			storage.WithKeyPrefix("kcsession:"))
		if err != nil {
			return nil, nil, err
		}
		backend, closer = rs, rs.Close
	default:
		return nil, nil, fmt.Errorf("%w: unknown storage backend %q", auth.ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Storage.Secret == "" {
		return backend, closer, nil
	}
	encrypted, err := storage.NewEncrypted(backend, []byte(c.Storage.Secret))
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return encrypted, closer, nil
}
