package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-keycloak-session/auth"
	"github.com/jrsteele09/go-keycloak-session/internal/config"
	"github.com/jrsteele09/go-keycloak-session/storage"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KEYCLOAK_SERVER_URL", "https://sso.example.com")
	t.Setenv("KEYCLOAK_REALM", "acme")
	t.Setenv("KEYCLOAK_RESOURCE", "web")
	t.Setenv("KEYCLOAK_TIMEOUT", "5s")
	t.Setenv("KEYCLOAK_UPDATE_STRATEGY", "interval")
	t.Setenv("KEYCLOAK_USE_EMAIL_AS_CURRENT_USER", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "https://sso.example.com", cfg.ServerURL)
	require.Equal(t, "acme", cfg.Realm)
	require.Equal(t, "web", cfg.Resource)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 3*time.Second, cfg.ExpirationOffset)
	require.Equal(t, auth.UpdateInterval, cfg.UpdateStrategy)
	require.True(t, cfg.UseEmailAsCurrentUser)
	require.Equal(t, "keycloak", cfg.StorageKey)
	require.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	require.Equal(t, "info", cfg.LogLevel)

	backend := storage.NewMemoryStorage()
	session := cfg.Session(backend)
	require.NoError(t, session.Validate())
	require.Equal(t, "https://sso.example.com/realms/acme/protocol/openid-connect/token", session.DefaultEndpoints().Token)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kcsession.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://sso.example.com
realm: acme
resource: web
storage_backend: file
storage_dir: /var/lib/kcsession
expiration_offset: 10s
scopes: [openid, profile]
`), 0o600))
	t.Setenv("KEYCLOAK_REALM", "override")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "override", cfg.Realm, "environment wins over the file")
	require.Equal(t, "web", cfg.Resource)
	require.Equal(t, config.BackendFile, cfg.Storage.Backend)
	require.Equal(t, "/var/lib/kcsession", cfg.Storage.Dir)
	require.Equal(t, 10*time.Second, cfg.ExpirationOffset)
	require.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
	require.Equal(t, auth.UpdateBoth, cfg.UpdateStrategy)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("KEYCLOAK_UPDATE_STRATEGY", "sometimes")
	_, err = config.Load("")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestOpenStorage(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: config.BackendMemory}}
	backend, closeFn, err := cfg.OpenStorage()
	require.NoError(t, err)
	require.IsType(t, &storage.MemoryStorage{}, backend)
	require.NoError(t, closeFn())

	cfg.Storage = config.StorageConfig{Backend: config.BackendFile, Dir: t.TempDir(), Secret: "correct horse battery staple"}
	backend, closeFn, err = cfg.OpenStorage()
	require.NoError(t, err)
	require.IsType(t, &storage.EncryptedStorage{}, backend)
	require.NoError(t, backend.Set("k", "v"))
	value, ok, err := backend.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
	require.NoError(t, closeFn())

	cfg.Storage = config.StorageConfig{Backend: "etcd"}
	_, _, err = cfg.OpenStorage()
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}
