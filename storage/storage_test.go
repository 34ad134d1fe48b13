package storage_test

import (
	"testing"

	"github.com/jrsteele09/go-keycloak-session/storage"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the behaviour every backend must share.
func exerciseStorage(t *testing.T, s storage.Storage) {
	t.Helper()

	_, ok, err := s.Get("session")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set("session", `{"access_token":"a"}`))
	value, ok, err := s.Get("session")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"access_token":"a"}`, value)

	require.NoError(t, s.Set("session", `{"access_token":"b"}`))
	value, _, err = s.Get("session")
	require.NoError(t, err)
	require.Equal(t, `{"access_token":"b"}`, value)

	require.NoError(t, s.Set("other/key with spaces", "x"))
	value, ok, err = s.Get("other/key with spaces")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", value)

	require.NoError(t, s.Remove("session"))
	_, ok, err = s.Get("session")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Remove("session"), "removing a missing key is not an error")
}

func TestMemoryStorage(t *testing.T) {
	s := storage.NewMemoryStorage()
	exerciseStorage(t, s)
	require.Equal(t, 1, s.Len())
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	exerciseStorage(t, s)

	require.NoError(t, s.Set("persisted", "value"))
	reopened, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	value, ok, err := reopened.Get("persisted")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", value)
}

func TestEncryptedStorage(t *testing.T) {
	inner := storage.NewMemoryStorage()
	s, err := storage.NewEncrypted(inner, []byte("correct horse battery staple"))
	require.NoError(t, err)
	exerciseStorage(t, s)

	require.NoError(t, s.Set("secret", "plain text"))
	sealed, ok, err := inner.Get("secret")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, sealed, "plain text")

	other, err := storage.NewEncrypted(inner, []byte("wrong secret"))
	require.NoError(t, err)
	_, _, err = other.Get("secret")
	require.Error(t, err)

	require.NoError(t, inner.Set("moved", sealed))
	_, _, err = s.Get("moved")
	require.Error(t, err, "ciphertext is bound to its key")
}

func TestNewEncryptedValidation(t *testing.T) {
	_, err := storage.NewEncrypted(nil, []byte("secret"))
	require.Error(t, err)

	_, err = storage.NewEncrypted(storage.NewMemoryStorage(), nil)
	require.Error(t, err)
}
