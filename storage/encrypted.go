package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var _ Storage = (*EncryptedStorage)(nil)

const hkdfInfo = "go-keycloak-session storage v1"

// EncryptedStorage seals values with XChaCha20-Poly1305 before handing them to the
// wrapped Storage. The storage key is bound as additional data, so a ciphertext copied
// under another key fails to open.
type EncryptedStorage struct {
	inner Storage
	key   []byte
}

// NewEncrypted derives a 256-bit key from secret with HKDF-SHA256.
func NewEncrypted(inner Storage, secret []byte) (*EncryptedStorage, error) {
	if inner == nil {
		return nil, errors.New("[NewEncrypted] inner storage is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("[NewEncrypted] secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Wrap(err, "[NewEncrypted] derive key")
	}
	return &EncryptedStorage{inner: inner, key: key}, nil
}

func (e *EncryptedStorage) Get(key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", false, errors.Wrapf(err, "[EncryptedStorage.Get] decode %q", key)
	}

	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", false, errors.Wrap(err, "[EncryptedStorage.Get] cipher")
	}
	if len(data) < aead.NonceSize() {
		return "", false, errors.Errorf("[EncryptedStorage.Get] ciphertext for %q too short", key)
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, errors.Wrapf(err, "[EncryptedStorage.Get] open %q", key)
	}
	return string(plain), true, nil
}

func (e *EncryptedStorage) Set(key, value string) error {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return errors.Wrap(err, "[EncryptedStorage.Set] cipher")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[EncryptedStorage.Set] nonce")
	}

	sealed := aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return e.inner.Set(key, base64.StdEncoding.EncodeToString(sealed))
}

func (e *EncryptedStorage) Remove(key string) error {
	return e.inner.Remove(key)
}
