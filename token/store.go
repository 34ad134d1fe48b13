package token

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jrsteele09/go-keycloak-session/oauth2"
	"github.com/jrsteele09/go-keycloak-session/storage"
	"github.com/jrsteele09/go-keycloak-session/token/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultAccessTokenTTL is reported when no access token can be decoded.
	DefaultAccessTokenTTL = 300000 * time.Millisecond
	// DefaultRefreshTokenTTL is reported when no refresh token can be decoded.
	DefaultRefreshTokenTTL = 1800000 * time.Millisecond
)

// multiRecord is the stored shape when the store also tracks who is logged in.
// The identity outlives the tokens, so "who logged in last" survives a logout of the tokens.
type multiRecord struct {
	Email  *string           `json:"email,omitempty"`
	Tokens *oauth2.TokenPair `json:"tokens,omitempty"`
}

// Store persists the current token pair (and optionally the user identity) as a single
// JSON record under one storage key. Every accessor reads through to storage; nothing is cached.
type Store struct {
	storage     storage.Storage
	key         string
	useIdentity bool
	nowFunc     func() time.Time
	logger      zerolog.Logger
	lock        sync.Mutex
}

type StoreOption func(*Store)

// WithIdentity selects the multi record shape {email, tokens}.
func WithIdentity(useIdentity bool) StoreOption {
	return func(s *Store) {
		s.useIdentity = useIdentity
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(backend storage.Storage, key string, options ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("[NewStore] storage is required")
	}
	if key == "" {
		return nil, errors.New("[NewStore] storage key is required")
	}

	s := &Store{
		storage: backend,
		key:     key,
		nowFunc: time.Now,
		logger:  log.With().Str("component", "token-store").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// UsesIdentity reports whether the multi record shape is in use.
func (s *Store) UsesIdentity() bool {
	return s.useIdentity
}

// Tokens returns the stored token pair, or nil when there is none.
func (s *Store) Tokens() (*oauth2.TokenPair, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.useIdentity {
		record, err := s.readMulti()
		if err != nil || record == nil {
			return nil, err
		}
		return record.Tokens, nil
	}
	return s.readSimple()
}

// SetTokens replaces the stored pair. A nil pair clears the tokens; under the multi shape
// the identity is preserved and the record only disappears when both fields are empty.
func (s *Store) SetTokens(pair *oauth2.TokenPair) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.useIdentity {
		if pair == nil {
			return s.remove()
		}
		return s.write(pair)
	}

	record, err := s.readMulti()
	if err != nil {
		return err
	}
	if record == nil {
		record = &multiRecord{}
	}
	record.Tokens = pair
	return s.writeMulti(record)
}

// Identity returns the stored user identity. Always empty under the simple shape.
func (s *Store) Identity() (string, error) {
	if !s.useIdentity {
		return "", nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	record, err := s.readMulti()
	if err != nil || record == nil || record.Email == nil {
		return "", err
	}
	return *record.Email, nil
}

// SetIdentity stores the user identity, preserving the tokens. An empty identity clears it.
// No-op under the simple shape.
func (s *Store) SetIdentity(identity string) error {
	if !s.useIdentity {
		return nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	record, err := s.readMulti()
	if err != nil {
		return err
	}
	if record == nil {
		record = &multiRecord{}
	}
	record.Email = nil
	if identity != "" {
		record.Email = &identity
	}
	return s.writeMulti(record)
}

// Clear removes the whole record, identity included.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.remove()
}

// ClearTokens removes the tokens and keeps the identity.
func (s *Store) ClearTokens() error {
	return s.SetTokens(nil)
}

// ClearIdentity removes the identity and keeps the tokens.
func (s *Store) ClearIdentity() error {
	return s.SetIdentity("")
}

// AccessToken returns the stored access token or "" when unavailable.
func (s *Store) AccessToken() string {
	pair := s.tokensOrNil()
	if pair == nil {
		return ""
	}
	return pair.AccessToken
}

// RefreshToken returns the stored refresh token or "" when unavailable.
func (s *Store) RefreshToken() string {
	pair := s.tokensOrNil()
	if pair == nil {
		return ""
	}
	return pair.RefreshToken
}

// ParsedAccessToken decodes the access token, returning nil on absence or decode failure.
func (s *Store) ParsedAccessToken() *jwt.Claims {
	return jwt.TryDecode(s.AccessToken())
}

// ParsedRefreshToken decodes the refresh token, returning nil on absence or decode failure.
func (s *Store) ParsedRefreshToken() *jwt.Claims {
	return jwt.TryDecode(s.RefreshToken())
}

// TTLOfAccessToken is the full lifetime (exp - iat) of the access token.
func (s *Store) TTLOfAccessToken() time.Duration {
	claims := s.ParsedAccessToken()
	exp, hasExp := claims.Expiry()
	iat, hasIat := claims.IssuedAtTime()
	if !hasExp || !hasIat {
		return DefaultAccessTokenTTL
	}
	return time.Duration(exp.Unix()-iat.Unix()) * time.Second
}

// RemainingTTLOfAccessToken is exp - now. Negative once the token has expired.
func (s *Store) RemainingTTLOfAccessToken() time.Duration {
	return s.remaining(s.ParsedAccessToken(), DefaultAccessTokenTTL)
}

// RemainingTTLOfRefreshToken is exp - now. Negative once the token has expired.
func (s *Store) RemainingTTLOfRefreshToken() time.Duration {
	return s.remaining(s.ParsedRefreshToken(), DefaultRefreshTokenTTL)
}

func (s *Store) remaining(claims *jwt.Claims, fallback time.Duration) time.Duration {
	exp, ok := claims.Expiry()
	if !ok {
		return fallback
	}
	return time.Duration(exp.Unix()*1000-s.nowFunc().UnixMilli()) * time.Millisecond
}

func (s *Store) tokensOrNil() *oauth2.TokenPair {
	pair, err := s.Tokens()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Unreadable session record")
		return nil
	}
	return pair
}

func (s *Store) readSimple() (*oauth2.TokenPair, error) {
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.readSimple] storage get")
	}
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}

	pair := &oauth2.TokenPair{}
	if err := json.Unmarshal([]byte(raw), pair); err != nil {
		return nil, errors.Wrap(err, "[Store.readSimple] unmarshal")
	}
	return pair, nil
}

func (s *Store) readMulti() (*multiRecord, error) {
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.readMulti] storage get")
	}
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}

	record := &multiRecord{}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return nil, errors.Wrap(err, "[Store.readMulti] unmarshal")
	}
	return record, nil
}

func (s *Store) writeMulti(record *multiRecord) error {
	if record.Email == nil && record.Tokens == nil {
		return s.remove()
	}
	return s.write(record)
}

func (s *Store) write(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "[Store.write] marshal")
	}
	if err := s.storage.Set(s.key, string(data)); err != nil {
		return errors.Wrap(err, "[Store.write] storage set")
	}
	return nil
}

func (s *Store) remove() error {
	if err := s.storage.Remove(s.key); err != nil {
		return errors.Wrap(err, "[Store.remove] storage remove")
	}
	return nil
}
