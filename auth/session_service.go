package auth

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-keycloak-session/oauth2"
	"github.com/jrsteele09/go-keycloak-session/token"
	"github.com/jrsteele09/go-keycloak-session/token/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionService is the entry point for a Keycloak session: it logs in, keeps the
// access token fresh, revokes and logs out, and answers validity and claim questions
// about the stored tokens.
type SessionService struct {
	cfg        Config
	endpoints  Endpoints
	store      *token.Store
	signal     *Signal
	acquirer   *acquirer
	scheduler  *Scheduler
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *Metrics
	nowFunc    func() time.Time

	// timerHeader holds the extra headers sent with scheduled refreshes.
	timerHeader atomic.Pointer[http.Header]
}

// SessionOption defines a function type to modify the SessionService instance.
type SessionOption func(*SessionService)

// WithHTTPClient sets the client used to reach the identity provider. It must not carry
// the session's own interceptors.
func WithHTTPClient(client *http.Client) SessionOption {
	return func(s *SessionService) {
		s.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *SessionService) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.nowFunc = nowFunc
	}
}

// WithEndpoints replaces the endpoints derived from ServerURL and Realm, e.g. with discovered ones.
func WithEndpoints(endpoints Endpoints) SessionOption {
	return func(s *SessionService) {
		s.endpoints = endpoints
	}
}

func WithMetrics(metrics *Metrics) SessionOption {
	return func(s *SessionService) {
		s.metrics = metrics
	}
}

// NewSessionService validates cfg and wires the store, acquirer and scheduler.
// The session starts unauthorized; call StartAccessTokenUpdate to resume a stored session.
func NewSessionService(cfg Config, options ...SessionOption) (*SessionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[NewSessionService] invalid config")
	}

	s := &SessionService{
		cfg:        cfg,
		endpoints:  cfg.DefaultEndpoints(),
		signal:     NewSignal(false),
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "keycloak-session").Logger(),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.httpClient == nil {
		return nil, errors.New("[NewSessionService] http client is required")
	}

	store, err := token.NewStore(cfg.Storage, cfg.StorageKey,
		token.WithIdentity(cfg.UseEmailAsCurrentUser),
		token.WithNowFunc(s.nowFunc),
		token.WithLogger(s.logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSessionService] token store")
	}
	s.store = store

	s.acquirer = &acquirer{
		cfg:       cfg,
		endpoints: s.endpoints,
		store:     store,
		signal:    s.signal,
		client:    s.httpClient,
		logger:    s.logger,
		metrics:   s.metrics,
	}
	s.scheduler = NewScheduler(s.scheduledRefresh, s.intervalPeriod,
		WithSchedulerLogger(s.logger),
		WithSchedulerMetrics(s.metrics),
	)
	s.metrics.setAuthorized(false)

	return s, nil
}

// Store exposes the token store, e.g. to read the stored identity.
func (s *SessionService) Store() *token.Store {
	return s.store
}

func (s *SessionService) Config() Config {
	return s.cfg
}

func (s *SessionService) Endpoints() Endpoints {
	return s.endpoints
}

// IsAuthorized reports whether the last login or refresh succeeded. It does not look at token expiry.
func (s *SessionService) IsAuthorized() bool {
	return s.signal.Value()
}

// WatchAuthorized streams the authorized flag, starting with its current value.
func (s *SessionService) WatchAuthorized() (<-chan bool, func()) {
	return s.signal.Subscribe()
}

// SetAuthorized overrides the authorized flag.
func (s *SessionService) SetAuthorized(authorized bool) {
	s.acquirer.setAuthorized(authorized)
}

func (s *SessionService) IsAccessTokenValid() bool {
	return s.store.ParsedAccessToken().IsValidAt(s.nowFunc())
}

func (s *SessionService) IsRefreshTokenValid() bool {
	return s.store.ParsedRefreshToken().IsValidAt(s.nowFunc())
}

// Login runs the password grant and stores the resulting tokens and identity.
// With autoStartInterval the interval timer starts straight away when the update
// strategy allows it, skipping the one-shot wake since the token is fresh.
func (s *SessionService) Login(ctx context.Context, username, password string, autoStartInterval bool, header http.Header) (*oauth2.TokenPair, error) {
	pair, err := s.acquirer.login(ctx, username, password, header)
	if err != nil {
		return nil, err
	}

	if autoStartInterval && s.cfg.GetUpdateStrategy().ShouldUpdateByInterval() {
		s.setTimerHeader(header)
		s.scheduler.StartInterval(s.intervalPeriod())
	}
	return pair, nil
}

// Logout ends the session at the identity provider, stops the timers and clears the store.
// Without a stored refresh token there is no server session to end and only the local teardown runs.
func (s *SessionService) Logout(ctx context.Context, header http.Header) error {
	if refreshToken := s.store.RefreshToken(); refreshToken != "" {
		if err := s.acquirer.logout(ctx, refreshToken, header); err != nil {
			s.logger.Warn().Err(err).Msg("Logout failed")
			return err
		}
	}

	s.scheduler.Stop()
	if err := s.store.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("Could not clear session record")
	}
	s.acquirer.setAuthorized(false)
	s.logger.Info().Msg("Logged out")
	return nil
}

// StartAccessTokenUpdate resumes a session from the stored tokens. With an invalid refresh
// token the session becomes unauthorized and nothing is scheduled. Otherwise it becomes
// authorized and, when the update strategy allows, a refresh is scheduled shortly before
// the access token expires.
func (s *SessionService) StartAccessTokenUpdate(header http.Header) {
	if !s.IsRefreshTokenValid() {
		s.acquirer.setAuthorized(false)
		return
	}
	s.acquirer.setAuthorized(true)

	if !s.cfg.GetUpdateStrategy().ShouldUpdateByInterval() {
		return
	}
	s.setTimerHeader(header)
	s.scheduler.StartOneShot(s.store.RemainingTTLOfAccessToken() - s.cfg.GetExpirationOffset())
}

// AccessTokenUpdateActive reports which refresh timer is scheduled. At most one is.
func (s *SessionService) AccessTokenUpdateActive() (oneShot bool, interval bool) {
	return s.scheduler.Active()
}

// StopAccessTokenUpdate cancels both refresh timers. Safe to call when none are running.
func (s *SessionService) StopAccessTokenUpdate() {
	s.scheduler.Stop()
}

// ForceUpdateAccessToken refreshes now. It fails with ErrInvalidRefreshToken, without any
// request, when the stored refresh token is missing or expired.
func (s *SessionService) ForceUpdateAccessToken(ctx context.Context, header http.Header) (*oauth2.TokenPair, error) {
	if !s.IsRefreshTokenValid() {
		return nil, ErrInvalidRefreshToken
	}
	return s.acquirer.refresh(ctx, "", header)
}

// RevokeAccessToken revokes override, or the stored access token when override is empty.
func (s *SessionService) RevokeAccessToken(ctx context.Context, override string) error {
	return s.acquirer.revoke(ctx, oauth2.AccessTokenHint, override, nil)
}

// RevokeRefreshToken revokes override, or the stored refresh token when override is empty.
// Keycloak ends the session bound to a revoked refresh token.
func (s *SessionService) RevokeRefreshToken(ctx context.Context, override string) error {
	return s.acquirer.revoke(ctx, oauth2.RefreshTokenHint, override, nil)
}

// ValidateCredentials checks username and password with a throwaway password grant and
// revokes the issued access token. Nothing is stored and the authorized flag is untouched.
func (s *SessionService) ValidateCredentials(ctx context.Context, username, password string, header http.Header) error {
	started := time.Now()
	pair, err := s.acquirer.passwordGrant(ctx, username, password, header)
	if err != nil {
		s.metrics.observeRequest(opValidate, started, err)
		return classify(ErrLogin, err)
	}

	err = s.acquirer.revoke(ctx, oauth2.AccessTokenHint, pair.AccessToken, header)
	s.metrics.observeRequest(opValidate, started, err)
	return err
}

func (s *SessionService) HasAccessTokenAllowedOrigin(origin string) bool {
	return s.store.ParsedAccessToken().HasAllowedOrigin(origin)
}

func (s *SessionService) HasAccessTokenAud(aud string) bool {
	return s.store.ParsedAccessToken().HasAudience(aud)
}

func (s *SessionService) HasAccessTokenRealmAccess(role string) bool {
	return s.store.ParsedAccessToken().HasRealmRole(role)
}

func (s *SessionService) HasAccessTokenResourceAccess(resource, role string) bool {
	return s.store.ParsedAccessToken().HasResourceRole(resource, role)
}

// AccessTokenClaims decodes the stored access token, or returns nil.
func (s *SessionService) AccessTokenClaims() *jwt.Claims {
	return s.store.ParsedAccessToken()
}

func (s *SessionService) scheduledRefresh(ctx context.Context) error {
	var header http.Header
	if h := s.timerHeader.Load(); h != nil {
		header = *h
	}
	_, err := s.acquirer.refresh(ctx, "", header)
	return err
}

func (s *SessionService) intervalPeriod() time.Duration {
	return s.store.TTLOfAccessToken() - s.cfg.GetExpirationOffset()
}

func (s *SessionService) setTimerHeader(header http.Header) {
	h := header.Clone()
	s.timerHeader.Store(&h)
}
