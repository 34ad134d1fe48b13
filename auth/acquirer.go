package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-keycloak-session/internal/errors"
	"github.com/jrsteele09/go-keycloak-session/oauth2"
	"github.com/jrsteele09/go-keycloak-session/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	xoauth2 "golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// acquirer performs the single request/response exchanges with the identity provider
// and applies their effects to the store and the signal.
type acquirer struct {
	cfg       Config
	endpoints Endpoints
	store     *token.Store
	signal    *Signal
	client    *http.Client
	logger    zerolog.Logger
	metrics   *Metrics
}

func (a *acquirer) oauthConfig() *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     a.cfg.Resource,
		ClientSecret: a.cfg.ClientSecret,
		Scopes:       a.cfg.Scopes,
		Endpoint: xoauth2.Endpoint{
			TokenURL:  a.endpoints.Token,
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}
}

// exchangeContext bounds ctx by the configured timeout and carries the HTTP client
// (with any extra headers) for golang.org/x/oauth2. The returned capture holds the
// token response body once the exchange succeeds.
func (a *acquirer) exchangeContext(ctx context.Context, header http.Header) (context.Context, *bodyCapture, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.GetTimeout())
	client, capture := withCapture(withHeaders(a.client, header))
	return context.WithValue(ctx, xoauth2.HTTPClient, client), capture, cancel
}

// passwordGrant exchanges credentials for a token pair without touching the store or the signal.
func (a *acquirer) passwordGrant(ctx context.Context, username, password string, header http.Header) (*oauth2.TokenPair, error) {
	ctx, capture, cancel := a.exchangeContext(ctx, header)
	defer cancel()

	tok, err := a.oauthConfig().PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return tokenPairFrom(tok, capture.Bytes()), nil
}

func (a *acquirer) login(ctx context.Context, username, password string, header http.Header) (*oauth2.TokenPair, error) {
	started := time.Now()
	pair, err := a.passwordGrant(ctx, username, password, header)
	if err == nil {
		err = a.persistLogin(pair, username)
	}
	a.metrics.observeRequest(opLogin, started, err)

	if err != nil {
		a.setAuthorized(false)
		a.logger.Warn().Err(err).Str("username", username).Msg("Login failed")
		return nil, classify(ErrLogin, err)
	}

	a.setAuthorized(true)
	a.logger.Info().Str("username", username).Msg("Logged in")
	return pair, nil
}

func (a *acquirer) persistLogin(pair *oauth2.TokenPair, username string) error {
	if err := a.store.SetTokens(pair); err != nil {
		return err
	}
	return a.store.SetIdentity(username)
}

// refresh runs the refresh_token grant with override, or the stored refresh token when override is empty.
// Any failure clears the stored tokens and flips the signal to false.
func (a *acquirer) refresh(ctx context.Context, override string, header http.Header) (*oauth2.TokenPair, error) {
	started := time.Now()
	pair, err := a.refreshGrant(ctx, override, header)
	if err == nil {
		err = a.store.SetTokens(pair)
	}
	a.metrics.observeRequest(opRefresh, started, err)

	if err != nil {
		if clearErr := a.store.ClearTokens(); clearErr != nil {
			a.logger.Error().Err(clearErr).Msg("Could not clear tokens after failed refresh")
		}
		a.setAuthorized(false)
		a.logger.Warn().Err(err).Msg("Access token refresh failed")
		return nil, classify(ErrRefresh, err)
	}

	a.setAuthorized(true)
	a.logger.Debug().Msg("Access token refreshed")
	return pair, nil
}

func (a *acquirer) refreshGrant(ctx context.Context, override string, header http.Header) (*oauth2.TokenPair, error) {
	refreshToken := override
	if refreshToken == "" {
		refreshToken = a.store.RefreshToken()
	}
	if refreshToken == "" {
		return nil, errors.New("[acquirer.refreshGrant] no refresh token available")
	}

	ctx, capture, cancel := a.exchangeContext(ctx, header)
	defer cancel()

	tok, err := a.oauthConfig().TokenSource(ctx, &xoauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	return tokenPairFrom(tok, capture.Bytes()), nil
}

// revoke posts the token of the given kind to the revocation endpoint (RFC 7009).
func (a *acquirer) revoke(ctx context.Context, hint oauth2.TokenTypeHint, override string, header http.Header) error {
	value := override
	if value == "" {
		switch hint {
		case oauth2.AccessTokenHint:
			value = a.store.AccessToken()
		case oauth2.RefreshTokenHint:
			value = a.store.RefreshToken()
		}
	}
	if value == "" {
		return fmt.Errorf("%w: no %s available", ErrRevoke, hint)
	}

	form := a.clientForm()
	form.Set(oauth2.FieldTokenTypeHint, string(hint))
	form.Set(oauth2.FieldToken, value)

	started := time.Now()
	err := a.postForm(ctx, a.endpoints.Revoke, form, header)
	a.metrics.observeRequest(opRevoke, started, err)
	if err != nil {
		a.logger.Warn().Err(err).Str("hint", string(hint)).Msg("Token revocation failed")
		return classify(ErrRevoke, err)
	}

	a.logger.Debug().Str("hint", string(hint)).Msg("Token revoked")
	return nil
}

// logout ends the server side session bound to refreshToken.
func (a *acquirer) logout(ctx context.Context, refreshToken string, header http.Header) error {
	form := a.clientForm()
	form.Set(oauth2.FieldRefreshToken, refreshToken)

	started := time.Now()
	err := a.postForm(ctx, a.endpoints.Logout, form, header)
	a.metrics.observeRequest(opLogout, started, err)
	if err != nil {
		return classify(ErrLogout, err)
	}
	return nil
}

func (a *acquirer) clientForm() url.Values {
	form := url.Values{}
	form.Set(oauth2.FieldClientID, a.cfg.Resource)
	if a.cfg.ClientSecret != "" {
		form.Set(oauth2.FieldClientSecret, a.cfg.ClientSecret)
	}
	return form
}

func (a *acquirer) postForm(ctx context.Context, endpoint string, form url.Values, header http.Header) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.GetTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[acquirer.postForm] new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := withHeaders(a.client, header).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *acquirer) setAuthorized(value bool) {
	a.signal.Set(value)
	a.metrics.setAuthorized(value)
}

// classify tags err with its operation kind and, for deadline failures, ErrNetworkTimeout.
func classify(kind, err error) error {
	if apperrors.IsTimeout(err) {
		return apperrors.Join(kind, apperrors.Join(ErrNetworkTimeout, err))
	}
	return apperrors.Join(kind, err)
}

// tokenPairFrom keeps the whole JSON response, extra fields included. The token fields
// come from tok, which already carries the old refresh token over when none was returned.
func tokenPairFrom(tok *xoauth2.Token, body []byte) *oauth2.TokenPair {
	pair := &oauth2.TokenPair{}
	if err := json.Unmarshal(body, pair); err != nil {
		pair = tokenPairFromExtra(tok)
	}
	pair.AccessToken = tok.AccessToken
	pair.RefreshToken = tok.RefreshToken
	pair.TokenType = tok.TokenType
	return pair
}

// tokenPairFromExtra reads the Keycloak fields for responses that were not JSON.
func tokenPairFromExtra(tok *xoauth2.Token) *oauth2.TokenPair {
	return &oauth2.TokenPair{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		TokenType:        tok.TokenType,
		ExpiresIn:        extraInt(tok, oauth2.ExtraExpiresIn),
		RefreshExpiresIn: extraInt(tok, oauth2.ExtraRefreshExpiresIn),
		IDToken:          extraString(tok, oauth2.ExtraIDToken),
		SessionState:     extraString(tok, oauth2.ExtraSessionState),
		Scope:            extraString(tok, oauth2.ExtraScope),
		NotBeforePolicy:  extraInt(tok, oauth2.ExtraNotBeforePolicy),
	}
}

func extraString(tok *xoauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}

func extraInt(tok *xoauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// headerTransport adds caller supplied headers to every request. Content-Type is never overridden.
type headerTransport struct {
	base   http.RoundTripper
	header http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range t.header {
		if http.CanonicalHeaderKey(key) == "Content-Type" {
			continue
		}
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return t.base.RoundTrip(req)
}

// bodyCapture copies successful response bodies as they are read.
type bodyCapture struct {
	base http.RoundTripper
	lock sync.Mutex
	body bytes.Buffer
}

type teeBody struct {
	io.Reader
	io.Closer
}

func (c *bodyCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil || resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, err
	}

	c.lock.Lock()
	c.body.Reset()
	c.lock.Unlock()
	resp.Body = teeBody{Reader: io.TeeReader(resp.Body, captureWriter{c}), Closer: resp.Body}
	return resp, nil
}

func (c *bodyCapture) Bytes() []byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	return bytes.Clone(c.body.Bytes())
}

type captureWriter struct {
	c *bodyCapture
}

func (w captureWriter) Write(p []byte) (int, error) {
	w.c.lock.Lock()
	defer w.c.lock.Unlock()
	return w.c.body.Write(p)
}

func withCapture(client *http.Client) (*http.Client, *bodyCapture) {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	capture := &bodyCapture{base: base}
	clone := *client
	clone.Transport = capture
	return &clone, capture
}

func withHeaders(client *http.Client, header http.Header) *http.Client {
	if len(header) == 0 {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *client
	clone.Transport = &headerTransport{base: base, header: header}
	return &clone
}
