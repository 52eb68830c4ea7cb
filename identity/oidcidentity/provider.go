// Package oidcidentity adapts an OpenID Connect provider to identity.Provider.
// Sign-in uses the resource owner password grant, token minting uses the
// refresh grant, and every ID token is verified before it is handed out.
package oidcidentity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/broadcast"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// RouteWellKnownJWKS is appended to the issuer when no key set or discovery is used.
	RouteWellKnownJWKS = "/.well-known/jwks.json"

	// expirySkew treats ID tokens this close to expiry as stale.
	expirySkew = 30 * time.Second
)

var errSignUpNotConfigured = errors.New("sign-up endpoint not configured")

var _ identity.Provider = (*Provider)(nil)

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// TokenURL skips discovery when set; KeySet then defaults to the issuer's JWKS.
	TokenURL      string
	SignUpURL     string
	RevocationURL string

	KeySet     oidc.KeySet
	HTTPClient *http.Client
}

// tokenSession is the credential material kept per signed-in UID.
type tokenSession struct {
	identity     identity.Identity
	idToken      string
	idExpiry     time.Time
	refreshToken string
}

type Provider struct {
	cfg        Config
	oauth2     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	logger     zerolog.Logger
	nowTime    func() time.Time

	sessions map[string]*tokenSession
	current  *identity.Identity
	events   *broadcast.Hub[identity.Event]
	lock     sync.RWMutex
}

type Option func(*Provider)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

func New(ctx context.Context, cfg Config, options ...Option) (*Provider, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("[oidcidentity.New] issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcidentity.New] client id is required")
	}

	p := &Provider{
		cfg:        cfg,
		httpClient: cfg.HTTPClient,
		logger:     log.Logger,
		nowTime:    time.Now,
		sessions:   make(map[string]*tokenSession),
		events:     broadcast.NewQueue[identity.Event](),
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	for _, opt := range options {
		opt(p)
	}

	ctx = p.clientContext(ctx)
	verifierConfig := &oidc.Config{ClientID: cfg.ClientID, Now: p.nowTime}
	endpoint := oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams}

	if cfg.TokenURL == "" {
		discovered, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[oidcidentity.New] discovery")
		}
		endpoint = discovered.Endpoint()
		if cfg.KeySet == nil {
			p.verifier = discovered.Verifier(verifierConfig)
		}
	}
	if p.verifier == nil {
		keySet := cfg.KeySet
		if keySet == nil {
			keySet = oidc.NewRemoteKeySet(ctx, strings.TrimRight(cfg.Issuer, "/")+RouteWellKnownJWKS)
		}
		p.verifier = oidc.NewVerifier(cfg.Issuer, keySet, verifierConfig)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	p.oauth2 = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	return p, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return oidc.ClientContext(ctx, p.httpClient)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	tok, err := p.oauth2.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, identity.WrapError("sign-in", classifyGrantError(err))
	}

	session, err := p.sessionFromToken(ctx, tok, "")
	if err != nil {
		return nil, identity.WrapError("sign-in", err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.sessions[session.identity.UID] = session
	p.current = utils.Clone(&session.identity)
	p.events.Publish(identity.Event{Identity: utils.Clone(&session.identity)})
	return utils.Clone(&session.identity), nil
}

func (p *Provider) SignUpWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	if p.cfg.SignUpURL == "" {
		return nil, identity.WrapError("sign-up", errSignUpNotConfigured)
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, identity.WrapError("sign-up", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.SignUpURL, bytes.NewReader(body))
	if err != nil {
		return nil, identity.WrapError("sign-up", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, identity.WrapError("sign-up", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, identity.WrapError("sign-up", identity.ErrIdentityExists)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, identity.WrapError("sign-up", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	return p.SignInWithPassword(ctx, email, password)
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	var refreshToken string
	if p.current != nil {
		if session, ok := p.sessions[p.current.UID]; ok {
			refreshToken = session.refreshToken
		}
		delete(p.sessions, p.current.UID)
	}
	p.current = nil
	p.events.Publish(identity.Event{})
	p.lock.Unlock()

	if refreshToken != "" && p.cfg.RevocationURL != "" {
		p.revoke(ctx, refreshToken, "refresh_token")
	}
	return nil
}

// revoke is best effort; the local session is already gone.
func (p *Provider) revoke(ctx context.Context, token, tokenTypeHint string) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		p.logger.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to build revocation request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.logger.Warn().Int("status", resp.StatusCode).Str("token_type", tokenTypeHint).Msg("Token revocation rejected")
	}
}

func (p *Provider) Subscribe() (<-chan identity.Event, func()) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.events.Subscribe(&identity.Event{Identity: utils.Clone(p.current)})
}

// Close ends every subscription; subscribers see their channel close.
func (p *Provider) Close() {
	p.events.Close()
}

// MintToken returns a verified ID token for id. Without forceRefresh a cached
// token that is not about to expire is reused; otherwise the refresh grant runs.
func (p *Provider) MintToken(ctx context.Context, id identity.Identity, forceRefresh bool) (string, error) {
	p.lock.RLock()
	session, ok := p.sessions[id.UID]
	var snapshot tokenSession
	if ok {
		snapshot = *session
	}
	p.lock.RUnlock()

	if !ok {
		return "", identity.WrapError("mint-token", identity.ErrNotSignedIn)
	}
	if !forceRefresh && snapshot.idToken != "" && p.nowTime().Add(expirySkew).Before(snapshot.idExpiry) {
		return snapshot.idToken, nil
	}
	if snapshot.refreshToken == "" {
		return "", identity.WrapError("mint-token", fmt.Errorf("no refresh token for %s: %w", id.UID, identity.ErrNotSignedIn))
	}

	ctx = p.clientContext(ctx)
	tok, err := p.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: snapshot.refreshToken}).Token()
	if err != nil {
		return "", identity.WrapError("mint-token", classifyGrantError(err))
	}

	refreshed, err := p.sessionFromToken(ctx, tok, snapshot.refreshToken)
	if err != nil {
		return "", identity.WrapError("mint-token", err)
	}
	if refreshed.identity.UID != id.UID {
		return "", identity.WrapError("mint-token", fmt.Errorf("refreshed token subject %q does not match %q", refreshed.identity.UID, id.UID))
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	// signed out while refreshing: hand out the token but do not resurrect the session
	if _, ok := p.sessions[id.UID]; ok {
		p.sessions[id.UID] = refreshed
	}
	return refreshed.idToken, nil
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *Provider) sessionFromToken(ctx context.Context, tok *oauth2.Token, previousRefresh string) (*tokenSession, error) {
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verifying id_token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding id_token claims: %w", err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefresh
	}

	return &tokenSession{
		identity: identity.Identity{
			UID:           idToken.Subject,
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
			DisplayName:   claims.Name,
			ProviderID:    "oidc",
		},
		idToken:      rawIDToken,
		idExpiry:     idToken.Expiry,
		refreshToken: refreshToken,
	}, nil
}

func classifyGrantError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || (re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized)) {
		return fmt.Errorf("%w: %s", identity.ErrInvalidCredentials, re.ErrorDescription)
	}
	return err
}
