// Package authclient assembles the session store, token provider and request
// pipeline into the single object a UI layer talks to.
package authclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/identity"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/schools"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type Client struct {
	store  *session.Store
	tokens *token.Provider
	api    *api.Client
	http   *http.Client

	auth    *auth.Service
	users   *users.Service
	schools *schools.Service
}

type settings struct {
	apiVersion string
	httpClient *http.Client
	logger     zerolog.Logger
	registerer prometheus.Registerer
}

type Option func(*settings)

func WithAPIVersion(version string) Option {
	return func(s *settings) {
		s.apiVersion = version
	}
}

// WithHTTPClient sets the transport for backend calls, including its timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRegisterer registers the request pipeline metrics.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = registerer
	}
}

// New wires a client for the backend at baseURL, authenticating through
// provider. Call Run to start following the provider's transitions.
func New(baseURL string, provider identity.Provider, options ...Option) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("[authclient.New] identity provider is required")
	}
	s := settings{
		apiVersion: api.DefaultAPIVersion,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.httpClient == nil {
		s.httpClient = api.NewHTTPClient(0)
	}

	backend, err := api.NewClient(baseURL,
		api.WithHTTPClient(s.httpClient),
		api.WithAPIVersion(s.apiVersion),
		api.WithMetrics(api.NewMetrics(s.registerer)),
		api.WithLogger(s.logger),
	)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[authclient.New]")
	}

	authService := auth.NewService(backend)
	reconciler := session.NewReconciler(token.NewProvider(provider), authService, session.WithReconcilerLogger(s.logger))
	store := session.NewStore(provider, reconciler, session.WithLogger(s.logger))
	tokens := token.NewProvider(provider).Bind(store)
	authed := backend.WithTokenSource(tokens)

	return &Client{
		store:   store,
		tokens:  tokens,
		api:     authed,
		http:    s.httpClient,
		auth:    auth.NewService(authed),
		users:   users.NewService(authed),
		schools: schools.NewService(authed),
	}, nil
}

// Run follows the identity provider until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	return c.store.Run(ctx)
}

func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) CurrentIdentity() *identity.Identity {
	return c.store.CurrentIdentity()
}

func (c *Client) Profile() *users.User {
	return c.store.Profile()
}

func (c *Client) Loading() bool {
	return c.store.Loading()
}

func (c *Client) State() session.State {
	return c.store.State()
}

func (c *Client) Watch(ctx context.Context) <-chan session.State {
	return c.store.Watch(ctx)
}

func (c *Client) WaitSettled(ctx context.Context) (session.State, error) {
	return c.store.WaitSettled(ctx)
}

// Admit evaluates the session gate against the latest state.
func (c *Client) Admit() session.Decision {
	return session.Admit(c.store.State())
}

// RequireSession is HTTP middleware guarding routes behind the session gate.
func (c *Client) RequireSession(signInPath string) func(http.HandlerFunc) http.HandlerFunc {
	return session.RequireSession(c.store, signInPath)
}

func (c *Client) Login(ctx context.Context, email, password string) (*identity.Identity, error) {
	return c.store.Login(ctx, email, password)
}

func (c *Client) Register(ctx context.Context, email, password string) (*identity.Identity, error) {
	return c.store.Register(ctx, email, password)
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.store.SignOut(ctx)
}

func (c *Client) RefreshProfile(ctx context.Context) (*users.User, error) {
	return c.store.RefreshProfile(ctx)
}

// Token returns a bearer token for the signed-in identity, or "" when nobody is.
func (c *Client) Token(ctx context.Context, forceRefresh bool) (string, error) {
	return c.tokens.GetToken(ctx, forceRefresh)
}

// Do is the generic authenticated call. method is case-insensitive.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...api.RequestOption) error {
	m, err := api.NormaliseMethod(method)
	if err != nil {
		return err
	}
	return c.api.Do(ctx, m, path, body, out, opts...)
}

// Request is the generic form of Client.Do.
func Request[T any](ctx context.Context, c *Client, method, path string, body any, opts ...api.RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, method, path, body, &out, opts...)
	return out, err
}

// HTTPClient returns an http.Client whose requests carry the current
// identity's bearer token and the API version header, for code that needs a
// plain client rather than the request pipeline. Responses still pass
// through the pipeline's metrics and interceptors.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	base := &http.Client{
		Timeout:   c.http.Timeout,
		Transport: c.api.Transport(c.http.Transport),
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, c.tokens.OAuth2Source(ctx))
}

func (c *Client) API() *api.Client {
	return c.api
}

func (c *Client) Auth() *auth.Service {
	return c.auth
}

func (c *Client) Users() *users.Service {
	return c.users
}

func (c *Client) Schools() *schools.Service {
	return c.schools
}
