// Package api is the authenticated request pipeline. Every call re-derives a
// bearer token, stamps the protocol headers and funnels the response through
// the shared interceptors; failures come back as a single error value.
package api

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

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIVersion    = "X-API-Version"
	HeaderRequestID     = "X-Request-ID"
	HeaderContentType   = "Content-Type"

	contentTypeJSON = "application/json"
	maxErrorBody    = 4096
)

// DefaultAPIVersion is sent when no version is configured.
const DefaultAPIVersion = "v1"

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// TokenSource supplies bearer tokens. An empty token with a nil error means
// nobody is signed in.
type TokenSource interface {
	GetToken(ctx context.Context, forceRefresh bool) (string, error)
}

type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	tokens       TokenSource
	apiVersion   string
	interceptors []ResponseInterceptor
	metrics      *Metrics
	logger       zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.apiVersion = version
	}
}

func WithTokens(tokens TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithInterceptor appends a response interceptor.
func WithInterceptor(interceptor ResponseInterceptor) ClientOption {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptor)
	}
}

func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client rooted at baseURL, which already carries the
// versioned prefix (e.g. http://localhost:8080/schoolbus/api/v1). The 401
// interceptor is always installed first.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[api.NewClient] invalid base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("[api.NewClient] base url must be absolute: %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		apiVersion: DefaultAPIVersion,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(0)
	}
	c.interceptors = append([]ResponseInterceptor{UnauthorizedInterceptor(c.logger, c.metrics)}, c.interceptors...)
	return c, nil
}

// WithTokenSource returns a copy of c sharing its transport and interceptors
// but drawing bearer tokens from tokens.
func (c *Client) WithTokenSource(tokens TokenSource) *Client {
	clone := *c
	clone.tokens = tokens
	clone.interceptors = append([]ResponseInterceptor(nil), c.interceptors...)
	return &clone
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do performs an authenticated call. A forced-refresh token is obtained
// first; without one the call fails with ErrUnauthenticated and nothing is
// sent. body is JSON encoded when not nil; out, when not nil, receives the
// decoded 2xx response.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	if err := checkMethod(method); err != nil {
		return err
	}
	if c.tokens == nil {
		return ErrUnauthenticated
	}
	token, err := c.tokens.GetToken(ctx, true)
	if err != nil {
		return apperrors.Wrapf(err, "[api.Do] %w", ErrUnauthenticated)
	}
	return c.DoWithToken(ctx, token, method, path, body, out, opts...)
}

// DoWithToken performs an authenticated call with an already minted token.
func (c *Client) DoWithToken(ctx context.Context, token, method, path string, body, out any, opts ...RequestOption) error {
	if err := checkMethod(method); err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthenticated
	}
	return c.send(ctx, "Bearer "+token, method, path, body, out, opts)
}

// DoAnonymous performs a call without credentials, e.g. a token exchange.
func (c *Client) DoAnonymous(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	if err := checkMethod(method); err != nil {
		return err
	}
	return c.send(ctx, "", method, path, body, out, opts)
}

// Request is the generic form of Client.Do.
func Request[T any](ctx context.Context, c *Client, method, path string, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.Do(ctx, method, path, body, &out, opts...)
	return out, err
}

func checkMethod(method string) error {
	if _, ok := allowedMethods[method]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return nil
}

// NormaliseMethod maps get/post/put/patch/delete in any case onto the HTTP constant.
func NormaliseMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if err := checkMethod(m); err != nil {
		return "", err
	}
	return m, nil
}

func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("path %q must be relative to the api base url", path)
	}

	u := c.baseURL.JoinPath(ref.EscapedPath())
	if !c.withinBase(u.Path) {
		return nil, fmt.Errorf("path %q escapes the api base url", path)
	}
	q := ref.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// withinBase reports whether p stays under the versioned prefix. Encoded dot
// segments are caught here too, since JoinPath only cleans literal ones.
func (c *Client) withinBase(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	prefix := strings.TrimRight(c.baseURL.Path, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func (c *Client) send(ctx context.Context, authorization, method, path string, body, out any, opts []RequestOption) error {
	ro := newRequestOptions(opts)

	u, err := c.resolve(path, ro.query)
	if err != nil {
		return apperrors.Wrapf(err, "[api.send]")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrapf(err, "[api.send] encoding body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return apperrors.Wrapf(err, "[api.send]")
	}

	req.Header.Set(HeaderRequestID, uuid.New().String())
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set(HeaderContentType, contentTypeJSON)
	}
	for k, vs := range ro.headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	// mandatory headers last so callers cannot override them
	req.Header.Del(HeaderAuthorization)
	if authorization != "" {
		req.Header.Set(HeaderAuthorization, authorization)
	}
	req.Header.Set(HeaderAPIVersion, c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.transportError()
		c.logger.Debug().Err(err).Str("method", method).Str("path", u.Path).Msg("Backend call failed")
		return &UpstreamError{Method: method, URL: redact(u), Err: err}
	}
	defer resp.Body.Close()

	c.intercept(req, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newUpstreamError(method, u, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &UpstreamError{Method: method, URL: redact(u), StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func newUpstreamError(method string, u *url.URL, resp *http.Response) *UpstreamError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ue := &UpstreamError{
		Method:     method,
		URL:        redact(u),
		StatusCode: resp.StatusCode,
		Body:       raw,
		Err:        errors.New(http.StatusText(resp.StatusCode)),
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		var msg string
		var msgs []string
		switch {
		case json.Unmarshal(envelope.Message, &msg) == nil:
			ue.Message = msg
		case json.Unmarshal(envelope.Message, &msgs) == nil:
			ue.Message = strings.Join(msgs, "; ")
		default:
			ue.Message = envelope.Error
		}
	}
	return ue
}

func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
