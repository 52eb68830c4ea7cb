package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns the transport used for backend calls. Timeouts live
// here, not in the request pipeline; zero means no client-side timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Transport wraps base so requests that bypass Do still carry the version
// header and request ID, and their responses still pass through the client's
// metrics and interceptors. A nil base means http.DefaultTransport.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &interceptingTransport{client: c, base: base}
}

type interceptingTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *interceptingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get(HeaderRequestID) == "" {
		clone.Header.Set(HeaderRequestID, uuid.New().String())
	}
	clone.Header.Set(HeaderAPIVersion, t.client.apiVersion)

	resp, err := t.base.RoundTrip(clone)
	if err != nil {
		t.client.metrics.transportError()
		return nil, err
	}
	t.client.intercept(clone, resp)
	return resp, nil
}

// intercept records resp and hands it to every interceptor in order.
func (c *Client) intercept(req *http.Request, resp *http.Response) {
	c.metrics.observe(req.Method, resp.StatusCode)
	for _, interceptor := range c.interceptors {
		interceptor(req, resp)
	}
}
