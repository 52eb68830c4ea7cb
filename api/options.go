package api

import (
	"net/http"
	"net/url"
)

type requestOptions struct {
	headers http.Header
	query   url.Values
}

// RequestOption adjusts a single call.
type RequestOption func(*requestOptions)

// WithHeader adds a caller header. Authorization and X-API-Version are
// always overwritten by the client.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers.Add(key, value)
	}
}

func WithHeaders(headers http.Header) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range headers {
			for _, v := range vs {
				o.headers.Add(k, v)
			}
		}
	}
}

// WithQuery adds a query parameter; empty values are skipped.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if value != "" {
			o.query.Add(key, value)
		}
	}
}

func newRequestOptions(opts []RequestOption) requestOptions {
	o := requestOptions{headers: make(http.Header), query: make(url.Values)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
