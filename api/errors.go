package api

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

var (
	// ErrUnauthenticated is returned before any network call when no token is available.
	ErrUnauthenticated = apperrors.ErrUnauthenticated
	// ErrUpstreamRequest matches every *UpstreamError.
	ErrUpstreamRequest   = apperrors.ErrUpstreamRequest
	ErrUnsupportedMethod = apperrors.ErrUnsupportedMethod
)

// UpstreamError is a non-2xx response or a transport failure. StatusCode is
// zero for transport failures, in which case Err holds the cause.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRequest
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
