package api

import (
	"net/http"

	"github.com/rs/zerolog"
)

// ResponseInterceptor observes every backend response, authenticated or not.
// Interceptors must not read or close resp.Body and cannot change the outcome.
type ResponseInterceptor func(req *http.Request, resp *http.Response)

// UnauthorizedInterceptor flags 401 responses for logging and telemetry. It
// never retries: after a forced refresh a 401 means revoked access, and the
// decision belongs to the caller.
func UnauthorizedInterceptor(logger zerolog.Logger, metrics *Metrics) ResponseInterceptor {
	return func(req *http.Request, resp *http.Response) {
		if resp.StatusCode != http.StatusUnauthorized {
			return
		}
		if metrics != nil {
			metrics.UnauthorizedTotal.Inc()
		}
		logger.Warn().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("request_id", req.Header.Get(HeaderRequestID)).
			Bool("authenticated", req.Header.Get(HeaderAuthorization) != "").
			Msg("Backend rejected request as unauthorized")
	}
}
