package config

import (
	"strings"
	"time"
)

const (
	apiBaseURLVar     = "API_BASE_URL"
	apiVersionVar     = "API_VERSION"
	requestTimeoutVar = "API_REQUEST_TIMEOUT"
)

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the versioned backend prefix every path is resolved against.
func (API) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLVar, "http://localhost:8080/schoolbus/api/v1"), "/")
}

func (API) GetAPIVersion() string {
	return GetEnv(apiVersionVar, "v1")
}

func (API) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(GetEnv(requestTimeoutVar, "30s"))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
