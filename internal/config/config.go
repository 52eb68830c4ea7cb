package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	IdentityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

// APIConfig describes how the backend is reached.
type APIConfig interface {
	GetAPIBaseURL() string
	GetAPIVersion() string
	GetRequestTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Identity
}

func New() Config {
	return mainConfig{}
}
