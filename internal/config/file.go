package config

import (
	"os"
	"sync"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the optional YAML file holding settings keyed by their
// environment variable names, e.g. `API_BASE_URL: https://api.example.com/v1`.
const FileEnvVar = "AUTH_CLIENT_CONFIG_FILE"

var (
	fileOnce   sync.Once
	fileValues map[string]string
	fileErr    error
)

func fileValue(key string) (string, bool) {
	fileOnce.Do(func() {
		fileValues, fileErr = LoadFile(os.Getenv(FileEnvVar))
	})
	if fileErr != nil {
		return "", false
	}
	v, ok := fileValues[key]
	return v, ok && v != ""
}

// FileError reports a failure to load the config file, if any.
func FileError() error {
	fileValue("")
	return fileErr
}

// LoadFile reads a flat YAML mapping. An empty path yields no values.
func LoadFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[LoadFile] reading %s", path)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, apperrors.Wrapf(err, "[LoadFile] parsing %s", path)
	}
	return values, nil
}
