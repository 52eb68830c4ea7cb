package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Run("default when unset", func(t *testing.T) {
		require.Equal(t, "fallback", config.GetEnv("GO_AUTH_CLIENT_TEST_UNSET", "fallback"))
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("GO_AUTH_CLIENT_TEST_SET", "from-env")
		require.Equal(t, "from-env", config.GetEnv("GO_AUTH_CLIENT_TEST_SET", "fallback"))
	})
}

func TestAPIConfig(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/api/v1/")
	t.Setenv("API_REQUEST_TIMEOUT", "5s")

	c := config.New()
	require.Equal(t, "https://api.example.com/api/v1", c.GetAPIBaseURL())
	require.Equal(t, 5*time.Second, c.GetRequestTimeout())

	t.Setenv("API_REQUEST_TIMEOUT", "not-a-duration")
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
}

func TestIdentityScopes(t *testing.T) {
	t.Setenv("IDP_SCOPES", "openid  email")
	require.Equal(t, []string{"openid", "email"}, config.New().GetScopes())
}

func TestLoadFile(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		values, err := config.LoadFile("")
		require.NoError(t, err)
		require.Empty(t, values)
	})

	t.Run("flat mapping", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client.yaml")
		require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL: https://api.example.com/api/v1\nAPI_REQUEST_TIMEOUT: 10s\n"), 0o600))

		values, err := config.LoadFile(path)
		require.NoError(t, err)
		require.Equal(t, "https://api.example.com/api/v1", values["API_BASE_URL"])
		require.Equal(t, "10s", values["API_REQUEST_TIMEOUT"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "[LoadFile]")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0o600))
		_, err := config.LoadFile(path)
		require.Error(t, err)
	})
}
