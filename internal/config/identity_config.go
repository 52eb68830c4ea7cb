package config

import "strings"

// IdentityConfig holds the settings for the OpenID Connect identity provider adapter.
type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetTokenURL() string
	GetSignUpURL() string
	GetRevocationURL() string
	GetScopes() []string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIssuerURL() string {
	return GetEnv("IDP_ISSUER_URL", "http://localhost:8081")
}

func (Identity) GetClientID() string {
	return GetEnv("IDP_CLIENT_ID", "schoolbus-web")
}

func (Identity) GetClientSecret() string {
	return GetEnv("IDP_CLIENT_SECRET", "")
}

// GetTokenURL overrides the discovered token endpoint when set.
func (Identity) GetTokenURL() string {
	return GetEnv("IDP_TOKEN_URL", "")
}

func (Identity) GetSignUpURL() string {
	return GetEnv("IDP_SIGNUP_URL", "")
}

func (Identity) GetRevocationURL() string {
	return GetEnv("IDP_REVOCATION_URL", "")
}

func (Identity) GetScopes() []string {
	return strings.Fields(GetEnv("IDP_SCOPES", "openid profile email offline_access"))
}
