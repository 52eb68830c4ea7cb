// Package auth is the backend's authentication API: the identity bootstrap
// exchange, the profile endpoint and the direct credential flows.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/users"
)

const (
	firebaseLoginEndpoint = "/auth/firebase-login"
	profileEndpoint       = "/auth/profile"
	loginEndpoint         = "/auth/login"
	registerEndpoint      = "/auth/register"
	refreshTokenEndpoint  = "/auth/refresh-token"
)

// Response is returned by every exchange that issues backend tokens.
type Response struct {
	User         users.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	FirstName string         `json:"firstName,omitempty"`
	LastName  string         `json:"lastName,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Role      users.RoleType `json:"role,omitempty"`
}

type Service struct {
	client *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// FirebaseLogin exchanges an identity provider token for the backend profile.
// The backend creates the profile on first contact and returns the existing
// one otherwise.
func (s *Service) FirebaseLogin(ctx context.Context, idToken string) (*Response, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, api.ErrUnauthenticated
	}
	var resp Response
	body := struct {
		IDToken string `json:"idToken"`
	}{IDToken: idToken}
	if err := s.client.DoAnonymous(ctx, http.MethodPost, firebaseLoginEndpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches the profile of whoever the client's token source says is
// signed in.
func (s *Service) Profile(ctx context.Context) (*users.User, error) {
	return api.Request[*users.User](ctx, s.client, http.MethodGet, profileEndpoint, nil)
}

// ProfileWithToken fetches the profile for an explicit bearer token.
func (s *Service) ProfileWithToken(ctx context.Context, token string) (*users.User, error) {
	var u users.User
	if err := s.client.DoWithToken(ctx, token, http.MethodGet, profileEndpoint, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*Response, error) {
	var resp Response
	if err := s.client.DoAnonymous(ctx, http.MethodPost, loginEndpoint, input, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*Response, error) {
	if err := users.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}
	var resp Response
	if err := s.client.DoAnonymous(ctx, http.MethodPost, registerEndpoint, input, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken rotates a backend refresh token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*Response, error) {
	var resp Response
	body := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}
	if err := s.client.DoAnonymous(ctx, http.MethodPost, refreshTokenEndpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
