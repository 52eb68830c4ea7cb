package users

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/api"
)

const usersEndpoint = "/users"

// CreateInput is the payload for creating a user. Admin only.
type CreateInput struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Role      RoleType `json:"role,omitempty"`
}

// UpdateInput is a partial update; nil fields are left untouched.
type UpdateInput struct {
	Email     *string   `json:"email,omitempty"`
	Password  *string   `json:"password,omitempty"`
	FirstName *string   `json:"firstName,omitempty"`
	LastName  *string   `json:"lastName,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Role      *RoleType `json:"role,omitempty"`
	Active    *bool     `json:"active,omitempty"`
}

// Service is the admin user API.
type Service struct {
	client *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// List returns every user, optionally filtered by role.
func (s *Service) List(ctx context.Context, role RoleType) ([]User, error) {
	return api.Request[[]User](ctx, s.client, http.MethodGet, usersEndpoint, nil, api.WithQuery("role", string(role)))
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return api.Request[*User](ctx, s.client, http.MethodGet, usersEndpoint+"/"+url.PathEscape(id), nil)
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*User, error) {
	return api.Request[*User](ctx, s.client, http.MethodPost, usersEndpoint, input)
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*User, error) {
	return api.Request[*User](ctx, s.client, http.MethodPatch, usersEndpoint+"/"+url.PathEscape(id), input)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.client.Do(ctx, http.MethodDelete, usersEndpoint+"/"+url.PathEscape(id), nil, nil)
}
