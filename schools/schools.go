// Package schools is the school directory API.
package schools

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
)

const schoolsEndpoint = "/schools"

type School struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    *string   `json:"address,omitempty"`
	City       *string   `json:"city,omitempty"`
	State      *string   `json:"state,omitempty"`
	PostalCode *string   `json:"postalCode,omitempty"`
	Country    *string   `json:"country,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Email      *string   `json:"email,omitempty"`
	Type       *string   `json:"type,omitempty"`
	GeoLat     *float64  `json:"geoLat,omitempty"`
	GeoLng     *float64  `json:"geoLng,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Location returns the school's coordinates when both are known.
func (s *School) Location() (lat, lng float64, ok bool) {
	if s == nil || s.GeoLat == nil || s.GeoLng == nil {
		return 0, 0, false
	}
	return *s.GeoLat, *s.GeoLng, true
}

type CreateInput struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Email      string   `json:"email,omitempty"`
	Type       string   `json:"type,omitempty"`
	GeoLat     *float64 `json:"geoLat,omitempty"`
	GeoLng     *float64 `json:"geoLng,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

// UpdateInput is a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name       *string  `json:"name,omitempty"`
	Address    *string  `json:"address,omitempty"`
	City       *string  `json:"city,omitempty"`
	State      *string  `json:"state,omitempty"`
	PostalCode *string  `json:"postalCode,omitempty"`
	Country    *string  `json:"country,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Type       *string  `json:"type,omitempty"`
	GeoLat     *float64 `json:"geoLat,omitempty"`
	GeoLng     *float64 `json:"geoLng,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

type Service struct {
	client *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

func (s *Service) List(ctx context.Context) ([]School, error) {
	return api.Request[[]School](ctx, s.client, http.MethodGet, schoolsEndpoint, nil)
}

func (s *Service) Get(ctx context.Context, id string) (*School, error) {
	return api.Request[*School](ctx, s.client, http.MethodGet, schoolPath(id), nil)
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*School, error) {
	return api.Request[*School](ctx, s.client, http.MethodPost, schoolsEndpoint, input)
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*School, error) {
	return api.Request[*School](ctx, s.client, http.MethodPatch, schoolPath(id), input)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.client.Do(ctx, http.MethodDelete, schoolPath(id), nil, nil)
}

func schoolPath(id string) string {
	return schoolsEndpoint + "/" + url.PathEscape(id)
}
