package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/identity"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenMinter mints a bearer token for an explicit identity.
type TokenMinter interface {
	TokenFor(ctx context.Context, id identity.Identity, forceRefresh bool) (string, error)
}

// ProfileBackend is the slice of the backend auth API reconciliation needs.
type ProfileBackend interface {
	FirebaseLogin(ctx context.Context, idToken string) (*auth.Response, error)
	ProfileWithToken(ctx context.Context, token string) (*users.User, error)
}

var _ ProfileBackend = (*auth.Service)(nil)

// Reconciler brings the backend profile in line with an identity.
type Reconciler struct {
	tokens  TokenMinter
	backend ProfileBackend
	logger  zerolog.Logger
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func NewReconciler(tokens TokenMinter, backend ProfileBackend, options ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		tokens:  tokens,
		backend: backend,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "reconciler").Logger()
	return r
}

// Reconcile fetches the profile for id using a freshly minted token. Without
// a cached profile the bootstrap exchange runs first, letting the backend
// create the profile on first sign-in; if that fails the profile endpoint is
// tried with the same token. Every failure is logged and reported as
// ErrProfileReconciliation.
func (r *Reconciler) Reconcile(ctx context.Context, id identity.Identity, haveProfile bool) (*users.User, error) {
	logger := r.logger.With().Str("uid", id.UID).Logger()

	token, err := r.tokens.TokenFor(ctx, id, true)
	if err != nil {
		logger.Warn().Err(err).Msg("Unable to mint token for profile reconciliation")
		return nil, apperrors.Wrapf(err, "[Reconciler.Reconcile] %w", ErrProfileReconciliation)
	}
	if token == "" {
		return nil, fmt.Errorf("[Reconciler.Reconcile] %w: no token for %s", ErrProfileReconciliation, id.UID)
	}

	if !haveProfile {
		resp, err := r.backend.FirebaseLogin(ctx, token)
		if err == nil {
			logger.Debug().Str("profile_id", resp.User.ID).Msg("Profile bootstrapped")
			return &resp.User, nil
		}
		logger.Warn().Err(err).Msg("Profile bootstrap failed, fetching profile directly")
	}

	profile, err := r.backend.ProfileWithToken(ctx, token)
	if err != nil {
		logger.Error().Err(err).Msg("Error fetching user profile")
		return nil, apperrors.Wrapf(err, "[Reconciler.Reconcile] %w", ErrProfileReconciliation)
	}
	return profile, nil
}
