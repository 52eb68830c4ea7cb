// Package identity defines the contract the session manager consumes from an
// external identity provider, plus the shared types that flow across it.
package identity

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Identity is a signed-in principal as known by the identity provider. The
// provider keeps whatever credential material it needs to mint tokens for it,
// keyed by UID.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	ProviderID    string `json:"providerId,omitempty"`
}

func (i *Identity) String() string {
	if i == nil {
		return "<absent>"
	}
	return i.UID
}

// Event reports a credential transition. A nil Identity means signed out.
type Event struct {
	Identity *Identity
}

// Minter issues short-lived bearer tokens for an identity.
type Minter interface {
	MintToken(ctx context.Context, id Identity, forceRefresh bool) (string, error)
}

// Provider is the identity provider adapter contract.
type Provider interface {
	Minter

	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUpWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error

	// Subscribe delivers the current state immediately and then one Event per
	// transition, in order and without dropping any. The returned func
	// unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())
}

// ErrProvider matches every ProviderError via errors.Is.
var ErrProvider = apperrors.ErrIdentityProvider

var (
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	ErrIdentityExists     = apperrors.ErrIdentityExists
	ErrNotSignedIn        = apperrors.ErrNotSignedIn
)

// ProviderError wraps a failure reported by the identity provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// WrapError tags err as a ProviderError for op, leaving existing ProviderErrors untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if apperrors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}
