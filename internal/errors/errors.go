package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the session manager and the request pipeline.
// Public packages re-export the values their callers need to match on.
var (
	// Identity provider errors
	ErrIdentityProvider   = errors.New("identity provider error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrNotSignedIn        = errors.New("identity not signed in")

	// Session errors
	ErrProfileReconciliation = errors.New("profile reconciliation failed")

	// Request pipeline errors
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUpstreamRequest    = errors.New("upstream request failed")
	ErrUnsupportedMethod  = errors.New("unsupported request method")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
