package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Claims is the subset of bearer token claims the client cares about.
type Claims struct {
	Subject  string
	Issuer   string
	Email    string
	IssuedAt time.Time
	Expiry   time.Time
}

// ParseUnverified reads claims without checking the signature. The backend
// verifies tokens; the client only needs expiry and subject for bookkeeping.
func ParseUnverified(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.ErrInvalidTokenClaims
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidTokenClaims, err)
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidTokenClaims
	}

	c := &Claims{}
	c.Subject, _ = mapClaims.GetSubject()
	c.Issuer, _ = mapClaims.GetIssuer()
	c.Email, _ = mapClaims["email"].(string)
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		c.Expiry = exp.Time
	}
	return c, nil
}
