package token

import (
	"context"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"golang.org/x/oauth2"
)

type oauth2Source struct {
	ctx      context.Context
	provider *Provider
}

// OAuth2Source exposes the provider as an oauth2.TokenSource so the current
// identity's token can drive oauth2.NewClient and friends. Every Token call
// forces a refresh; wrap with oauth2.ReuseTokenSource to trade freshness for
// fewer provider round trips.
func (p *Provider) OAuth2Source(ctx context.Context) oauth2.TokenSource {
	return &oauth2Source{ctx: ctx, provider: p}
}

func (s *oauth2Source) Token() (*oauth2.Token, error) {
	raw, err := s.provider.GetToken(s.ctx, true)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if claims, err := ParseUnverified(raw); err == nil {
		tok.Expiry = claims.Expiry
	}
	return tok, nil
}
