// Package token derives short-lived bearer tokens for the signed-in identity.
// Tokens are never cached here; every call goes back to the identity provider.
package token

import (
	"context"

	"github.com/jrsteele09/go-auth-client/identity"
)

// IdentitySource reports the identity tokens should currently be minted for.
type IdentitySource interface {
	CurrentIdentity() *identity.Identity
}

// SourceFunc adapts a function to IdentitySource.
type SourceFunc func() *identity.Identity

func (f SourceFunc) CurrentIdentity() *identity.Identity {
	return f()
}

type Provider struct {
	minter identity.Minter
	source IdentitySource
}

func NewProvider(minter identity.Minter) *Provider {
	return &Provider{minter: minter}
}

// Bind returns a copy of p that mints for whatever source reports as current.
func (p *Provider) Bind(source IdentitySource) *Provider {
	return &Provider{minter: p.minter, source: source}
}

// GetToken returns a bearer token for the current identity. An empty token
// with a nil error means nobody is signed in; that is not an error condition.
// forceRefresh must be used before outbound requests; the cached mode is for
// cheap checks that tolerate staleness.
func (p *Provider) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	if p.source == nil {
		return "", nil
	}
	id := p.source.CurrentIdentity()
	if id == nil {
		return "", nil
	}
	return p.TokenFor(ctx, *id, forceRefresh)
}

// TokenFor mints a token for an explicit identity regardless of which one is current.
func (p *Provider) TokenFor(ctx context.Context, id identity.Identity, forceRefresh bool) (string, error) {
	tok, err := p.minter.MintToken(ctx, id, forceRefresh)
	if err != nil {
		return "", identity.WrapError("mint-token", err)
	}
	return tok, nil
}
