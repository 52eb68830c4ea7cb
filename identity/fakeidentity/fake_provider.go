// Package fakeidentity is an in-memory identity provider. It signs HS256 JWTs
// so tokens look like the real thing to anything that parses them.
package fakeidentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/broadcast"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	providerID      = "password"
	defaultTokenTTL = time.Hour
)

var _ identity.Provider = (*FakeProvider)(nil)

type account struct {
	identity     identity.Identity
	passwordHash string
}

type mintedToken struct {
	raw string
	exp time.Time
}

type FakeProvider struct {
	accounts map[string]*account // email to account
	tokens   map[string]mintedToken
	current  *identity.Identity
	events   *broadcast.Hub[identity.Event]
	lock     sync.RWMutex

	secret   []byte
	issuer   string
	tokenTTL time.Duration
	nowTime  func() time.Time

	mintErr   error
	mintDelay map[string]time.Duration
	mintCount int
}

type Option func(*FakeProvider)

// WithSecret sets the HMAC key used to sign tokens.
func WithSecret(secret []byte) Option {
	return func(p *FakeProvider) {
		p.secret = secret
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *FakeProvider) {
		p.tokenTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *FakeProvider) {
		p.nowTime = nowFunc
	}
}

func New(options ...Option) *FakeProvider {
	p := &FakeProvider{
		accounts:  make(map[string]*account),
		tokens:    make(map[string]mintedToken),
		events:    broadcast.NewQueue[identity.Event](),
		secret:    []byte("fake-identity-secret"),
		issuer:    "https://fake-identity.local",
		tokenTTL:  defaultTokenTTL,
		nowTime:   time.Now,
		mintDelay: make(map[string]time.Duration),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// AddAccount registers an account without signing it in.
func (p *FakeProvider) AddAccount(email, password string) (*identity.Identity, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.addAccount(email, password)
}

func (p *FakeProvider) addAccount(email, password string) (*identity.Identity, error) {
	email = normaliseEmail(email)
	if email == "" || password == "" {
		return nil, identity.ErrInvalidCredentials
	}
	if _, ok := p.accounts[email]; ok {
		return nil, identity.ErrIdentityExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	acc := &account{
		identity: identity.Identity{
			UID:        uuid.New().String(),
			Email:      email,
			ProviderID: providerID,
		},
		passwordHash: string(hash),
	}
	p.accounts[email] = acc
	id := acc.identity
	return &id, nil
}

func (p *FakeProvider) SignInWithPassword(_ context.Context, email, password string) (*identity.Identity, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	acc, ok := p.accounts[normaliseEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(password)) != nil {
		return nil, identity.WrapError("sign-in", identity.ErrInvalidCredentials)
	}
	return p.signIn(acc.identity), nil
}

func (p *FakeProvider) SignUpWithPassword(_ context.Context, email, password string) (*identity.Identity, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	id, err := p.addAccount(email, password)
	if err != nil {
		return nil, identity.WrapError("sign-up", err)
	}
	return p.signIn(*id), nil
}

func (p *FakeProvider) signIn(id identity.Identity) *identity.Identity {
	p.current = &id
	p.events.Publish(identity.Event{Identity: utils.Clone(&id)})
	return utils.Clone(&id)
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current != nil {
		delete(p.tokens, p.current.UID)
	}
	p.current = nil
	p.events.Publish(identity.Event{})
	return nil
}

func (p *FakeProvider) Subscribe() (<-chan identity.Event, func()) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.events.Subscribe(&identity.Event{Identity: utils.Clone(p.current)})
}

// Close ends every subscription; subscribers see their channel close.
func (p *FakeProvider) Close() {
	p.events.Close()
}

// Emit publishes an arbitrary transition, as a provider does on token refresh
// or when a session is revoked elsewhere.
func (p *FakeProvider) Emit(id *identity.Identity) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = utils.Clone(id)
	p.events.Publish(identity.Event{Identity: utils.Clone(id)})
}

func (p *FakeProvider) MintToken(ctx context.Context, id identity.Identity, forceRefresh bool) (string, error) {
	p.lock.Lock()
	delay := p.mintDelay[id.UID]
	p.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", identity.WrapError("mint-token", ctx.Err())
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if p.mintErr != nil {
		return "", identity.WrapError("mint-token", p.mintErr)
	}
	if !p.known(id.UID) {
		return "", identity.WrapError("mint-token", identity.ErrNotSignedIn)
	}

	now := p.nowTime()
	if cached, ok := p.tokens[id.UID]; ok && !forceRefresh && now.Before(cached.exp) {
		return cached.raw, nil
	}

	exp := now.Add(p.tokenTTL)
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"iss":   p.issuer,
		"sub":   id.UID,
		"email": id.Email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.New().String(),
	}).SignedString(p.secret)
	if err != nil {
		return "", identity.WrapError("mint-token", err)
	}

	p.tokens[id.UID] = mintedToken{raw: raw, exp: exp}
	p.mintCount++
	return raw, nil
}

func (p *FakeProvider) known(uid string) bool {
	for _, acc := range p.accounts {
		if acc.identity.UID == uid {
			return true
		}
	}
	return p.current != nil && p.current.UID == uid
}

// SetMintError makes every subsequent MintToken fail with err (nil clears it).
func (p *FakeProvider) SetMintError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.mintErr = err
}

// SetMintDelay slows token minting for uid, letting tests order overlapping reconciliations.
func (p *FakeProvider) SetMintDelay(uid string, d time.Duration) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.mintDelay[uid] = d
}

func (p *FakeProvider) MintCount() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.mintCount
}

// Verify checks a token minted by this provider and returns its subject.
func (p *FakeProvider) Verify(raw string) (string, error) {
	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwtlib.WithIssuer(p.issuer), jwtlib.WithTimeFunc(p.nowTime))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
