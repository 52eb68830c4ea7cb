package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/identity/fakeidentity"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	bootstrapPath = "/api/v1/auth/firebase-login"
	profilePath   = "/api/v1/auth/profile"
	testPassword  = "Password123"
)

// fakeBackend resolves profiles from tokens minted by the fake identity provider.
type fakeBackend struct {
	idp *fakeidentity.FakeProvider

	mu             sync.Mutex
	profiles       map[string]users.User // uid to profile
	calls          map[string]int        // path to count
	uidCalls       map[string]int        // uid to count
	down           bool
	bootstrapFails bool
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	down, bootstrapFails := b.down, b.bootstrapFails
	b.mu.Unlock()

	if down {
		// drop the connection to simulate an unreachable backend
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	var raw string
	switch r.URL.Path {
	case bootstrapPath:
		if bootstrapFails {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"statusCode":500,"message":"Internal server error"}`))
			return
		}
		var body struct {
			IDToken string `json:"idToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw = body.IDToken
	case profilePath:
		raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
		return
	}

	uid, err := b.idp.Verify(raw)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"statusCode":401,"message":"Unauthorized"}`))
		return
	}

	b.mu.Lock()
	b.uidCalls[uid]++
	profile, ok := b.profiles[uid]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"statusCode":404,"message":"User not found"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == bootstrapPath {
		_ = json.NewEncoder(w).Encode(auth.Response{User: profile, AccessToken: "access", RefreshToken: "refresh"})
		return
	}
	_ = json.NewEncoder(w).Encode(profile)
}

func (b *fakeBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *fakeBackend) setBootstrapFails(fails bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bootstrapFails = fails
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *fakeBackend) callsFor(uid string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uidCalls[uid]
}

// gatedProvider lets a test hold a provider call open while it changes the
// session underneath it. Each hold applies to the next matching call only.
type gatedProvider struct {
	*fakeidentity.FakeProvider

	mu       sync.Mutex
	mintUID  string
	mintGate *gate
	outGate  *gate
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// holdMint blocks the next MintToken for uid until release is called.
func (g *gatedProvider) holdMint(uid string) (entered <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mintUID, g.mintGate = uid, newGate()
	gt := g.mintGate
	return gt.entered, func() { close(gt.release) }
}

// holdSignOut blocks the next SignOut until release is called.
func (g *gatedProvider) holdSignOut() (entered <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outGate = newGate()
	gt := g.outGate
	return gt.entered, func() { close(gt.release) }
}

func (g *gatedProvider) MintToken(ctx context.Context, id identity.Identity, forceRefresh bool) (string, error) {
	g.mu.Lock()
	gt := g.mintGate
	if gt == nil || g.mintUID != id.UID {
		gt = nil
	} else {
		g.mintGate = nil
	}
	g.mu.Unlock()

	if err := gt.wait(ctx); err != nil {
		return "", identity.WrapError("mint-token", err)
	}
	return g.FakeProvider.MintToken(ctx, id, forceRefresh)
}

func (g *gatedProvider) SignOut(ctx context.Context) error {
	g.mu.Lock()
	gt := g.outGate
	g.outGate = nil
	g.mu.Unlock()

	if err := gt.wait(ctx); err != nil {
		return err
	}
	return g.FakeProvider.SignOut(ctx)
}

func (gt *gate) wait(ctx context.Context) error {
	if gt == nil {
		return nil
	}
	close(gt.entered)
	select {
	case <-gt.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type testFixture struct {
	idp     *fakeidentity.FakeProvider
	gated   *gatedProvider
	backend *fakeBackend
	store   *session.Store
	authed  *api.Client
}

func newTestFixture(t *testing.T) *testFixture {
	idp := fakeidentity.New()
	gated := &gatedProvider{FakeProvider: idp}
	backend := &fakeBackend{
		idp:      idp,
		profiles: make(map[string]users.User),
		calls:    make(map[string]int),
		uidCalls: make(map[string]int),
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL+"/api/v1", api.WithHTTPClient(srv.Client()), api.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	rec := session.NewReconciler(token.NewProvider(gated), auth.NewService(client), session.WithReconcilerLogger(zerolog.Nop()))
	store := session.NewStore(gated, rec, session.WithLogger(zerolog.Nop()))

	return &testFixture{
		idp:     idp,
		gated:   gated,
		backend: backend,
		store:   store,
		authed:  client.WithTokenSource(token.NewProvider(gated).Bind(store)),
	}
}

// addUser registers an identity with the provider and a matching backend profile.
func (f *testFixture) addUser(t *testing.T, email, profileID string) *identity.Identity {
	id, err := f.idp.AddAccount(email, testPassword)
	require.NoError(t, err)

	f.backend.mu.Lock()
	f.backend.profiles[id.UID] = users.User{
		ID:          profileID,
		Email:       email,
		FirstName:   utils.Ptr("Ada"),
		Role:        users.RoleParent,
		FirebaseUID: &id.UID,
		Active:      true,
	}
	f.backend.mu.Unlock()
	return id
}
