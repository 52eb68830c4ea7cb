package fakeidentity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/identity/fakeidentity"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "parent@example.com"
	testPassword = "Password123"
)

func TestSignInAndOut(t *testing.T) {
	ctx := context.Background()
	p := fakeidentity.New()

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	require.Nil(t, (<-events).Identity, "subscribe delivers the signed-out state first")

	_, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, identity.ErrProvider)
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	id, err := p.SignUpWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, testEmail, id.Email)
	require.Equal(t, id.UID, (<-events).Identity.UID)

	_, err = p.SignUpWithPassword(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, identity.ErrIdentityExists)

	_, err = p.SignInWithPassword(ctx, " Parent@Example.com ", "wrong")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	again, err := p.SignInWithPassword(ctx, " Parent@Example.com ", testPassword)
	require.NoError(t, err)
	require.Equal(t, id.UID, again.UID)
	require.Equal(t, id.UID, (<-events).Identity.UID)

	require.NoError(t, p.SignOut(ctx))
	require.Nil(t, (<-events).Identity)
}

func TestMintToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := fakeidentity.New(fakeidentity.WithNowTime(func() time.Time { return now }), fakeidentity.WithTokenTTL(time.Minute))

	id, err := p.AddAccount(testEmail, testPassword)
	require.NoError(t, err)

	first, err := p.MintToken(ctx, *id, false)
	require.NoError(t, err)

	cached, err := p.MintToken(ctx, *id, false)
	require.NoError(t, err)
	require.Equal(t, first, cached)
	require.Equal(t, 1, p.MintCount())

	forced, err := p.MintToken(ctx, *id, true)
	require.NoError(t, err)
	require.NotEqual(t, first, forced)
	require.Equal(t, 2, p.MintCount())

	sub, err := p.Verify(forced)
	require.NoError(t, err)
	require.Equal(t, id.UID, sub)

	t.Run("expired cache is reminted", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		fresh, err := p.MintToken(ctx, *id, false)
		require.NoError(t, err)
		require.NotEqual(t, forced, fresh)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := p.MintToken(ctx, identity.Identity{UID: "ghost"}, true)
		require.ErrorIs(t, err, identity.ErrNotSignedIn)
	})

	t.Run("injected failure", func(t *testing.T) {
		boom := errors.New("boom")
		p.SetMintError(boom)
		defer p.SetMintError(nil)
		_, err := p.MintToken(ctx, *id, true)
		require.ErrorIs(t, err, boom)
		require.ErrorIs(t, err, identity.ErrProvider)
	})

	t.Run("delay honours context", func(t *testing.T) {
		p.SetMintDelay(id.UID, time.Hour)
		defer p.SetMintDelay(id.UID, 0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.MintToken(cctx, *id, true)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	a := fakeidentity.New(fakeidentity.WithSecret([]byte("a")))
	b := fakeidentity.New(fakeidentity.WithSecret([]byte("b")))

	id, err := a.AddAccount(testEmail, testPassword)
	require.NoError(t, err)
	raw, err := a.MintToken(ctx, *id, true)
	require.NoError(t, err)

	_, err = b.Verify(raw)
	require.Error(t, err)
}

func TestEventsAreNeverDropped(t *testing.T) {
	p := fakeidentity.New()
	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	require.Nil(t, (<-events).Identity)

	const transitions = 50
	for i := 0; i < transitions; i++ {
		if i%2 == 0 {
			p.Emit(&identity.Identity{UID: "u1"})
		} else {
			p.Emit(nil)
		}
	}

	for i := 0; i < transitions; i++ {
		select {
		case ev := <-events:
			require.Equal(t, i%2 == 0, ev.Identity != nil, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	p := fakeidentity.New()
	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	<-events

	p.Close()
	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
