// Package session owns the single source of truth for who is signed in. The
// Store consumes identity provider transitions, reconciles the backend profile
// for each one and exposes the result to readers and request gates.
package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/broadcast"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrProfileReconciliation is swallowed by credential transitions and
	// returned only from an explicit RefreshProfile.
	ErrProfileReconciliation = apperrors.ErrProfileReconciliation
	ErrNotSignedIn           = apperrors.ErrNotSignedIn
)

// State is a snapshot of the session. Profile is never set while Identity is nil.
type State struct {
	Identity *identity.Identity
	Profile  *users.User
	Loading  bool
}

func (s State) clone() State {
	return State{
		Identity: utils.Clone(s.Identity),
		Profile:  s.Profile.Clone(),
		Loading:  s.Loading,
	}
}

// ProfileReconciler resolves the backend profile for an identity.
type ProfileReconciler interface {
	Reconcile(ctx context.Context, id identity.Identity, haveProfile bool) (*users.User, error)
}

// Store is the only writer of session state. Every credential transition
// advances a generation counter; a reconciliation commits only if the
// generation it started under is still current, so the last credential wins
// however the reconciliations interleave.
type Store struct {
	provider   identity.Provider
	reconciler ProfileReconciler
	logger     zerolog.Logger
	watchers   *broadcast.Hub[State]

	lock       sync.RWMutex
	state      State
	generation uint64

	inflight sync.WaitGroup
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns a store in its start-up state: nobody signed in and
// loading until the provider reports its first transition.
func NewStore(provider identity.Provider, reconciler ProfileReconciler, options ...StoreOption) *Store {
	s := &Store{
		provider:   provider,
		reconciler: reconciler,
		logger:     log.Logger,
		watchers:   broadcast.New[State](0),
		state:      State{Loading: true},
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Logger()
	return s
}

func (s *Store) CurrentIdentity() *identity.Identity {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return utils.Clone(s.state.Identity)
}

func (s *Store) Profile() *users.User {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Profile.Clone()
}

func (s *Store) Loading() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Loading
}

func (s *Store) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.clone()
}

// transition is a reconciliation started by a credential change.
type transition struct {
	generation  uint64
	identity    identity.Identity
	haveProfile bool
}

// OnCredentialChange applies a provider transition and, for a signed-in
// identity, reconciles its profile before returning. Reconciliation failures
// are logged and swallowed; loading always settles.
func (s *Store) OnCredentialChange(ctx context.Context, id *identity.Identity) {
	if t := s.begin(id); t != nil {
		s.reconcile(ctx, *t)
	}
}

// begin records the transition in event order and reports the reconciliation
// it requires, if any.
func (s *Store) begin(id *identity.Identity) *transition {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.generation++
	if id == nil {
		s.logger.Debug().Uint64("generation", s.generation).Msg("Identity cleared")
		s.state = State{}
		s.publish()
		return nil
	}

	if s.state.Identity == nil || s.state.Identity.UID != id.UID {
		s.state.Profile = nil
	}
	s.state.Identity = utils.Clone(id)
	s.state.Loading = true
	s.publish()

	s.logger.Debug().Str("uid", id.UID).Uint64("generation", s.generation).Msg("Identity changed")
	return &transition{
		generation:  s.generation,
		identity:    *id,
		haveProfile: s.state.Profile != nil,
	}
}

func (s *Store) reconcile(ctx context.Context, t transition) {
	profile, err := s.reconciler.Reconcile(ctx, t.identity, t.haveProfile)
	if err != nil {
		s.logger.Warn().Err(err).Str("uid", t.identity.UID).Msg("Continuing without a backend profile")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.generation != t.generation {
		s.logger.Debug().Str("uid", t.identity.UID).Uint64("generation", t.generation).Msg("Discarding stale reconciliation")
		return
	}
	if err == nil && profile != nil {
		s.state.Profile = profile.Clone()
	}
	s.state.Loading = false
	s.publish()
}

// Run feeds provider transitions into the store until ctx is done or the
// subscription closes. Transitions are recorded in arrival order; their
// reconciliations run concurrently and are fenced by generation. Run waits
// for in-flight reconciliations before returning.
func (s *Store) Run(ctx context.Context) error {
	events, unsubscribe := s.provider.Subscribe()
	defer unsubscribe()
	defer s.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t := s.begin(ev.Identity)
			if t == nil {
				continue
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.reconcile(ctx, *t)
			}()
		}
	}
}

// Login signs in with the provider. The session follows once the provider
// reports the transition to Run.
func (s *Store) Login(ctx context.Context, email, password string) (*identity.Identity, error) {
	id, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, identity.WrapError("sign-in", err)
	}
	return id, nil
}

// Register creates an account with the provider and signs it in.
func (s *Store) Register(ctx context.Context, email, password string) (*identity.Identity, error) {
	id, err := s.provider.SignUpWithPassword(ctx, email, password)
	if err != nil {
		return nil, identity.WrapError("sign-up", err)
	}
	return id, nil
}

// SignOut drops the profile immediately, then asks the provider to sign out.
// The identity is cleared by the provider's signed-out transition.
func (s *Store) SignOut(ctx context.Context) error {
	s.lock.Lock()
	s.generation++
	s.state.Profile = nil
	s.state.Loading = false
	s.publish()
	s.lock.Unlock()

	if err := s.provider.SignOut(ctx); err != nil {
		return identity.WrapError("sign-out", err)
	}
	return nil
}

// RefreshProfile retries reconciliation for the current identity. The result
// is committed only if the identity has not changed meanwhile; loading is
// never touched.
func (s *Store) RefreshProfile(ctx context.Context) (*users.User, error) {
	s.lock.RLock()
	id := utils.Clone(s.state.Identity)
	generation := s.generation
	haveProfile := s.state.Profile != nil
	s.lock.RUnlock()

	if id == nil {
		return nil, ErrNotSignedIn
	}

	profile, err := s.reconciler.Reconcile(ctx, *id, haveProfile)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.generation == generation && profile != nil {
		s.state.Profile = profile.Clone()
		s.publish()
	}
	return profile.Clone(), nil
}

// Reset returns the store to the settled empty state.
func (s *Store) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.generation++
	s.state = State{}
	s.publish()
}

// Watch streams a snapshot after every commit, starting with the current
// state. Slow readers skip intermediate snapshots but always receive the
// newest one. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan State {
	s.lock.RLock()
	current := s.state.clone()
	ch, unsubscribe := s.watchers.Subscribe(&current)
	s.lock.RUnlock()

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return ch
}

// WaitSettled blocks until loading is false.
func (s *Store) WaitSettled(ctx context.Context) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := s.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return s.State(), ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return s.State(), ctx.Err()
			}
			if !st.Loading {
				return st, nil
			}
		}
	}
}

// publish must be called with the lock held.
func (s *Store) publish() {
	s.watchers.Publish(s.state.clone())
}
