package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

type stateFunc func() session.State

func (f stateFunc) State() session.State {
	return f()
}

func TestAdmit(t *testing.T) {
	u1 := &identity.Identity{UID: "u1"}

	tests := []struct {
		name  string
		state session.State
		want  session.Decision
	}{
		{"start-up", session.State{Loading: true}, session.Pending},
		{"reconciling", session.State{Identity: u1, Loading: true}, session.Pending},
		{"signed out", session.State{}, session.Denied},
		{"signed in without profile", session.State{Identity: u1}, session.Allowed},
		{"signed in", session.State{Identity: u1, Profile: &users.User{ID: "p1"}}, session.Allowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, session.Admit(tt.state))
		})
	}
}

func TestDecisionString(t *testing.T) {
	require.Equal(t, "pending", session.Pending.String())
	require.Equal(t, "denied", session.Denied.String())
	require.Equal(t, "allowed", session.Allowed.String())
	require.Equal(t, "unknown", session.Decision(42).String())
}

func TestRequireSession(t *testing.T) {
	var current session.State
	reached := false
	var injected session.State

	handler := session.RequireSession(stateFunc(func() session.State { return current }), "/login")(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		injected, _ = session.StateFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	serve := func() *httptest.ResponseRecorder {
		reached = false
		rr := httptest.NewRecorder()
		handler(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		return rr
	}

	current = session.State{Loading: true}
	rr := serve()
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
	require.False(t, reached)

	current = session.State{}
	rr = serve()
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/login", rr.Header().Get("Location"))
	require.False(t, reached)

	current = session.State{Identity: &identity.Identity{UID: "u1"}}
	rr = serve()
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, reached)
	require.Equal(t, "u1", injected.Identity.UID)
}

func TestStateFromContextMissing(t *testing.T) {
	_, ok := session.StateFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}
