package session

import (
	"context"
	"net/http"
)

// Decision is the outcome of admitting a protected view.
type Decision int

const (
	Pending Decision = iota // still loading, show a placeholder
	Denied                  // redirect to sign-in
	Allowed
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	}
	return "unknown"
}

// Admit decides from state alone. A missing profile does not block admission.
func Admit(st State) Decision {
	switch {
	case st.Loading:
		return Pending
	case st.Identity == nil:
		return Denied
	default:
		return Allowed
	}
}

// StateReader is satisfied by *Store.
type StateReader interface {
	State() State
}

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the admitted session state
const ContextKeySession ContextKey = "session_state"

const pendingRetryAfter = "1"

// RequireSession guards protected routes. While the session is settling it
// answers 503 with Retry-After; signed-out requests are redirected to
// signInPath.
func RequireSession(reader StateReader, signInPath string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			st := reader.State()
			switch Admit(st) {
			case Pending:
				w.Header().Set("Retry-After", pendingRetryAfter)
				http.Error(w, "session is loading", http.StatusServiceUnavailable)
				return
			case Denied:
				http.Redirect(w, r, signInPath, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, st)
			next(w, r.WithContext(ctx))
		}
	}
}

// StateFromContext returns the state injected by RequireSession.
func StateFromContext(ctx context.Context) (State, bool) {
	st, ok := ctx.Value(ContextKeySession).(State)
	return st, ok
}
