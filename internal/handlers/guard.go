package handlers

import (
	"net/http"

	"github.com/kalamitra/api/internal/platform/auth"
)

// Guard builds the middleware chain for authenticated routes: Firebase verification with an optional role
// requirement, then whatever should run once the caller is known (per-user rate limiting).
type Guard struct {
	authn     *auth.Authenticator
	afterAuth []func(http.Handler) http.Handler
}

// NewGuard returns a guard. A nil authenticator yields a guard that adds no middleware, which handler tests
// rely on when injecting identities directly.
func NewGuard(authn *auth.Authenticator, afterAuth ...func(http.Handler) http.Handler) *Guard {
	return &Guard{authn: authn, afterAuth: afterAuth}
}

// Require returns the middleware for routes needing any of roles (any authenticated caller when empty).
func (g *Guard) Require(roles ...string) []func(http.Handler) http.Handler {
	if g == nil || g.authn == nil {
		return nil
	}
	chain := make([]func(http.Handler) http.Handler, 0, 1+len(g.afterAuth))
	chain = append(chain, g.authn.RequireFirebaseAuth(roles...))
	for _, mw := range g.afterAuth {
		if mw != nil {
			chain = append(chain, mw)
		}
	}
	return chain
}
