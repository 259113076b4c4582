package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/requestctx"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenMissing signals that no bearer token was supplied.
	ErrTokenMissing = errors.New("auth: bearer token missing")
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
	// ErrVerifierUnavailable signals that no verifier was configured.
	ErrVerifierUnavailable = errors.New("auth: verifier unavailable")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter retrieves Firebase user information.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// RoleResolver looks up the stored role of an account whose token carries no role claim.
type RoleResolver func(ctx context.Context, uid string) (string, error)

// Authenticator turns bearer tokens into identities for the HTTP layer.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter
	roles    RoleResolver
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithUserGetter loads the account record when the token has no email claim, e.g. phone sign-in.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// WithRoleResolver consults stored profiles for accounts created before role claims were set.
func WithRoleResolver(resolver RoleResolver) Option {
	return func(a *Authenticator) {
		a.roles = resolver
	}
}

// WithVerificationTimeout bounds each verification including the optional lookups.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate verifies a raw ID token. Accounts without any resolvable role are buyers.
func (a *Authenticator) Authenticate(ctx context.Context, idToken string) (*Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrTokenMissing
	}
	if a == nil || a.verifier == nil {
		return nil, ErrVerifierUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, classifyVerificationError(err)
	}
	if token == nil {
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UID:           token.UID,
		Email:         stringClaim(token.Claims, "email"),
		EmailVerified: boolClaim(token.Claims, "email_verified"),
		DisplayName:   stringClaim(token.Claims, "name"),
		Roles:         rolesFromClaims(token.Claims, roleClaim),
	}
	if len(identity.Roles) == 0 && a.roles != nil {
		if stored, err := a.roles(ctx, identity.UID); err == nil {
			identity.Roles = normalizeRoles([]string{stored})
		}
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleBuyer}
	}
	if identity.Email == "" && a.users != nil {
		if record, err := a.users.GetUser(ctx, identity.UID); err == nil && record != nil && record.UserInfo != nil {
			identity.Email = strings.TrimSpace(record.Email)
			identity.EmailVerified = record.EmailVerified
			if identity.DisplayName == "" {
				identity.DisplayName = record.DisplayName
			}
		}
	}
	return identity, nil
}

// RequireFirebaseAuth verifies the Authorization bearer token and, when roles are given, requires one of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := normalizeRoles(allowedRoles)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}

			identity, err := a.Authenticate(ctx, tokenStr)
			if err != nil {
				httpx.WriteError(ctx, w, verificationError(err))
				return
			}
			requestctx.Annotate(ctx, "user_id", identity.UID)
			requestctx.Annotate(ctx, "role", identity.Role())

			if len(allowed) > 0 && !holdsAny(identity, allowed) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role",
					fmt.Sprintf("requires role %s", strings.Join(allowed, " or ")), http.StatusForbidden))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func holdsAny(identity *Identity, roles []string) bool {
	for _, role := range roles {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func classifyVerificationError(err error) error {
	if errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err) {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}

func verificationError(err error) httpx.Error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized)
	case errors.Is(err, ErrVerifierUnavailable):
		return httpx.NewError("auth_unavailable", "authorization service unavailable", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized)
	}
}

// rolesFromClaims accepts a single role, a list of roles, or a map of role flags.
func rolesFromClaims(claims map[string]interface{}, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case map[string]interface{}:
		for role, flag := range v {
			if enabled, _ := flag.(bool); enabled {
				candidates = append(candidates, role)
			}
		}
	}
	return normalizeRoles(candidates)
}

func stringClaim(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func boolClaim(claims map[string]interface{}, key string) bool {
	value, _ := claims[key].(bool)
	return value
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
