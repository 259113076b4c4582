package auth

import (
	"context"
	"strings"
)

// Marketplace roles carried in the "role" custom claim.
const (
	RoleBuyer   = "buyer"
	RoleArtisan = "artisan"
	RoleAdmin   = "admin"
)

// rolePriority orders roles when an identity carries more than one.
var rolePriority = []string{RoleAdmin, RoleArtisan, RoleBuyer}

// Identity is the caller behind a verified Firebase ID token.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	Roles         []string
}

// Role returns the most privileged role held by the identity.
func (i *Identity) Role() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	for _, candidate := range rolePriority {
		if i.HasRole(candidate) {
			return candidate
		}
	}
	return i.Roles[0]
}

// HasRole matches after NormalizeRole, so legacy names count.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	want := NormalizeRole(role)
	for _, held := range i.Roles {
		if want != "" && NormalizeRole(held) == want {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity may act on other users' listings and orders.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// NormalizeRole lowercases the role and maps legacy names ("artist", "user") onto the current ones.
func NormalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "artist":
		return RoleArtisan
	case "user":
		return RoleBuyer
	}
	return role
}

// normalizeRoles drops blanks and duplicates while keeping claim order.
func normalizeRoles(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		role := NormalizeRole(candidate)
		if role == "" || containsRole(out, role) {
			continue
		}
		out = append(out, role)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by RequireFirebaseAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
