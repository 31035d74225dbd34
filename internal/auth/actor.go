// Package auth resolves the principal of a request. Tokens are HS256 JWTs
// issued by the identity provider (or the seed command) and carry the user
// id, display name and role.
package auth

import "github.com/tbourn/go-recipe-backend/internal/domain"

// Actor is the principal performing an operation. The zero value is the
// anonymous actor.
type Actor struct {
	UserID string
	Name   string
	Role   domain.Role
}

// Anonymous returns the actor used for requests without a valid token.
func Anonymous() Actor { return Actor{Role: domain.RoleAnonymous} }

// IsAnonymous reports whether the actor has no authenticated identity.
func (a Actor) IsAnonymous() bool {
	return a.UserID == "" || a.Role == "" || a.Role == domain.RoleAnonymous
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return !a.IsAnonymous() && a.Role == domain.RoleAdmin }

// RoleName returns the effective role, mapping unauthenticated actors to
// anonymous.
func (a Actor) RoleName() domain.Role {
	if a.IsAnonymous() {
		return domain.RoleAnonymous
	}
	return a.Role
}
