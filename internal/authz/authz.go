// Package authz holds the role predicates every club operation evaluates.
//
// The predicates read a graph.ClubView. Mutating services call them inside
// graph.Clubs.WriteClub, so the role they observe is the one locked by the
// transaction that applies the change: a concurrent demotion either commits
// before the check (and the check fails) or waits until the change commits.
package authz

import (
	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// Managers may mutate membership and rotation state.
var Managers = []domain.Role{domain.RoleAdmin, domain.RoleOwner}

// RoleOf returns the actor's role in the club, or RoleNone when the actor has
// no active membership.
func RoleOf(v graph.ClubView, email string) domain.Role {
	m := v.Membership(domain.NormalizeEmail(email))
	if m == nil || !m.IsActive {
		return domain.RoleNone
	}
	return m.Role
}

// RequireMember returns the actor's active membership.
func RequireMember(v graph.ClubView, email string) (*domain.Membership, error) {
	m := v.Membership(domain.NormalizeEmail(email))
	if m == nil || !m.IsActive {
		return nil, domainerrors.Unauthorized("you are not a member of this club")
	}
	return m, nil
}

// RequireRole returns the actor's active membership when it holds one of roles.
func RequireRole(v graph.ClubView, email string, roles ...domain.Role) (*domain.Membership, error) {
	m, err := RequireMember(v, email)
	if err != nil {
		return nil, err
	}
	if !HasRole(m.Role, roles...) {
		return nil, domainerrors.Unauthorized("your role in this club does not permit this action")
	}
	return m, nil
}

// HasRole reports whether role is one of roles.
func HasRole(role domain.Role, roles ...domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanGrant reports whether an actor holding actor may assign target to someone.
func CanGrant(actor, target domain.Role) bool {
	switch actor {
	case domain.RoleOwner:
		return target.Valid()
	case domain.RoleAdmin:
		switch target {
		case domain.RoleReader, domain.RoleAdmin:
			return true
		case domain.RoleOwner, domain.RoleNone:
			return false
		default:
			return false
		}
	case domain.RoleReader, domain.RoleNone:
		return false
	default:
		return false
	}
}

// CanRemove reports whether actor may remove a member holding target. Nobody
// removes the owner; ownership must be transferred first.
func CanRemove(actor, target domain.Role) bool {
	switch target {
	case domain.RoleOwner:
		return false
	case domain.RoleAdmin, domain.RoleReader:
		return actor.CanManage()
	case domain.RoleNone:
		return false
	default:
		return false
	}
}

// CanView reports whether the holder of m (nil for outsiders) may read the
// club's content.
func CanView(c *domain.Club, m *domain.Membership) bool {
	if c.IsPublic() {
		return true
	}
	return m != nil && m.IsActive
}

// RequireView fails with Unauthorized when requester may not read the club.
func RequireView(v graph.ClubView, requesterEmail string) error {
	if CanView(v.Club(), v.Membership(domain.NormalizeEmail(requesterEmail))) {
		return nil
	}
	return domainerrors.Unauthorized("this club is private")
}
