package domain

import "fmt"

// Role is a member's standing in a club. The zero value RoleNone means "not a member".
type Role string

const (
	RoleNone   Role = ""
	RoleReader Role = "READER"
	RoleAdmin  Role = "ADMIN"
	RoleOwner  Role = "OWNER"
)

// ParseRole converts an API value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleAdmin, RoleOwner:
		return true
	case RoleNone:
		return false
	default:
		return false
	}
}

// Rank orders roles by privilege; RoleNone ranks lowest.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleReader:
		return 1
	case RoleNone:
		return 0
	default:
		return 0
	}
}

// CanManage reports whether the role may mutate membership and rotation state.
func (r Role) CanManage() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	case RoleReader, RoleNone:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	if r == RoleNone {
		return "NONE"
	}
	return string(r)
}
