// Package domain holds the entities shared by the store adapters and the feature services.
package domain

import (
	"strings"
	"time"
)

// Publicity controls who can read a club's content.
type Publicity string

const (
	PublicityPublic  Publicity = "PUBLIC"
	PublicityPrivate Publicity = "PRIVATE"
)

// Valid reports whether p is a known publicity.
func (p Publicity) Valid() bool {
	switch p {
	case PublicityPublic, PublicityPrivate:
		return true
	default:
		return false
	}
}

// User is an identity keyed by email.
type User struct {
	Email         string     `json:"email"`
	PreferredName string     `json:"preferred_name"`
	Joined        time.Time  `json:"joined"`
	IsActive      bool       `json:"is_active"`
	Departed      *time.Time `json:"departed,omitempty"`
}

// NormalizeEmail lower-cases and trims an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Club is a book club keyed by its slug.
type Club struct {
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image,omitempty"`
	Publicity   Publicity  `json:"publicity"`
	IsActive    bool       `json:"is_active"`
	Created     time.Time  `json:"created"`
	Disbanded   *time.Time `json:"disbanded,omitempty"`
}

// IsPublic reports whether anyone may read the club's content.
func (c *Club) IsPublic() bool {
	return c.Publicity == PublicityPublic
}

// Membership joins a user to a club and carries the user's role there.
type Membership struct {
	ID        string     `json:"id"`
	ClubSlug  string     `json:"club_slug"`
	UserEmail string     `json:"user_email"`
	UserName  string     `json:"user_name,omitempty"`
	Role      Role       `json:"role"`
	Joined    time.Time  `json:"joined"`
	Departed  *time.Time `json:"departed,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// Depart soft-deletes the membership.
func (m *Membership) Depart(at time.Time) {
	m.IsActive = false
	m.Departed = &at
}

// Reinstate reactivates a departed membership.
func (m *Membership) Reinstate() {
	m.IsActive = true
	m.Departed = nil
}
