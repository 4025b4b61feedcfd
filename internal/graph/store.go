// Package graph defines the store adapter contract for the club graph: users,
// clubs, memberships, the pick-rotation ring, picks, discussion threads and
// notifications.
//
// Every mutation of a club's membership or rotation state runs through
// WriteClub, which executes the callback inside one store transaction holding
// the club's write lock. Authorization checks made inside the callback see the
// same locked state the mutation is applied to, so a check and the write it
// gates commit or abort together.
package graph

import (
	"context"

	"github.com/bookclub/bookclub/internal/domain"
	"github.com/bookclub/bookclub/internal/ring"
)

// Store is implemented by the postgres, neo4j and memory adapters.
type Store interface {
	Users
	Clubs
	Notifications

	// Close releases connections held by the adapter.
	Close(ctx context.Context) error
}

// Users persists identities. Getters return nil, nil when nothing matches.
type Users interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, int, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	// CountActiveMemberships counts the user's active memberships across clubs.
	CountActiveMemberships(ctx context.Context, email string) (int, error)
}

// Clubs persists clubs and exposes per-club transactions.
type Clubs interface {
	// CreateClub stores the club, the owner's membership, a one-node ring and
	// the current-picker pointer in a single transaction. A taken slug yields
	// errors.ErrSlugTaken.
	CreateClub(ctx context.Context, c *domain.Club, owner *domain.Membership) error
	// ClubExists reports whether any club, active or not, uses slug.
	ClubExists(ctx context.Context, slug string) (bool, error)
	// ListClubs lists active clubs visible to viewer: public ones and those the
	// viewer is an active member of.
	ListClubs(ctx context.Context, viewerEmail string, limit, offset int) ([]*domain.Club, int, error)
	// ReadClub runs fn against a consistent snapshot of an active club.
	ReadClub(ctx context.Context, slug string, fn func(ClubView) error) error
	// WriteClub runs fn in one atomic transaction holding the club's write lock.
	// Any error returned by fn aborts the transaction.
	WriteClub(ctx context.Context, slug string, fn func(ClubTx) error) error
}

// ClubView is the state of one club as seen by a transaction. Returned
// pointers are copies owned by the caller.
type ClubView interface {
	Club() *domain.Club
	// Memberships returns every membership of the club, departed ones included,
	// ordered by join time.
	Memberships() []*domain.Membership
	// Membership returns the user's membership, active or not, or nil.
	Membership(email string) *domain.Membership
	// Ring returns a copy of the loaded pick-rotation ring.
	Ring() *ring.Ring
	// OpenPick returns the club's active pick, or nil.
	OpenPick() *domain.Pick

	Picks(ctx context.Context, limit, offset int) ([]*domain.Pick, int, error)
	Discussions(ctx context.Context, limit, offset int) ([]*domain.Discussion, int, error)
	// Discussion returns an active discussion of this club, or nil.
	Discussion(ctx context.Context, id string) (*domain.Discussion, error)
	// Replies returns the active replies under a discussion, oldest first.
	Replies(ctx context.Context, discussionID string) ([]*domain.Reply, error)
	// ThreadNode resolves an active discussion or reply of this club, or nil.
	ThreadNode(ctx context.Context, id string) (*domain.ThreadNode, error)
}

// ClubTx adds mutations to ClubView.
type ClubTx interface {
	ClubView

	SaveClub(ctx context.Context, c *domain.Club) error
	InsertMembership(ctx context.Context, m *domain.Membership) error
	SaveMembership(ctx context.Context, m *domain.Membership) error
	// SaveRing persists the difference between the loaded ring and r
	// (detach-if-present, then attach) and moves the current-picker pointer.
	SaveRing(ctx context.Context, r *ring.Ring) error
	// InsertPick materializes the pick's book and records the pick as open.
	InsertPick(ctx context.Context, p *domain.Pick) error
	SavePick(ctx context.Context, p *domain.Pick) error
	InsertDiscussion(ctx context.Context, d *domain.Discussion) error
	InsertReply(ctx context.Context, r *domain.Reply) error
	// DeactivateThreadNode soft-deletes a discussion or reply of this club.
	DeactivateThreadNode(ctx context.Context, id string) error
}

// Notifications persists per-user notifications.
type Notifications interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, recipientEmail string, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientEmail string) error
	CountUnreadNotifications(ctx context.Context, recipientEmail string) (int, error)
}

// ActiveIDs returns the IDs of the active memberships in v.
func ActiveIDs(v ClubView) []string {
	var ids []string
	for _, m := range v.Memberships() {
		if m.IsActive {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// MembershipByID finds a membership of v by ID.
func MembershipByID(v ClubView, id string) *domain.Membership {
	for _, m := range v.Memberships() {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// State derives the rotation state of v.
func State(v ClubView) domain.RotationState {
	switch {
	case v.Ring().Len() == 0:
		return domain.StateNoMembers
	case v.OpenPick() != nil:
		return domain.StatePickPending
	default:
		return domain.StateReady
	}
}
