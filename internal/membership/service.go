// Package membership manages who belongs to a club and with which role.
//
// Every mutation runs inside one graph.Clubs.WriteClub transaction: the
// actor's role is checked against the locked club state, the membership is
// written and the pick-rotation ring is spliced before anything commits.
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/authz"
	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/notification"
)

// Notifier delivers notifications once a transaction has committed.
type Notifier interface {
	Notify(ctx context.Context, notifications ...*domain.Notification)
}

// Service handles membership business logic
type Service struct {
	store  graph.Store
	notify Notifier
	log    *zap.Logger
}

// NewService creates a new membership service
func NewService(store graph.Store, notifier Notifier, log *zap.Logger) *Service {
	return &Service{store: store, notify: notifier, log: log.Named("membership")}
}

// AddMember creates an active membership for memberEmail and splices it into
// the ring immediately before the current picker. A nil req adds a READER.
func (s *Service) AddMember(ctx context.Context, clubSlug, memberEmail, actorEmail string, req *AddMemberRequest) (*domain.Membership, error) {
	if req == nil {
		req = &AddMemberRequest{}
	}
	memberEmail = domain.NormalizeEmail(memberEmail)
	role := req.Role
	if role == domain.RoleNone {
		role = domain.RoleReader
	}
	switch role {
	case domain.RoleReader, domain.RoleAdmin:
	case domain.RoleOwner:
		return nil, domainerrors.InvalidInput("ownership can only be granted by transfer")
	case domain.RoleNone:
		return nil, domainerrors.InvalidInputf("unknown role %q", req.Role)
	default:
		return nil, domainerrors.InvalidInputf("unknown role %q", req.Role)
	}

	user, err := s.activeUser(ctx, memberEmail)
	if err != nil {
		return nil, err
	}

	var (
		added *domain.Membership
		notes []*domain.Notification
	)
	err = s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireRole(tx, actorEmail, authz.Managers...)
		if err != nil {
			return err
		}
		if !authz.CanGrant(actor.Role, role) {
			return domainerrors.Unauthorized("your role cannot grant " + role.String())
		}
		if existing := tx.Membership(memberEmail); existing != nil {
			if existing.IsActive {
				return domainerrors.ErrAlreadyMember
			}
			return domainerrors.ErrFormerMember
		}

		m := &domain.Membership{
			ID:        uuid.NewString(),
			ClubSlug:  clubSlug,
			UserEmail: memberEmail,
			UserName:  user.PreferredName,
			Role:      role,
			Joined:    time.Now().UTC(),
			IsActive:  true,
		}
		if err := tx.InsertMembership(ctx, m); err != nil {
			return err
		}
		turn, err := spliceIn(ctx, tx, m.ID)
		if err != nil {
			return err
		}

		club := tx.Club()
		notes = append(notes, notification.MemberAdded(memberEmail, club, role))
		if turn {
			notes = append(notes, notification.TurnStarted(memberEmail, club))
		}
		added = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member added",
		zap.String("club", clubSlug),
		zap.String("member", memberEmail),
		zap.String("role", role.String()),
		zap.String("actor", actorEmail),
	)
	s.notify.Notify(ctx, notes...)
	return added, nil
}

// UpdateMemberRole changes a member's role. Granting OWNER is a transfer: the
// acting owner is demoted to ADMIN in the same transaction.
func (s *Service) UpdateMemberRole(ctx context.Context, clubSlug, memberEmail, actorEmail string, newRole domain.Role) (*domain.Membership, error) {
	memberEmail = domain.NormalizeEmail(memberEmail)
	if !newRole.Valid() {
		return nil, domainerrors.InvalidInputf("unknown role %q", newRole)
	}

	var (
		updated *domain.Membership
		notes   []*domain.Notification
	)
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireRole(tx, actorEmail, authz.Managers...)
		if err != nil {
			return err
		}
		target := tx.Membership(memberEmail)
		if target == nil || !target.IsActive {
			return domainerrors.ErrMemberNotFound
		}
		if !authz.CanGrant(actor.Role, newRole) {
			return domainerrors.Unauthorized("only the owner can transfer ownership")
		}
		if target.Role == newRole {
			updated = target
			return nil
		}
		if target.Role == domain.RoleOwner {
			return domainerrors.Unauthorized("the owner's role changes only by transferring ownership")
		}

		club := tx.Club()
		if newRole == domain.RoleOwner {
			actor.Role = domain.RoleAdmin
			if err := tx.SaveMembership(ctx, actor); err != nil {
				return err
			}
			notes = append(notes, notification.RoleChanged(actor.UserEmail, club, actor.Role))
		}
		target.Role = newRole
		if err := tx.SaveMembership(ctx, target); err != nil {
			return err
		}
		notes = append(notes, notification.RoleChanged(target.UserEmail, club, newRole))

		mustHaveSingleOwner(tx)
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(notes) > 0 {
		s.log.Info("member role changed",
			zap.String("club", clubSlug),
			zap.String("member", memberEmail),
			zap.String("role", newRole.String()),
			zap.String("actor", actorEmail),
		)
	}
	s.notify.Notify(ctx, notes...)
	return updated, nil
}

// RemoveMember soft-deletes a membership and splices it out of the ring.
// Managers may remove anyone but the owner; any non-owner may remove
// themselves. A departing member's open pick is closed.
func (s *Service) RemoveMember(ctx context.Context, clubSlug, memberEmail, actorEmail string) error {
	memberEmail = domain.NormalizeEmail(memberEmail)

	var notes []*domain.Notification
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireMember(tx, actorEmail)
		if err != nil {
			return err
		}
		target := tx.Membership(memberEmail)
		if target == nil || !target.IsActive {
			return domainerrors.ErrMemberNotFound
		}
		if target.Role == domain.RoleOwner {
			return domainerrors.Unauthorized("the owner must transfer ownership before leaving the club")
		}
		if actor.ID != target.ID && !authz.CanRemove(actor.Role, target.Role) {
			return domainerrors.Unauthorized("your role in this club does not permit removing this member")
		}

		now := time.Now().UTC()
		if p := tx.OpenPick(); p != nil && p.MembershipID == target.ID {
			p.Complete(now)
			if err := tx.SavePick(ctx, p); err != nil {
				return err
			}
		}

		target.Depart(now)
		if err := tx.SaveMembership(ctx, target); err != nil {
			return err
		}

		r := tx.Ring()
		wasCurrent := r.Current() == target.ID
		if err := r.SpliceOut(target.ID); err != nil {
			return domainerrors.Internalf("splice out %s: %v", target.ID, err)
		}
		if err := tx.SaveRing(ctx, r); err != nil {
			return err
		}
		if wasCurrent && r.Current() != "" {
			if next := graph.MembershipByID(tx, r.Current()); next != nil {
				notes = append(notes, notification.TurnStarted(next.UserEmail, tx.Club()))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("member removed",
		zap.String("club", clubSlug),
		zap.String("member", memberEmail),
		zap.String("actor", actorEmail),
	)
	s.notify.Notify(ctx, notes...)
	return nil
}

// ReinstateMember reactivates a departed membership. The member keeps the
// role they left with (a former owner comes back as ADMIN) and re-enters the
// ring at the back of the current round.
func (s *Service) ReinstateMember(ctx context.Context, clubSlug, memberEmail, actorEmail string) (*domain.Membership, error) {
	memberEmail = domain.NormalizeEmail(memberEmail)
	if _, err := s.activeUser(ctx, memberEmail); err != nil {
		return nil, err
	}

	var (
		reinstated *domain.Membership
		notes      []*domain.Notification
	)
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireRole(tx, actorEmail, authz.Managers...)
		if err != nil {
			return err
		}
		target := tx.Membership(memberEmail)
		if target == nil {
			return domainerrors.ErrMemberNotFound
		}
		if target.IsActive {
			return domainerrors.ErrAlreadyMember
		}
		if target.Role == domain.RoleOwner {
			target.Role = domain.RoleAdmin
		}
		if !authz.CanGrant(actor.Role, target.Role) {
			return domainerrors.Unauthorized("your role cannot reinstate a member as " + target.Role.String())
		}

		target.Reinstate()
		if err := tx.SaveMembership(ctx, target); err != nil {
			return err
		}
		turn, err := spliceIn(ctx, tx, target.ID)
		if err != nil {
			return err
		}

		club := tx.Club()
		notes = append(notes, notification.MemberReinstated(memberEmail, club))
		if turn {
			notes = append(notes, notification.TurnStarted(memberEmail, club))
		}
		reinstated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member reinstated",
		zap.String("club", clubSlug),
		zap.String("member", memberEmail),
		zap.String("actor", actorEmail),
	)
	s.notify.Notify(ctx, notes...)
	return reinstated, nil
}

// FindRole returns the user's current role, or RoleNone. It always reads the
// store.
func (s *Service) FindRole(ctx context.Context, clubSlug, email string) (domain.Role, error) {
	role := domain.RoleNone
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		role = authz.RoleOf(v, email)
		return nil
	})
	return role, err
}

// ListMembers returns the club's active members in join order. Managers may
// ask for departed members as well.
func (s *Service) ListMembers(ctx context.Context, clubSlug, requesterEmail string, includeDeparted bool) ([]*domain.Membership, error) {
	var members []*domain.Membership
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		if includeDeparted && !authz.RoleOf(v, requesterEmail).CanManage() {
			return domainerrors.Unauthorized("only club managers can see former members")
		}
		for _, m := range v.Memberships() {
			if m.IsActive || includeDeparted {
				members = append(members, m)
			}
		}
		return nil
	})
	return members, err
}

func (s *Service) activeUser(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, domainerrors.ErrUserNotFound
	}
	return user, nil
}

// spliceIn puts id on the ring and reports whether it became the current
// picker, which happens only when the ring was empty.
func spliceIn(ctx context.Context, tx graph.ClubTx, id string) (bool, error) {
	r := tx.Ring()
	if err := r.SpliceIn(id); err != nil {
		return false, domainerrors.Internalf("splice in %s: %v", id, err)
	}
	if err := tx.SaveRing(ctx, r); err != nil {
		return false, err
	}
	return r.Current() == id, nil
}

// mustHaveSingleOwner panics when the club does not have exactly one active
// owner. Reaching it means a role update was written incorrectly.
func mustHaveSingleOwner(v graph.ClubView) {
	owners := 0
	for _, m := range v.Memberships() {
		if m.IsActive && m.Role == domain.RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		panic(fmt.Sprintf("club %s has %d owners", v.Club().Slug, owners))
	}
}
