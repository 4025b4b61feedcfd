// Package rotation runs a club's pick rotation: whose turn it is, the book
// they pick, and the order members take turns in.
//
// A club is in one of three states. NO_MEMBERS has an empty ring. READY has a
// current picker and no open pick. PICK_PENDING has an open pick, which
// freezes the rotation until it is completed.
package rotation

import (
	"context"
	"strings"
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

// Service handles pick-rotation business logic
type Service struct {
	store  graph.Store
	notify Notifier
	log    *zap.Logger
}

// NewService creates a new rotation service
func NewService(store graph.Store, notifier Notifier, log *zap.Logger) *Service {
	return &Service{store: store, notify: notifier, log: log.Named("rotation")}
}

// Advance hands the turn to the current picker's successor. It is only valid
// in READY; on a one-member ring the picker stays the same.
func (s *Service) Advance(ctx context.Context, clubSlug, actorEmail string) (*Status, error) {
	var (
		status *Status
		notes  []*domain.Notification
	)
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		if _, err := authz.RequireRole(tx, actorEmail, authz.Managers...); err != nil {
			return err
		}

		switch graph.State(tx) {
		case domain.StateNoMembers:
			return domainerrors.ErrNoMembers
		case domain.StatePickPending:
			return domainerrors.ErrPickPending
		case domain.StateReady:
		}

		r := tx.Ring()
		prev := r.Current()
		next, err := r.Advance()
		if err != nil {
			return domainerrors.Internalf("advance: %v", err)
		}
		if next != prev {
			if err := tx.SaveRing(ctx, r); err != nil {
				return err
			}
			if m := graph.MembershipByID(tx, next); m != nil {
				notes = append(notes, notification.TurnStarted(m.UserEmail, tx.Club()))
			}
		}

		status = buildStatus(tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("turn advanced",
		zap.String("club", clubSlug),
		zap.String("picker", status.CurrentPicker().UserEmail),
		zap.String("actor", actorEmail),
	)
	s.notify.Notify(ctx, notes...)
	return status, nil
}

// Pick records the current picker's book and moves the club to PICK_PENDING.
func (s *Service) Pick(ctx context.Context, clubSlug, pickerEmail string, book domain.Book) (*domain.Pick, error) {
	book.ExternalID = strings.TrimSpace(book.ExternalID)
	if book.ExternalID == "" {
		return nil, domainerrors.InvalidInput("a book needs its catalog identifier")
	}

	var (
		pick  *domain.Pick
		notes []*domain.Notification
	)
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		picker, err := authz.RequireMember(tx, pickerEmail)
		if err != nil {
			return err
		}
		if tx.OpenPick() != nil {
			return domainerrors.ErrPickAlreadyOpen
		}
		if tx.Ring().Current() != picker.ID {
			return domainerrors.ErrNotYourTurn
		}

		p := &domain.Pick{
			ID:           uuid.NewString(),
			ClubSlug:     clubSlug,
			MembershipID: picker.ID,
			PickerEmail:  picker.UserEmail,
			Book:         book,
			PickedOn:     time.Now().UTC(),
			IsActive:     true,
		}
		if err := tx.InsertPick(ctx, p); err != nil {
			return err
		}

		club := tx.Club()
		for _, m := range tx.Memberships() {
			if m.IsActive && m.ID != picker.ID {
				notes = append(notes, notification.BookPicked(m.UserEmail, club, p))
			}
		}
		pick = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("book picked",
		zap.String("club", clubSlug),
		zap.String("picker", pick.PickerEmail),
		zap.String("book", pick.Book.ExternalID),
	)
	s.notify.Notify(ctx, notes...)
	return pick, nil
}

// CompletePick closes the open pick, returning the club to READY. The picker
// or a manager may complete it.
func (s *Service) CompletePick(ctx context.Context, clubSlug, actorEmail string) (*domain.Pick, error) {
	var pick *domain.Pick
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireMember(tx, actorEmail)
		if err != nil {
			return err
		}
		p := tx.OpenPick()
		if p == nil {
			return domainerrors.NotFound("there is no open pick")
		}
		if p.MembershipID != actor.ID && !actor.Role.CanManage() {
			return domainerrors.Unauthorized("only the picker or a club manager can complete this pick")
		}

		p.Complete(time.Now().UTC())
		if err := tx.SavePick(ctx, p); err != nil {
			return err
		}
		pick = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pick completed", zap.String("club", clubSlug), zap.String("pick", pick.ID))
	return pick, nil
}

// AdjustOrder replaces the ring with orderedEmails. The list must name every
// active member exactly once; otherwise the call fails with ErrInvalidMember
// and the ring is left as it was. The current picker keeps the turn.
func (s *Service) AdjustOrder(ctx context.Context, clubSlug, actorEmail string, orderedEmails []string) (*Status, error) {
	if len(orderedEmails) == 0 {
		return nil, domainerrors.ErrInvalidMember.WithMessage("order must not be empty")
	}

	var status *Status
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		if _, err := authz.RequireRole(tx, actorEmail, authz.Managers...); err != nil {
			return err
		}

		ids := make([]string, 0, len(orderedEmails))
		seen := make(map[string]struct{}, len(orderedEmails))
		for _, e := range orderedEmails {
			e = domain.NormalizeEmail(e)
			m := tx.Membership(e)
			if m == nil || !m.IsActive {
				return domainerrors.ErrInvalidMember.WithDetails(map[string]string{"email": e, "problem": "not an active member"})
			}
			if _, dup := seen[m.ID]; dup {
				return domainerrors.ErrInvalidMember.WithDetails(map[string]string{"email": e, "problem": "listed twice"})
			}
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
		if active := graph.ActiveIDs(tx); len(active) != len(ids) {
			var missing []string
			for _, id := range active {
				if _, ok := seen[id]; !ok {
					missing = append(missing, graph.MembershipByID(tx, id).UserEmail)
				}
			}
			return domainerrors.ErrInvalidMember.WithDetails(map[string]any{"missing": missing})
		}

		r := tx.Ring()
		if err := r.Replace(ids); err != nil {
			return domainerrors.Internalf("replace ring: %v", err)
		}
		if err := tx.SaveRing(ctx, r); err != nil {
			return err
		}
		status = buildStatus(tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rotation order adjusted",
		zap.String("club", clubSlug),
		zap.Int("members", len(status.Order)),
		zap.String("actor", actorEmail),
	)
	return status, nil
}

// Status reports the rotation of a club visible to requester.
func (s *Service) Status(ctx context.Context, clubSlug, requesterEmail string) (*Status, error) {
	var status *Status
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		status = buildStatus(v)
		return nil
	})
	return status, err
}

// History lists the club's picks, newest first.
func (s *Service) History(ctx context.Context, clubSlug, requesterEmail string, page, perPage int) ([]*domain.Pick, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var (
		picks []*domain.Pick
		total int
	)
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		var err error
		picks, total, err = v.Picks(ctx, perPage, (page-1)*perPage)
		return err
	})
	return picks, total, err
}

func buildStatus(v graph.ClubView) *Status {
	st := &Status{State: graph.State(v), OpenPick: v.OpenPick()}
	for _, id := range v.Ring().Order() {
		if m := graph.MembershipByID(v, id); m != nil {
			st.Order = append(st.Order, m)
		}
	}
	return st
}
