// Package club manages book clubs themselves: creation under a unique slug,
// profile updates, and disbanding.
package club

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
	"github.com/bookclub/bookclub/internal/slug"
)

// Service handles club business logic
type Service struct {
	store graph.Store
	log   *zap.Logger
}

// NewService creates a new club service
func NewService(store graph.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("club")}
}

// Create creates a club and makes the creator its OWNER and first picker.
func (s *Service) Create(ctx context.Context, creatorEmail string, req *CreateClubRequest) (*domain.Club, error) {
	creatorEmail = domain.NormalizeEmail(creatorEmail)
	creator, err := s.store.GetUser(ctx, creatorEmail)
	if err != nil {
		return nil, err
	}
	if creator == nil || !creator.IsActive {
		return nil, domainerrors.ErrUserNotFound
	}

	name := strings.TrimSpace(req.Name)
	clubSlug := slug.Make(name)
	if clubSlug == "" {
		return nil, domainerrors.InvalidInput("club name must contain at least one letter or digit")
	}

	publicity := req.Publicity
	if publicity == "" {
		publicity = domain.PublicityPublic
	}

	now := time.Now().UTC()
	c := &domain.Club{
		Slug:        clubSlug,
		Name:        name,
		Description: req.Description,
		Image:       req.Image,
		Publicity:   publicity,
		IsActive:    true,
		Created:     now,
	}
	owner := &domain.Membership{
		ID:        uuid.NewString(),
		ClubSlug:  clubSlug,
		UserEmail: creator.Email,
		UserName:  creator.PreferredName,
		Role:      domain.RoleOwner,
		Joined:    now,
		IsActive:  true,
	}
	if err := s.store.CreateClub(ctx, c, owner); err != nil {
		return nil, err
	}

	s.log.Info("club created", zap.String("club", clubSlug), zap.String("owner", creator.Email))
	return c, nil
}

// Exists reports whether slug is taken by any club, disbanded ones included.
func (s *Service) Exists(ctx context.Context, clubSlug string) (bool, error) {
	if !slug.Valid(clubSlug) {
		return false, nil
	}
	return s.store.ClubExists(ctx, clubSlug)
}

// Get returns a club as seen by requester.
func (s *Service) Get(ctx context.Context, clubSlug, requesterEmail string) (*Details, error) {
	var details *Details
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		details = &Details{
			Club:        v.Club(),
			MemberCount: len(graph.ActiveIDs(v)),
			Role:        authz.RoleOf(v, requesterEmail),
		}
		return nil
	})
	return details, err
}

// List retrieves the active clubs visible to requester
func (s *Service) List(ctx context.Context, requesterEmail string, page, perPage int) ([]*domain.Club, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListClubs(ctx, domain.NormalizeEmail(requesterEmail), perPage, offset)
}

// Update changes a club's profile. ADMIN or OWNER only.
func (s *Service) Update(ctx context.Context, clubSlug, actorEmail string, req *UpdateClubRequest) (*domain.Club, error) {
	var updated *domain.Club
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		if _, err := authz.RequireRole(tx, actorEmail, authz.Managers...); err != nil {
			return err
		}

		c := tx.Club()
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domainerrors.InvalidInput("club name must not be blank")
			}
			c.Name = name
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		if req.Image != nil {
			c.Image = *req.Image
		}
		if req.Publicity != nil {
			if !req.Publicity.Valid() {
				return domainerrors.InvalidInputf("unknown publicity %q", *req.Publicity)
			}
			c.Publicity = *req.Publicity
		}

		if err := tx.SaveClub(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("club updated", zap.String("club", clubSlug), zap.String("actor", actorEmail))
	return updated, nil
}

// Disband soft-deletes a club. Only its OWNER may do so. An open pick is
// closed; memberships and history are kept but no longer reachable.
func (s *Service) Disband(ctx context.Context, clubSlug, actorEmail string) error {
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		if _, err := authz.RequireRole(tx, actorEmail, domain.RoleOwner); err != nil {
			return err
		}

		now := time.Now().UTC()
		if p := tx.OpenPick(); p != nil {
			p.Complete(now)
			if err := tx.SavePick(ctx, p); err != nil {
				return err
			}
		}

		c := tx.Club()
		c.IsActive = false
		c.Disbanded = &now
		return tx.SaveClub(ctx, c)
	})
	if err != nil {
		return err
	}

	s.log.Info("club disbanded", zap.String("club", clubSlug), zap.String("actor", actorEmail))
	return nil
}
