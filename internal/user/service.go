package user

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// Service handles user business logic
type Service struct {
	store graph.Users
	log   *zap.Logger
}

// NewService creates a new user service with its store injected
func NewService(store graph.Users, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("user")}
}

// Create registers a new user keyed by normalized email
func (s *Service) Create(ctx context.Context, req *CreateUserRequest) (*domain.User, error) {
	u := &domain.User{
		Email:         domain.NormalizeEmail(req.Email),
		PreferredName: strings.TrimSpace(req.PreferredName),
		Joined:        time.Now().UTC(),
		IsActive:      true,
	}

	// Check if email is already in use
	existing, err := s.store.GetUser(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domainerrors.ErrEmailTaken
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("user created", zap.String("email", u.Email))
	return u, nil
}

// Get retrieves a user by email
func (s *Service) Get(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domainerrors.ErrUserNotFound
	}
	return u, nil
}

// List retrieves users with pagination
func (s *Service) List(ctx context.Context, page, perPage int) ([]*domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListUsers(ctx, perPage, offset)
}

// Update changes a user's profile. Users may only update themselves.
func (s *Service) Update(ctx context.Context, email, actorEmail string, req *UpdateUserRequest) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email != domain.NormalizeEmail(actorEmail) {
		return nil, domainerrors.Unauthorized("you can only update your own profile")
	}

	u, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if req.PreferredName != nil {
		u.PreferredName = strings.TrimSpace(*req.PreferredName)
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Deactivate soft-deletes a user. A user still holding active memberships
// must leave (or hand over ownership of) those clubs first.
func (s *Service) Deactivate(ctx context.Context, email, actorEmail string) error {
	email = domain.NormalizeEmail(email)
	if email != domain.NormalizeEmail(actorEmail) {
		return domainerrors.Unauthorized("you can only deactivate your own account")
	}

	u, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}

	n, err := s.store.CountActiveMemberships(ctx, email)
	if err != nil {
		return err
	}
	if n > 0 {
		return domainerrors.Conflict("leave your clubs before deactivating").
			WithDetails(map[string]int{"active_memberships": n})
	}

	now := time.Now().UTC()
	u.IsActive = false
	u.Departed = &now
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	s.log.Info("user deactivated", zap.String("email", email))
	return nil
}
