package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// Common errors
var (
	ErrNotificationNotFound = domainerrors.NotFound("notification not found")
	ErrNotRecipient         = domainerrors.Unauthorized("not the recipient of this notification")
)

// Service handles notification business logic
type Service struct {
	store graph.Notifications
	log   *zap.Logger
}

// NewService creates a new notification service
func NewService(store graph.Notifications, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("notification")}
}

// Notify stores notifications. It runs after the club transaction that caused
// them has committed, so a failure here cannot undo that change: it is logged
// and otherwise ignored.
func (s *Service) Notify(ctx context.Context, notifications ...*domain.Notification) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Created.IsZero() {
			n.Created = now
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.log.Warn("store notification",
				zap.String("recipient", n.RecipientEmail),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}
}

// ListByRecipient retrieves a page of the user's notifications, newest first
func (s *Service) ListByRecipient(ctx context.Context, email string, page, perPage int, unreadOnly bool) ([]*domain.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListNotifications(ctx, domain.NormalizeEmail(email), perPage, offset, unreadOnly)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, email string) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotificationNotFound
	}
	if n.RecipientEmail != domain.NormalizeEmail(email) {
		return ErrNotRecipient
	}

	return s.store.MarkNotificationRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, email string) error {
	return s.store.MarkAllNotificationsRead(ctx, domain.NormalizeEmail(email))
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, email string) (int, error) {
	return s.store.CountUnreadNotifications(ctx, domain.NormalizeEmail(email))
}

// Builders for the club events that notify someone.

// TurnStarted tells a member it is their turn to pick.
func TurnStarted(recipient string, club *domain.Club) *domain.Notification {
	return &domain.Notification{
		RecipientEmail: recipient,
		Type:           domain.NotificationTurnStarted,
		Message:        fmt.Sprintf("It's your turn to pick the next book for %s", club.Name),
		ClubSlug:       club.Slug,
	}
}

// MemberAdded tells a user they were added to a club.
func MemberAdded(recipient string, club *domain.Club, role domain.Role) *domain.Notification {
	return &domain.Notification{
		RecipientEmail: recipient,
		Type:           domain.NotificationMemberAdded,
		Message:        fmt.Sprintf("You have been added to %s as %s", club.Name, role),
		ClubSlug:       club.Slug,
	}
}

// MemberReinstated tells a former member they are back.
func MemberReinstated(recipient string, club *domain.Club) *domain.Notification {
	return &domain.Notification{
		RecipientEmail: recipient,
		Type:           domain.NotificationMemberReinstated,
		Message:        fmt.Sprintf("Your membership in %s has been reinstated", club.Name),
		ClubSlug:       club.Slug,
	}
}

// RoleChanged tells a member their role changed.
func RoleChanged(recipient string, club *domain.Club, role domain.Role) *domain.Notification {
	return &domain.Notification{
		RecipientEmail: recipient,
		Type:           domain.NotificationRoleChanged,
		Message:        fmt.Sprintf("Your role in %s is now %s", club.Name, role),
		ClubSlug:       club.Slug,
	}
}

// BookPicked tells a member which book was picked.
func BookPicked(recipient string, club *domain.Club, pick *domain.Pick) *domain.Notification {
	return &domain.Notification{
		RecipientEmail: recipient,
		Type:           domain.NotificationBookPicked,
		Message:        fmt.Sprintf("%s picked %q for %s", pick.PickerEmail, pick.Book.Title, club.Name),
		ClubSlug:       club.Slug,
		EntityID:       pick.ID,
	}
}
