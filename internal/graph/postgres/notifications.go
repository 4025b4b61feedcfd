package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bookclub/bookclub/internal/domain"
)

const notificationColumns = `id, recipient_email, type, message, club_slug, entity_id, is_read, created`

func scanNotification(row scanner) (*domain.Notification, error) {
	n := &domain.Notification{}
	err := row.Scan(&n.ID, &n.RecipientEmail, &n.Type, &n.Message, &n.ClubSlug, &n.EntityID, &n.IsRead, &n.Created)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// CreateNotification implements graph.Notifications.
func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.RecipientEmail, n.Type, n.Message, n.ClubSlug, n.EntityID, n.IsRead, n.Created)
	return storeErr(err, "create notification")
}

// GetNotification implements graph.Notifications.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get notification")
	}
	return n, nil
}

// ListNotifications implements graph.Notifications.
func (s *Store) ListNotifications(ctx context.Context, recipientEmail string, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error) {
	filter := ` FROM notifications WHERE recipient_email = $1 AND (NOT $2 OR NOT is_read)`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+filter, recipientEmail, unreadOnly).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count notifications")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+filter+`
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4`, recipientEmail, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list notifications")
	}
	defer rows.Close()

	notifications := []*domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, storeErr(err, "scan notification")
		}
		notifications = append(notifications, n)
	}
	return notifications, total, storeErr(rows.Err(), "list notifications")
}

// MarkNotificationRead implements graph.Notifications.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	return storeErr(err, "mark notification read")
}

// MarkAllNotificationsRead implements graph.Notifications.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientEmail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient_email = $1 AND NOT is_read`, recipientEmail)
	return storeErr(err, "mark all notifications read")
}

// CountUnreadNotifications implements graph.Notifications.
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientEmail string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_email = $1 AND NOT is_read`, recipientEmail).Scan(&count)
	return count, storeErr(err, "count unread notifications")
}
