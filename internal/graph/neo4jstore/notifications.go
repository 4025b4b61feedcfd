package neo4jstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bookclub/bookclub/internal/domain"
)

const notificationReturn = `
	RETURN n.id AS id, n.recipient_email AS recipient_email, n.type AS type, n.message AS message,
	       n.club_slug AS club_slug, n.entity_id AS entity_id, n.is_read AS is_read, n.created AS created
`

func notificationFromRecord(rec *neo4j.Record) *domain.Notification {
	return &domain.Notification{
		ID:             getString(rec, "id"),
		RecipientEmail: getString(rec, "recipient_email"),
		Type:           domain.NotificationType(getString(rec, "type")),
		Message:        getString(rec, "message"),
		ClubSlug:       getString(rec, "club_slug"),
		EntityID:       getString(rec, "entity_id"),
		IsRead:         getBool(rec, "is_read"),
		Created:        getTime(rec, "created"),
	}
}

// CreateNotification implements graph.Notifications. The notification is
// linked to its recipient when the user node exists.
func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_, err := s.query(ctx, `
		CREATE (n:Notification {id: $id, recipient_email: $recipient, type: $type, message: $message,
		                        club_slug: $club_slug, entity_id: $entity_id, is_read: $is_read, created: $created})
		WITH n
		OPTIONAL MATCH (u:User {email: $recipient})
		FOREACH (_ IN CASE WHEN u IS NULL THEN [] ELSE [1] END | CREATE (n)-[:NOTIFIES]->(u))
	`, map[string]any{
		"id":        n.ID,
		"recipient": n.RecipientEmail,
		"type":      string(n.Type),
		"message":   n.Message,
		"club_slug": n.ClubSlug,
		"entity_id": n.EntityID,
		"is_read":   n.IsRead,
		"created":   n.Created.UTC(),
	}, true)
	return storeErr(err, "create notification")
}

// GetNotification implements graph.Notifications.
func (s *Store) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	records, err := s.query(ctx, `MATCH (n:Notification {id: $id})`+notificationReturn, map[string]any{"id": id}, false)
	if err != nil {
		return nil, storeErr(err, "get notification")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return notificationFromRecord(records[0]), nil
}

// ListNotifications implements graph.Notifications.
func (s *Store) ListNotifications(ctx context.Context, recipientEmail string, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error) {
	filter := `
		MATCH (n:Notification {recipient_email: $recipient})
		WHERE NOT $unread_only OR NOT n.is_read
	`
	params := map[string]any{"recipient": recipientEmail, "unread_only": unreadOnly, "offset": offset, "limit": limit}

	records, err := s.query(ctx, filter+` RETURN count(n) AS total`, params, false)
	if err != nil {
		return nil, 0, storeErr(err, "count notifications")
	}
	total := getInt(records[0], "total")

	records, err = s.query(ctx, filter+notificationReturn+`
		ORDER BY created DESC, id
		SKIP $offset LIMIT $limit
	`, params, false)
	if err != nil {
		return nil, 0, storeErr(err, "list notifications")
	}

	notifications := make([]*domain.Notification, len(records))
	for i, rec := range records {
		notifications[i] = notificationFromRecord(rec)
	}
	return notifications, total, nil
}

// MarkNotificationRead implements graph.Notifications.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.query(ctx, `MATCH (n:Notification {id: $id}) SET n.is_read = true`, map[string]any{"id": id}, true)
	return storeErr(err, "mark notification read")
}

// MarkAllNotificationsRead implements graph.Notifications.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientEmail string) error {
	_, err := s.query(ctx, `
		MATCH (n:Notification {recipient_email: $recipient, is_read: false})
		SET n.is_read = true
	`, map[string]any{"recipient": recipientEmail}, true)
	return storeErr(err, "mark all notifications read")
}

// CountUnreadNotifications implements graph.Notifications.
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientEmail string) (int, error) {
	records, err := s.query(ctx, `
		MATCH (n:Notification {recipient_email: $recipient, is_read: false})
		RETURN count(n) AS n
	`, map[string]any{"recipient": recipientEmail}, false)
	if err != nil {
		return 0, storeErr(err, "count unread notifications")
	}
	return getInt(records[0], "n"), nil
}
