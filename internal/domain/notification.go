package domain

import "time"

// NotificationType identifies what happened.
type NotificationType string

const (
	NotificationTurnStarted      NotificationType = "TURN_STARTED"
	NotificationMemberAdded      NotificationType = "MEMBER_ADDED"
	NotificationMemberReinstated NotificationType = "MEMBER_REINSTATED"
	NotificationRoleChanged      NotificationType = "ROLE_CHANGED"
	NotificationBookPicked       NotificationType = "BOOK_PICKED"
)

// Notification is a message for one user about a club event.
type Notification struct {
	ID             string           `json:"id"`
	RecipientEmail string           `json:"recipient_email"`
	Type           NotificationType `json:"type"`
	Message        string           `json:"message"`
	ClubSlug       string           `json:"club_slug,omitempty"`
	EntityID       string           `json:"entity_id,omitempty"`
	IsRead         bool             `json:"is_read"`
	Created        time.Time        `json:"created"`
}
