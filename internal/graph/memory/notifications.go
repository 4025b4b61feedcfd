package memory

import (
	"context"
	"sort"

	"github.com/bookclub/bookclub/internal/domain"
)

// CreateNotification implements graph.Notifications.
func (s *Store) CreateNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.notifications[n.ID] = *n
	s.st.track(n.ID)
	return nil
}

// GetNotification implements graph.Notifications.
func (s *Store) GetNotification(_ context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.st.notifications[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// ListNotifications implements graph.Notifications.
func (s *Store) ListNotifications(_ context.Context, recipientEmail string, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range s.st.notifications {
		if n.RecipientEmail != recipientEmail || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.st.seq[out[i].ID] > s.st.seq[out[j].ID]
	})
	return paginate(out, limit, offset), len(out), nil
}

// MarkNotificationRead implements graph.Notifications.
func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.st.notifications[id]; ok {
		n.IsRead = true
		s.st.notifications[id] = n
	}
	return nil
}

// MarkAllNotificationsRead implements graph.Notifications.
func (s *Store) MarkAllNotificationsRead(_ context.Context, recipientEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.st.notifications {
		if n.RecipientEmail == recipientEmail && !n.IsRead {
			n.IsRead = true
			s.st.notifications[id] = n
		}
	}
	return nil
}

// CountUnreadNotifications implements graph.Notifications.
func (s *Store) CountUnreadNotifications(_ context.Context, recipientEmail string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.st.notifications {
		if n.RecipientEmail == recipientEmail && !n.IsRead {
			count++
		}
	}
	return count, nil
}
