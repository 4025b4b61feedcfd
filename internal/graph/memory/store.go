// Package memory is an in-process graph store: an arena of records with
// successor links for the rotation ring. Club transactions work on a copy of
// the arena that replaces the committed one only when the callback succeeds,
// so a failed operation leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

type state struct {
	users         map[string]domain.User
	clubs         map[string]domain.Club
	memberships   map[string]domain.Membership
	next          map[string]string
	currentPicker map[string]string
	picks         map[string]domain.Pick
	discussions   map[string]domain.Discussion
	replies       map[string]domain.Reply
	notifications map[string]domain.Notification

	// seq records insertion order; it breaks ties between equal timestamps.
	seq     map[string]uint64
	counter uint64
}

func newState() *state {
	return &state{
		users:         map[string]domain.User{},
		clubs:         map[string]domain.Club{},
		memberships:   map[string]domain.Membership{},
		next:          map[string]string{},
		currentPicker: map[string]string{},
		picks:         map[string]domain.Pick{},
		discussions:   map[string]domain.Discussion{},
		replies:       map[string]domain.Reply{},
		notifications: map[string]domain.Notification{},
		seq:           map[string]uint64{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		clubs:         cloneMap(s.clubs),
		memberships:   cloneMap(s.memberships),
		next:          cloneMap(s.next),
		currentPicker: cloneMap(s.currentPicker),
		picks:         cloneMap(s.picks),
		discussions:   cloneMap(s.discussions),
		replies:       cloneMap(s.replies),
		notifications: cloneMap(s.notifications),
		seq:           cloneMap(s.seq),
		counter:       s.counter,
	}
}

func (s *state) track(id string) {
	s.counter++
	s.seq[id] = s.counter
}

// Store is the memory adapter.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ graph.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Close implements graph.Store.
func (s *Store) Close(context.Context) error { return nil }

// CreateUser implements graph.Users.
func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[u.Email]; ok {
		return domainerrors.ErrEmailTaken
	}
	s.st.users[u.Email] = *u
	s.st.track(u.Email)
	return nil
}

// GetUser implements graph.Users.
func (s *Store) GetUser(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.st.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// ListUsers implements graph.Users.
func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]*domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*domain.User, 0, len(s.st.users))
	for _, u := range s.st.users {
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		return s.st.seq[users[i].Email] < s.st.seq[users[j].Email]
	})
	return paginate(users, limit, offset), len(users), nil
}

// UpdateUser implements graph.Users.
func (s *Store) UpdateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[u.Email]; !ok {
		return domainerrors.ErrUserNotFound
	}
	s.st.users[u.Email] = *u
	return nil
}

// CountActiveMemberships implements graph.Users.
func (s *Store) CountActiveMemberships(_ context.Context, email string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.st.memberships {
		if m.UserEmail == email && m.IsActive && s.st.clubs[m.ClubSlug].IsActive {
			n++
		}
	}
	return n, nil
}

// CreateClub implements graph.Clubs.
func (s *Store) CreateClub(_ context.Context, c *domain.Club, owner *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.st.clubs[c.Slug]; taken {
		return domainerrors.ErrSlugTaken
	}
	u, ok := s.st.users[owner.UserEmail]
	if !ok {
		return domainerrors.ErrUserNotFound
	}

	st := s.st.clone()
	st.clubs[c.Slug] = *c
	st.track(c.Slug)
	m := *owner
	m.UserName = u.PreferredName
	st.memberships[m.ID] = m
	st.track(m.ID)
	st.next[m.ID] = m.ID
	st.currentPicker[c.Slug] = m.ID
	s.st = st
	return nil
}

// ClubExists implements graph.Clubs.
func (s *Store) ClubExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.st.clubs[slug]
	return ok, nil
}

// ListClubs implements graph.Clubs.
func (s *Store) ListClubs(_ context.Context, viewerEmail string, limit, offset int) ([]*domain.Club, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberOf := map[string]bool{}
	for _, m := range s.st.memberships {
		if m.UserEmail == viewerEmail && m.IsActive {
			memberOf[m.ClubSlug] = true
		}
	}

	var clubs []*domain.Club
	for _, c := range s.st.clubs {
		if c.IsActive && (c.IsPublic() || memberOf[c.Slug]) {
			clubs = append(clubs, &c)
		}
	}
	sort.Slice(clubs, func(i, j int) bool {
		return s.st.seq[clubs[i].Slug] > s.st.seq[clubs[j].Slug]
	})
	return paginate(clubs, limit, offset), len(clubs), nil
}

// ReadClub implements graph.Clubs.
func (s *Store) ReadClub(_ context.Context, slug string, fn func(graph.ClubView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := open(s.st, slug)
	if err != nil {
		return err
	}
	return fn(tx)
}

// WriteClub implements graph.Clubs.
func (s *Store) WriteClub(_ context.Context, slug string, fn func(graph.ClubTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.st.clone()
	tx, err := open(st, slug)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = st
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
