package neo4jstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// openTestStore connects to TEST_NEO4J_URI and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TEST_NEO4J_URI not set")
	}

	s, err := Open(context.Background(), Options{
		URI:      uri,
		Username: os.Getenv("TEST_NEO4J_USERNAME"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newUser(t *testing.T, s *Store) *domain.User {
	t.Helper()
	u := &domain.User{Email: uuid.NewString() + "@example.com", PreferredName: "Reader", Joined: time.Now().UTC(), IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seed(t *testing.T, s *Store) (string, *domain.Membership) {
	t.Helper()
	owner := newUser(t, s)
	slug := "club-" + uuid.NewString()[:8]
	m := &domain.Membership{ID: uuid.NewString(), ClubSlug: slug, UserEmail: owner.Email, Role: domain.RoleOwner, Joined: time.Now().UTC(), IsActive: true}
	require.NoError(t, s.CreateClub(context.Background(),
		&domain.Club{Slug: slug, Name: "Graph Readers", Publicity: domain.PublicityPrivate, IsActive: true, Created: time.Now().UTC()}, m))
	return slug, m
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newUser(t, s)

	assert.ErrorIs(t, s.CreateUser(ctx, &domain.User{Email: u.Email, Joined: time.Now().UTC()}), domainerrors.ErrEmailTaken)

	got, err := s.GetUser(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Reader", got.PreferredName)

	missing, err := s.GetUser(ctx, "nobody-"+uuid.NewString()+"@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.UpdateUser(ctx, &domain.User{Email: "nobody@example.com"}), domainerrors.ErrUserNotFound)
}

func TestCreateClub_RingAndVisibility(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug, owner := seed(t, s)

	require.NoError(t, s.ReadClub(ctx, slug, func(v graph.ClubView) error {
		r := v.Ring()
		assert.Equal(t, owner.ID, r.Current())
		assert.Equal(t, []string{owner.ID}, r.Order())
		assert.Equal(t, domain.StateReady, graph.State(v))
		return nil
	}))

	exists, err := s.ClubExists(ctx, slug)
	require.NoError(t, err)
	assert.True(t, exists)

	outsider := newUser(t, s)
	clubs, _, err := s.ListClubs(ctx, outsider.Email, 100, 0)
	require.NoError(t, err)
	for _, c := range clubs {
		assert.NotEqual(t, slug, c.Slug, "private club listed for outsider")
	}

	n, err := s.CountActiveMemberships(ctx, owner.UserEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.CreateClub(ctx, &domain.Club{Slug: slug, Name: "dup", Publicity: domain.PublicityPublic, IsActive: true, Created: time.Now().UTC()},
		&domain.Membership{ID: uuid.NewString(), UserEmail: owner.UserEmail, Role: domain.RoleOwner, Joined: time.Now().UTC(), IsActive: true})
	assert.ErrorIs(t, err, domainerrors.ErrSlugTaken)
}

func TestWriteClub_SpliceOutCurrentPicker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug, owner := seed(t, s)
	a, b := newUser(t, s), newUser(t, s)

	var ids []string
	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		r := tx.Ring()
		for _, u := range []*domain.User{a, b} {
			m := &domain.Membership{ID: uuid.NewString(), UserEmail: u.Email, Role: domain.RoleReader, Joined: time.Now().UTC(), IsActive: true}
			if err := tx.InsertMembership(ctx, m); err != nil {
				return err
			}
			if err := r.SpliceIn(m.ID); err != nil {
				return err
			}
			ids = append(ids, m.ID)
		}
		return tx.SaveRing(ctx, r)
	}))

	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		m := tx.Membership(owner.UserEmail)
		m.Depart(time.Now().UTC())
		if err := tx.SaveMembership(ctx, m); err != nil {
			return err
		}
		r := tx.Ring()
		if err := r.SpliceOut(owner.ID); err != nil {
			return err
		}
		return tx.SaveRing(ctx, r)
	}))

	require.NoError(t, s.ReadClub(ctx, slug, func(v graph.ClubView) error {
		r := v.Ring()
		assert.NoError(t, r.Validate(graph.ActiveIDs(v)))
		assert.Equal(t, []string{ids[0], ids[1]}, r.Order())
		assert.False(t, v.Membership(owner.UserEmail).IsActive)
		return nil
	}))
}

func TestWriteClub_ErrorRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug, _ := seed(t, s)

	err := s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		c := tx.Club()
		c.Name = "renamed"
		if err := tx.SaveClub(ctx, c); err != nil {
			return err
		}
		return domainerrors.ErrPickPending
	})
	assert.ErrorIs(t, err, domainerrors.ErrPickPending)

	require.NoError(t, s.ReadClub(ctx, slug, func(v graph.ClubView) error {
		assert.Equal(t, "Graph Readers", v.Club().Name)
		return nil
	}))

	assert.ErrorIs(t, s.WriteClub(ctx, "missing-"+slug, func(graph.ClubTx) error { return nil }), domainerrors.ErrClubNotFound)
}

func TestThreads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug, owner := seed(t, s)
	now := time.Now().UTC()

	d := &domain.Discussion{ID: uuid.NewString(), MembershipID: owner.ID, Title: "Part one", Created: now, IsActive: true}
	first := &domain.Reply{ID: uuid.NewString(), DiscussionID: d.ID, ParentID: d.ID, MembershipID: owner.ID, Content: "a", Depth: 1, Created: now, IsActive: true}
	second := &domain.Reply{ID: uuid.NewString(), DiscussionID: d.ID, ParentID: first.ID, MembershipID: owner.ID, Content: "b", Depth: 2, Created: now.Add(time.Second), IsActive: true}

	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		if err := tx.InsertDiscussion(ctx, d); err != nil {
			return err
		}
		if err := tx.InsertReply(ctx, first); err != nil {
			return err
		}
		return tx.InsertReply(ctx, second)
	}))

	require.NoError(t, s.ReadClub(ctx, slug, func(v graph.ClubView) error {
		replies, err := v.Replies(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, replies, 2)
		assert.Equal(t, first.ID, replies[0].ID)
		assert.Equal(t, first.ID, replies[1].ParentID)

		node, err := v.ThreadNode(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, first.ID, node.ParentID)

		list, total, err := v.Discussions(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, owner.UserEmail, list[0].AuthorEmail)
		return nil
	}))

	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		return tx.DeactivateThreadNode(ctx, first.ID)
	}))

	require.NoError(t, s.ReadClub(ctx, slug, func(v graph.ClubView) error {
		node, err := v.ThreadNode(ctx, first.ID)
		require.NoError(t, err)
		assert.Nil(t, node)
		return nil
	}))
}

func TestNotifications(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newUser(t, s)

	for i := range 3 {
		require.NoError(t, s.CreateNotification(ctx, &domain.Notification{
			ID: uuid.NewString(), RecipientEmail: u.Email, Type: domain.NotificationTurnStarted,
			Message: "your turn", Created: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	list, total, err := s.ListNotifications(ctx, u.Email, 2, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)

	require.NoError(t, s.MarkNotificationRead(ctx, list[0].ID))
	n, err := s.CountUnreadNotifications(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.MarkAllNotificationsRead(ctx, u.Email))
	n, err = s.CountUnreadNotifications(ctx, u.Email)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUniqueKeys_MapToNamedErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug, owner := seed(t, s)
	now := time.Now().UTC()

	err := s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		return tx.InsertMembership(ctx, &domain.Membership{ID: uuid.NewString(), UserEmail: owner.UserEmail, Role: domain.RoleReader, Joined: now, IsActive: true})
	})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyMember)

	pick := func() *domain.Pick {
		return &domain.Pick{ID: uuid.NewString(), MembershipID: owner.ID,
			Book: domain.Book{ExternalID: "ol:" + uuid.NewString(), Title: "Dune"}, PickedOn: now, IsActive: true}
	}
	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error { return tx.InsertPick(ctx, pick()) }))
	err = s.WriteClub(ctx, slug, func(tx graph.ClubTx) error { return tx.InsertPick(ctx, pick()) })
	assert.ErrorIs(t, err, domainerrors.ErrPickAlreadyOpen)

	require.NoError(t, s.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		p := tx.OpenPick()
		p.Complete(time.Now().UTC())
		if err := tx.SavePick(ctx, p); err != nil {
			return err
		}
		return tx.InsertPick(ctx, pick())
	}), "a completed pick frees the open slot")
}
