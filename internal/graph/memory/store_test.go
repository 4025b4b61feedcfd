package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

func seedClub(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, email := range []string{"alice@example.com", "bob@example.com"} {
		require.NoError(t, s.CreateUser(ctx, &domain.User{Email: email, PreferredName: email[:3], Joined: now, IsActive: true}))
	}
	require.NoError(t, s.CreateClub(ctx,
		&domain.Club{Slug: "book-lovers", Name: "Book Lovers", Publicity: domain.PublicityPublic, IsActive: true, Created: now},
		&domain.Membership{ID: "m-alice", ClubSlug: "book-lovers", UserEmail: "alice@example.com", Role: domain.RoleOwner, Joined: now, IsActive: true},
	))
}

func TestCreateClub_SeedsSelfLoopRing(t *testing.T) {
	s := New()
	seedClub(t, s)

	err := s.ReadClub(context.Background(), "book-lovers", func(v graph.ClubView) error {
		r := v.Ring()
		assert.Equal(t, "m-alice", r.Current())
		assert.Equal(t, []string{"m-alice"}, r.Order())
		assert.Equal(t, "alice", v.Membership("alice@example.com").UserName)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateClub_SlugTaken(t *testing.T) {
	s := New()
	seedClub(t, s)

	err := s.CreateClub(context.Background(),
		&domain.Club{Slug: "book-lovers", IsActive: true},
		&domain.Membership{ID: "m-bob", ClubSlug: "book-lovers", UserEmail: "bob@example.com", Role: domain.RoleOwner, IsActive: true},
	)
	assert.ErrorIs(t, err, domainerrors.ErrSlugTaken)
}

func TestWriteClub_RollsBackOnError(t *testing.T) {
	s := New()
	seedClub(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WriteClub(ctx, "book-lovers", func(tx graph.ClubTx) error {
		m := &domain.Membership{ID: "m-bob", ClubSlug: "book-lovers", UserEmail: "bob@example.com", Role: domain.RoleReader, IsActive: true}
		require.NoError(t, tx.InsertMembership(ctx, m))
		r := tx.Ring()
		require.NoError(t, r.SpliceIn(m.ID))
		require.NoError(t, tx.SaveRing(ctx, r))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.ReadClub(ctx, "book-lovers", func(v graph.ClubView) error {
		assert.Nil(t, v.Membership("bob@example.com"))
		assert.Equal(t, 1, v.Ring().Len())
		return nil
	})
	require.NoError(t, err)
}

func TestWriteClub_SaveRingTwiceInOneTransaction(t *testing.T) {
	s := New()
	seedClub(t, s)
	ctx := context.Background()

	err := s.WriteClub(ctx, "book-lovers", func(tx graph.ClubTx) error {
		m := &domain.Membership{ID: "m-bob", ClubSlug: "book-lovers", UserEmail: "bob@example.com", Role: domain.RoleReader, IsActive: true}
		require.NoError(t, tx.InsertMembership(ctx, m))
		r := tx.Ring()
		require.NoError(t, r.SpliceIn(m.ID))
		require.NoError(t, tx.SaveRing(ctx, r))

		r = tx.Ring()
		_, err := r.Advance()
		require.NoError(t, err)
		return tx.SaveRing(ctx, r)
	})
	require.NoError(t, err)

	err = s.ReadClub(ctx, "book-lovers", func(v graph.ClubView) error {
		r := v.Ring()
		assert.Equal(t, "m-bob", r.Current())
		assert.NoError(t, r.Validate(graph.ActiveIDs(v)))
		return nil
	})
	require.NoError(t, err)
}

func TestReadClub_InactiveClubIsNotFound(t *testing.T) {
	s := New()
	seedClub(t, s)
	ctx := context.Background()

	require.NoError(t, s.WriteClub(ctx, "book-lovers", func(tx graph.ClubTx) error {
		c := tx.Club()
		c.IsActive = false
		return tx.SaveClub(ctx, c)
	}))

	err := s.ReadClub(ctx, "book-lovers", func(graph.ClubView) error { return nil })
	assert.ErrorIs(t, err, domainerrors.ErrClubNotFound)

	exists, err := s.ClubExists(ctx, "book-lovers")
	require.NoError(t, err)
	assert.True(t, exists, "disbanded slugs stay reserved")
}

func TestThreadNode_ReportsParent(t *testing.T) {
	s := New()
	seedClub(t, s)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.WriteClub(ctx, "book-lovers", func(tx graph.ClubTx) error {
		if err := tx.InsertDiscussion(ctx, &domain.Discussion{ID: "d1", ClubSlug: "book-lovers", MembershipID: "m-alice", Title: "Ch. 1", Created: now, IsActive: true}); err != nil {
			return err
		}
		if err := tx.InsertReply(ctx, &domain.Reply{ID: "r1", ClubSlug: "book-lovers", DiscussionID: "d1", ParentID: "d1", MembershipID: "m-alice", Depth: 1, Created: now, IsActive: true}); err != nil {
			return err
		}
		return tx.InsertReply(ctx, &domain.Reply{ID: "r2", ClubSlug: "book-lovers", DiscussionID: "d1", ParentID: "r1", MembershipID: "m-alice", Depth: 2, Created: now, IsActive: true})
	}))

	require.NoError(t, s.ReadClub(ctx, "book-lovers", func(v graph.ClubView) error {
		d, err := v.ThreadNode(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeDiscussion, d.Kind)
		assert.Empty(t, d.ParentID)

		r, err := v.ThreadNode(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, "r1", r.ParentID)
		assert.Equal(t, 2, r.Depth)
		return nil
	}))
}

func TestNotifications(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"n1", "n2"} {
		require.NoError(t, s.CreateNotification(ctx, &domain.Notification{ID: id, RecipientEmail: "bob@example.com", Message: id}))
	}
	require.NoError(t, s.MarkNotificationRead(ctx, "n1"))

	unread, err := s.CountUnreadNotifications(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	list, total, err := s.ListNotifications(ctx, "bob@example.com", 10, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "n2", list[0].ID, "newest first")
}
