package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/graph/memory"
	"github.com/bookclub/bookclub/internal/membership"
)

const club = "book-lovers"

type discard struct{}

func (discard) Notify(context.Context, ...*domain.Notification) {}

func email(name string) string { return name + "@example.com" }

type fixture struct {
	store   *memory.Store
	members *membership.Service
	svc     *Service
}

// setupBookLovers creates book-lovers with alice (OWNER), bob (ADMIN) and
// carol (READER) in ring order alice -> bob -> carol, alice picking.
func setupBookLovers(t *testing.T, extra ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	now := time.Now().UTC()

	for _, name := range append([]string{"alice", "bob", "carol"}, extra...) {
		require.NoError(t, store.CreateUser(ctx, &domain.User{Email: email(name), PreferredName: name, Joined: now, IsActive: true}))
	}
	require.NoError(t, store.CreateClub(ctx,
		&domain.Club{Slug: club, Name: "Book Lovers", Publicity: domain.PublicityPublic, IsActive: true, Created: now},
		&domain.Membership{ID: "m-alice", ClubSlug: club, UserEmail: email("alice"), Role: domain.RoleOwner, Joined: now, IsActive: true},
	))

	f := &fixture{
		store:   store,
		members: membership.NewService(store, discard{}, zap.NewNop()),
		svc:     NewService(store, discard{}, zap.NewNop()),
	}
	f.add(t, "bob", domain.RoleAdmin)
	f.add(t, "carol", domain.RoleReader)
	return f
}

func (f *fixture) add(t *testing.T, name string, role domain.Role) {
	t.Helper()
	_, err := f.members.AddMember(context.Background(), club, email(name), email("alice"), &membership.AddMemberRequest{Role: role})
	require.NoError(t, err)
}

func (f *fixture) order(t *testing.T) []string {
	t.Helper()
	st, err := f.svc.Status(context.Background(), club, "")
	require.NoError(t, err)
	out := make([]string, len(st.Order))
	for i, m := range st.Order {
		out[i] = m.UserEmail
	}
	return out
}

var dune = domain.Book{ExternalID: "ol:OL893415W", Title: "Dune", Authors: []string{"Frank Herbert"}}

func TestScenario_AdvanceThenRemoveCurrentPicker(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()
	require.Equal(t, []string{email("alice"), email("bob"), email("carol")}, f.order(t))

	st, err := f.svc.Advance(ctx, club, email("alice"))
	require.NoError(t, err)
	assert.Equal(t, email("bob"), st.CurrentPicker().UserEmail)

	require.NoError(t, f.members.RemoveMember(ctx, club, email("bob"), email("alice")))

	assert.Equal(t, []string{email("carol"), email("alice")}, f.order(t))
}

func TestPick_StateMachine(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()

	_, err := f.svc.Pick(ctx, club, email("bob"), dune)
	assert.ErrorIs(t, err, domainerrors.ErrNotYourTurn)

	_, err = f.svc.Pick(ctx, club, email("alice"), domain.Book{Title: "No id"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	p, err := f.svc.Pick(ctx, club, email("alice"), dune)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, "m-alice", p.MembershipID)

	st, err := f.svc.Status(ctx, club, email("carol"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatePickPending, st.State)
	require.NotNil(t, st.OpenPick)

	_, err = f.svc.Pick(ctx, club, email("alice"), dune)
	assert.ErrorIs(t, err, domainerrors.ErrPickAlreadyOpen, "no double pick")

	_, err = f.svc.Advance(ctx, club, email("alice"))
	assert.ErrorIs(t, err, domainerrors.ErrPickPending)

	_, err = f.svc.CompletePick(ctx, club, email("carol"))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	done, err := f.svc.CompletePick(ctx, club, email("alice"))
	require.NoError(t, err)
	assert.False(t, done.IsActive)
	assert.NotNil(t, done.CompletedOn)

	_, err = f.svc.CompletePick(ctx, club, email("alice"))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	st, err = f.svc.Advance(ctx, club, email("bob"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, st.State)
	assert.Equal(t, email("bob"), st.CurrentPicker().UserEmail)

	picks, total, err := f.svc.History(ctx, club, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Dune", picks[0].Book.Title)
}

func TestAdvance_Rules(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()

	_, err := f.svc.Advance(ctx, club, email("carol"))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	_, err = f.svc.Advance(ctx, "missing", email("alice"))
	assert.ErrorIs(t, err, domainerrors.ErrClubNotFound)

	for _, want := range []string{"bob", "carol", "alice"} {
		st, err := f.svc.Advance(ctx, club, email("alice"))
		require.NoError(t, err)
		assert.Equal(t, email(want), st.CurrentPicker().UserEmail)
	}
}

func TestAdvance_SingleMemberStays(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()
	require.NoError(t, f.members.RemoveMember(ctx, club, email("bob"), email("alice")))
	require.NoError(t, f.members.RemoveMember(ctx, club, email("carol"), email("alice")))

	st, err := f.svc.Advance(ctx, club, email("alice"))
	require.NoError(t, err)
	assert.Equal(t, email("alice"), st.CurrentPicker().UserEmail)
	assert.Len(t, st.Order, 1)
}

func TestAdvance_ConcurrentCallsEachMoveOnce(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()

	const calls = 10
	var wg sync.WaitGroup
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Advance(ctx, club, email("alice"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 10 hops around a 3-member ring lands one past the start.
	assert.Equal(t, email("bob"), f.order(t)[0])
}

func TestAdjustOrder(t *testing.T) {
	f := setupBookLovers(t)
	ctx := context.Background()
	_, err := f.svc.Advance(ctx, club, email("alice"))
	require.NoError(t, err)

	st, err := f.svc.AdjustOrder(ctx, club, email("bob"), []string{email("carol"), "Bob@Example.com", email("alice")})
	require.NoError(t, err)
	assert.Equal(t, email("bob"), st.CurrentPicker().UserEmail, "current picker keeps the turn")
	assert.Equal(t, []string{email("bob"), email("alice"), email("carol")}, f.order(t))

	require.NoError(t, f.store.ReadClub(ctx, club, func(v graph.ClubView) error {
		return v.Ring().Validate(graph.ActiveIDs(v))
	}))
}

func TestAdjustOrder_FailureLeavesRingUntouched(t *testing.T) {
	f := setupBookLovers(t, "dave", "erin")
	ctx := context.Background()
	require.NoError(t, f.members.RemoveMember(ctx, club, email("carol"), email("alice")))
	f.add(t, "dave", domain.RoleReader)
	before := f.order(t)

	tests := []struct {
		name  string
		actor string
		order []string
		want  error
	}{
		{"outsider email", "alice", []string{email("alice"), email("bob"), email("dave"), email("erin")}, domainerrors.ErrInvalidMember},
		{"departed member", "alice", []string{email("alice"), email("bob"), email("carol")}, domainerrors.ErrInvalidMember},
		{"duplicate", "alice", []string{email("alice"), email("bob"), email("bob")}, domainerrors.ErrInvalidMember},
		{"partial", "alice", []string{email("alice"), email("bob")}, domainerrors.ErrInvalidMember},
		{"empty", "alice", nil, domainerrors.ErrInvalidMember},
		{"reader", "dave", []string{email("dave"), email("bob"), email("alice")}, domainerrors.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AdjustOrder(ctx, club, email(tt.actor), tt.order)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, f.order(t))
		})
	}
}

func TestStatus_PrivateClub(t *testing.T) {
	f := setupBookLovers(t, "dave")
	ctx := context.Background()
	require.NoError(t, f.store.WriteClub(ctx, club, func(tx graph.ClubTx) error {
		c := tx.Club()
		c.Publicity = domain.PublicityPrivate
		return tx.SaveClub(ctx, c)
	}))

	_, err := f.svc.Status(ctx, club, email("dave"))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	_, _, err = f.svc.History(ctx, club, "", 1, 20)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	st, err := f.svc.Status(ctx, club, email("carol"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, st.State)
}
