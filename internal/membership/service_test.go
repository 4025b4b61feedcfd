package membership

import (
	"context"
	"math/rand/v2"
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
)

const club = "book-lovers"

type recorder struct {
	mu  sync.Mutex
	got []*domain.Notification
}

func (r *recorder) Notify(_ context.Context, ns ...*domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ns...)
}

func (r *recorder) types(email string) []domain.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.NotificationType
	for _, n := range r.got {
		if n.RecipientEmail == email {
			out = append(out, n.Type)
		}
	}
	return out
}

func email(name string) string { return name + "@example.com" }

func setupTestService(t *testing.T, users ...string) (*Service, *memory.Store, *recorder) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	rec := &recorder{}
	now := time.Now().UTC()

	for _, name := range append([]string{"alice"}, users...) {
		require.NoError(t, store.CreateUser(ctx, &domain.User{Email: email(name), PreferredName: name, Joined: now, IsActive: true}))
	}
	require.NoError(t, store.CreateClub(ctx,
		&domain.Club{Slug: club, Name: "Book Lovers", Publicity: domain.PublicityPublic, IsActive: true, Created: now},
		&domain.Membership{ID: "m-alice", ClubSlug: club, UserEmail: email("alice"), Role: domain.RoleOwner, Joined: now, IsActive: true},
	))
	return NewService(store, rec, zap.NewNop()), store, rec
}

// ringEmails walks the ring from the current picker.
func ringEmails(t *testing.T, store graph.Store) []string {
	t.Helper()
	var out []string
	require.NoError(t, store.ReadClub(context.Background(), club, func(v graph.ClubView) error {
		r := v.Ring()
		require.NoError(t, r.Validate(graph.ActiveIDs(v)))
		for _, id := range r.Order() {
			out = append(out, graph.MembershipByID(v, id).UserEmail)
		}
		return nil
	}))
	return out
}

func advance(t *testing.T, store graph.Store) {
	t.Helper()
	require.NoError(t, store.WriteClub(context.Background(), club, func(tx graph.ClubTx) error {
		r := tx.Ring()
		if _, err := r.Advance(); err != nil {
			return err
		}
		return tx.SaveRing(context.Background(), r)
	}))
}

func add(t *testing.T, svc *Service, name string, role domain.Role) *domain.Membership {
	t.Helper()
	m, err := svc.AddMember(context.Background(), club, email(name), email("alice"), &AddMemberRequest{Email: email(name), Role: role})
	require.NoError(t, err)
	return m
}

func TestAddMember_SplicesBeforeCurrentPicker(t *testing.T) {
	svc, store, rec := setupTestService(t, "bob", "carol", "dave")

	add(t, svc, "bob", domain.RoleAdmin)
	add(t, svc, "carol", domain.RoleReader)
	assert.Equal(t, []string{email("alice"), email("bob"), email("carol")}, ringEmails(t, store))

	advance(t, store)
	add(t, svc, "dave", domain.RoleNone)

	// dave lands between the current picker's predecessor and the current picker.
	assert.Equal(t, []string{email("bob"), email("carol"), email("alice"), email("dave")}, ringEmails(t, store))
	role, err := svc.FindRole(context.Background(), club, email("dave"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReader, role)
	assert.Contains(t, rec.types(email("dave")), domain.NotificationMemberAdded)
}

func TestAddMember_Errors(t *testing.T) {
	svc, _, _ := setupTestService(t, "bob", "carol", "dave")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleReader)
	add(t, svc, "carol", domain.RoleAdmin)

	tests := []struct {
		name   string
		member string
		actor  string
		role   domain.Role
		want   error
	}{
		{"already member", "bob", "alice", domain.RoleReader, domainerrors.ErrAlreadyMember},
		{"reader cannot add", "dave", "bob", domain.RoleReader, domainerrors.ErrUnauthorized},
		{"outsider cannot add", "dave", "dave", domain.RoleReader, domainerrors.ErrUnauthorized},
		{"owner only by transfer", "dave", "alice", domain.RoleOwner, domainerrors.ErrInvalidInput},
		{"unknown role", "dave", "alice", domain.Role("KING"), domainerrors.ErrInvalidInput},
		{"unknown user", "zed", "alice", domain.RoleReader, domainerrors.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddMember(ctx, club, email(tt.member), email(tt.actor), &AddMemberRequest{Role: tt.role})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.AddMember(ctx, "no-such-club", email("dave"), email("alice"), &AddMemberRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrClubNotFound)
}

func TestAddMember_NilRequestAddsReader(t *testing.T) {
	svc, store, _ := setupTestService(t, "bob")

	m, err := svc.AddMember(context.Background(), club, email("bob"), email("alice"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReader, m.Role)
	assert.Equal(t, []string{email("alice"), email("bob")}, ringEmails(t, store))
}

func TestAddMember_FormerMemberMustBeReinstated(t *testing.T) {
	svc, _, _ := setupTestService(t, "bob")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleReader)
	require.NoError(t, svc.RemoveMember(ctx, club, email("bob"), email("alice")))

	_, err := svc.AddMember(ctx, club, email("bob"), email("alice"), &AddMemberRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrFormerMember)
}

func TestUpdateMemberRole_TransferOwnership(t *testing.T) {
	svc, store, rec := setupTestService(t, "bob", "carol")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleAdmin)
	add(t, svc, "carol", domain.RoleReader)

	_, err := svc.UpdateMemberRole(ctx, club, email("carol"), email("bob"), domain.RoleOwner)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized, "admins cannot grant ownership")

	_, err = svc.UpdateMemberRole(ctx, club, email("alice"), email("bob"), domain.RoleReader)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized, "owner role changes only by transfer")

	m, err := svc.UpdateMemberRole(ctx, club, email("bob"), email("alice"), domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)

	roles := map[string]domain.Role{}
	require.NoError(t, store.ReadClub(ctx, club, func(v graph.ClubView) error {
		for _, m := range v.Memberships() {
			roles[m.UserEmail] = m.Role
		}
		return nil
	}))
	assert.Equal(t, domain.RoleAdmin, roles[email("alice")])
	assert.Equal(t, domain.RoleOwner, roles[email("bob")])
	assert.Equal(t, domain.RoleReader, roles[email("carol")])
	assert.Contains(t, rec.types(email("alice")), domain.NotificationRoleChanged)

	_, err = svc.UpdateMemberRole(ctx, club, email("carol"), email("alice"), domain.RoleOwner)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized, "the former owner is now an admin")
}

func TestUpdateMemberRole_SingleOwnerUnderRandomUpdates(t *testing.T) {
	names := []string{"bob", "carol", "dave", "erin"}
	svc, store, _ := setupTestService(t, names...)
	ctx := context.Background()
	for _, n := range names {
		add(t, svc, n, domain.RoleAdmin)
	}

	everyone := append([]string{"alice"}, names...)
	roles := []domain.Role{domain.RoleReader, domain.RoleAdmin, domain.RoleOwner}
	rng := rand.New(rand.NewPCG(7, 11))

	for range 300 {
		actor := everyone[rng.IntN(len(everyone))]
		target := everyone[rng.IntN(len(everyone))]
		_, _ = svc.UpdateMemberRole(ctx, club, email(target), email(actor), roles[rng.IntN(len(roles))])

		owners := 0
		require.NoError(t, store.ReadClub(ctx, club, func(v graph.ClubView) error {
			for _, m := range v.Memberships() {
				if m.IsActive && m.Role == domain.RoleOwner {
					owners++
				}
			}
			return nil
		}))
		require.Equal(t, 1, owners)
	}
}

func TestRemoveMember_CurrentPickerAdvancesAtomically(t *testing.T) {
	svc, store, rec := setupTestService(t, "bob", "carol")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleAdmin)
	add(t, svc, "carol", domain.RoleReader)
	require.Equal(t, []string{email("alice"), email("bob"), email("carol")}, ringEmails(t, store))

	advance(t, store)
	require.Equal(t, email("bob"), ringEmails(t, store)[0])

	require.NoError(t, svc.RemoveMember(ctx, club, email("bob"), email("alice")))

	assert.Equal(t, []string{email("carol"), email("alice")}, ringEmails(t, store))
	assert.Contains(t, rec.types(email("carol")), domain.NotificationTurnStarted)

	role, err := svc.FindRole(ctx, club, email("bob"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)
}

func TestRemoveMember_Rules(t *testing.T) {
	svc, store, _ := setupTestService(t, "bob", "carol", "dave")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleAdmin)
	add(t, svc, "carol", domain.RoleReader)
	add(t, svc, "dave", domain.RoleReader)

	assert.ErrorIs(t, svc.RemoveMember(ctx, club, email("alice"), email("alice")), domainerrors.ErrUnauthorized,
		"owner cannot leave without transferring")
	assert.ErrorIs(t, svc.RemoveMember(ctx, club, email("alice"), email("bob")), domainerrors.ErrUnauthorized,
		"admins cannot remove the owner")
	assert.ErrorIs(t, svc.RemoveMember(ctx, club, email("dave"), email("carol")), domainerrors.ErrUnauthorized,
		"readers cannot remove others")
	assert.ErrorIs(t, svc.RemoveMember(ctx, club, email("zed"), email("alice")), domainerrors.ErrMemberNotFound)

	require.NoError(t, svc.RemoveMember(ctx, club, email("carol"), email("carol")), "members may leave")
	require.NoError(t, svc.RemoveMember(ctx, club, email("dave"), email("bob")))
	assert.ErrorIs(t, svc.RemoveMember(ctx, club, email("dave"), email("bob")), domainerrors.ErrMemberNotFound)

	assert.Equal(t, []string{email("alice"), email("bob")}, ringEmails(t, store))
}

func TestRemoveMember_ClosesTheirOpenPick(t *testing.T) {
	svc, store, _ := setupTestService(t, "bob")
	ctx := context.Background()
	bob := add(t, svc, "bob", domain.RoleReader)
	advance(t, store)

	require.NoError(t, store.WriteClub(ctx, club, func(tx graph.ClubTx) error {
		return tx.InsertPick(ctx, &domain.Pick{
			ID: "p1", ClubSlug: club, MembershipID: bob.ID, PickerEmail: bob.UserEmail,
			Book: domain.Book{ExternalID: "ol:1", Title: "Dune"}, PickedOn: time.Now(), IsActive: true,
		})
	}))

	require.NoError(t, svc.RemoveMember(ctx, club, email("bob"), email("bob")))

	require.NoError(t, store.ReadClub(ctx, club, func(v graph.ClubView) error {
		assert.Nil(t, v.OpenPick())
		assert.Equal(t, domain.StateReady, graph.State(v))
		return nil
	}))
}

func TestReinstateMember(t *testing.T) {
	svc, store, rec := setupTestService(t, "bob", "carol")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleAdmin)
	add(t, svc, "carol", domain.RoleReader)
	require.NoError(t, svc.RemoveMember(ctx, club, email("bob"), email("alice")))

	_, err := svc.ReinstateMember(ctx, club, email("carol"), email("alice"))
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyMember)
	_, err = svc.ReinstateMember(ctx, club, email("bob"), email("carol"))
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	advance(t, store)
	m, err := svc.ReinstateMember(ctx, club, email("bob"), email("alice"))
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.Nil(t, m.Departed)
	assert.Equal(t, domain.RoleAdmin, m.Role)

	// Back of the current round, not the old position.
	assert.Equal(t, []string{email("carol"), email("alice"), email("bob")}, ringEmails(t, store))
	assert.Contains(t, rec.types(email("bob")), domain.NotificationMemberReinstated)
}

func TestListMembers_Visibility(t *testing.T) {
	svc, store, _ := setupTestService(t, "bob", "carol")
	ctx := context.Background()
	add(t, svc, "bob", domain.RoleReader)
	add(t, svc, "carol", domain.RoleReader)
	require.NoError(t, svc.RemoveMember(ctx, club, email("carol"), email("carol")))

	members, err := svc.ListMembers(ctx, club, "", false)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = svc.ListMembers(ctx, club, email("bob"), true)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	members, err = svc.ListMembers(ctx, club, email("alice"), true)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	require.NoError(t, store.WriteClub(ctx, club, func(tx graph.ClubTx) error {
		c := tx.Club()
		c.Publicity = domain.PublicityPrivate
		return tx.SaveClub(ctx, c)
	}))
	_, err = svc.ListMembers(ctx, club, email("carol"), false)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

// TestRingIntegrity_RandomMembershipChurn drives random add, remove and
// reinstate calls and checks the ring after each one.
func TestRingIntegrity_RandomMembershipChurn(t *testing.T) {
	pool := []string{"bob", "carol", "dave", "erin", "frank", "grace"}
	svc, store, _ := setupTestService(t, pool...)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(42, 1))

	for range 400 {
		name := pool[rng.IntN(len(pool))]
		switch rng.IntN(4) {
		case 0:
			_, _ = svc.AddMember(ctx, club, email(name), email("alice"), &AddMemberRequest{})
		case 1:
			_ = svc.RemoveMember(ctx, club, email(name), email("alice"))
		case 2:
			_, _ = svc.ReinstateMember(ctx, club, email(name), email("alice"))
		case 3:
			advance(t, store)
		}

		order := ringEmails(t, store)
		seen := map[string]bool{}
		for _, e := range order {
			require.False(t, seen[e], "member visited twice")
			seen[e] = true
		}
		members, err := svc.ListMembers(ctx, club, email("alice"), false)
		require.NoError(t, err)
		require.Len(t, order, len(members))
	}
}

type opKey struct{}

// orderedStore records, under the club lock, the label of every WriteClub
// callback that succeeded. Since the callback runs inside the transaction the
// log is the commit order.
type orderedStore struct {
	graph.Store
	mu  sync.Mutex
	log []string
}

func (s *orderedStore) WriteClub(ctx context.Context, slug string, fn func(graph.ClubTx) error) error {
	return s.Store.WriteClub(ctx, slug, func(tx graph.ClubTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if label, ok := ctx.Value(opKey{}).(string); ok {
			s.mu.Lock()
			s.log = append(s.log, label)
			s.mu.Unlock()
		}
		return nil
	})
}

// TestAuthorizationRace revokes bob's admin rights while bob is removing one
// member and promoting another. Each of bob's operations must either commit
// before the revocation or fail as unauthorized.
func TestAuthorizationRace(t *testing.T) {
	for trial := range 50 {
		base, store, _ := setupTestService(t, "bob", "carol", "dave")
		add(t, base, "bob", domain.RoleAdmin)
		add(t, base, "carol", domain.RoleReader)
		add(t, base, "dave", domain.RoleReader)

		ordered := &orderedStore{Store: store}
		svc := NewService(ordered, &recorder{}, zap.NewNop())

		var (
			wg                    sync.WaitGroup
			removeErr, promoteErr error
		)
		label := func(l string) context.Context { return context.WithValue(context.Background(), opKey{}, l) }

		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateMemberRole(label("revoke"), club, email("bob"), email("alice"), domain.RoleReader)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			removeErr = svc.RemoveMember(label("remove"), club, email("carol"), email("bob"))
		}()
		go func() {
			defer wg.Done()
			_, promoteErr = svc.UpdateMemberRole(label("promote"), club, email("dave"), email("bob"), domain.RoleAdmin)
		}()
		wg.Wait()

		position := map[string]int{}
		for i, l := range ordered.log {
			position[l] = i
		}
		require.Contains(t, position, "revoke", "trial %d", trial)

		for op, err := range map[string]error{"remove": removeErr, "promote": promoteErr} {
			if err == nil {
				require.Contains(t, position, op)
				assert.Less(t, position[op], position["revoke"], "trial %d: %s committed after bob lost admin", trial, op)
			} else {
				assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
				assert.NotContains(t, position, op)
			}
		}
	}
}
