package memory

import (
	"context"
	"sort"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/ring"
)

// clubTx reads from and writes to one arena. For ReadClub the arena is the
// committed one and only view methods are reachable.
type clubTx struct {
	st     *state
	slug   string
	loaded *ring.Ring
}

var _ graph.ClubTx = (*clubTx)(nil)

func open(st *state, slug string) (*clubTx, error) {
	c, ok := st.clubs[slug]
	if !ok || !c.IsActive {
		return nil, domainerrors.ErrClubNotFound
	}
	tx := &clubTx{st: st, slug: slug}
	tx.loaded = tx.loadRing()
	return tx, nil
}

func (tx *clubTx) loadRing() *ring.Ring {
	next := map[string]string{}
	for id, m := range tx.st.memberships {
		if m.ClubSlug != tx.slug || !m.IsActive {
			continue
		}
		if n, ok := tx.st.next[id]; ok {
			next[id] = n
		}
	}
	return ring.New(next, tx.st.currentPicker[tx.slug])
}

func (tx *clubTx) Club() *domain.Club {
	c := tx.st.clubs[tx.slug]
	return &c
}

func (tx *clubTx) Memberships() []*domain.Membership {
	var out []*domain.Membership
	for _, m := range tx.st.memberships {
		if m.ClubSlug == tx.slug {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Joined.Equal(out[j].Joined) {
			return out[i].Joined.Before(out[j].Joined)
		}
		return tx.st.seq[out[i].ID] < tx.st.seq[out[j].ID]
	})
	return out
}

func (tx *clubTx) Membership(email string) *domain.Membership {
	for _, m := range tx.st.memberships {
		if m.ClubSlug == tx.slug && m.UserEmail == email {
			return &m
		}
	}
	return nil
}

func (tx *clubTx) Ring() *ring.Ring { return tx.loaded.Clone() }

func (tx *clubTx) OpenPick() *domain.Pick {
	for _, p := range tx.st.picks {
		if p.ClubSlug == tx.slug && p.IsActive {
			return &p
		}
	}
	return nil
}

func (tx *clubTx) Picks(_ context.Context, limit, offset int) ([]*domain.Pick, int, error) {
	var out []*domain.Pick
	for _, p := range tx.st.picks {
		if p.ClubSlug == tx.slug {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return tx.st.seq[out[i].ID] > tx.st.seq[out[j].ID]
	})
	return paginate(out, limit, offset), len(out), nil
}

func (tx *clubTx) Discussions(_ context.Context, limit, offset int) ([]*domain.Discussion, int, error) {
	var out []*domain.Discussion
	for _, d := range tx.st.discussions {
		if d.ClubSlug == tx.slug && d.IsActive {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return tx.st.seq[out[i].ID] > tx.st.seq[out[j].ID]
	})
	return paginate(out, limit, offset), len(out), nil
}

func (tx *clubTx) Discussion(_ context.Context, id string) (*domain.Discussion, error) {
	d, ok := tx.st.discussions[id]
	if !ok || d.ClubSlug != tx.slug || !d.IsActive {
		return nil, nil
	}
	return &d, nil
}

func (tx *clubTx) Replies(_ context.Context, discussionID string) ([]*domain.Reply, error) {
	var out []*domain.Reply
	for _, r := range tx.st.replies {
		if r.DiscussionID == discussionID && r.ClubSlug == tx.slug && r.IsActive {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return tx.st.seq[out[i].ID] < tx.st.seq[out[j].ID]
	})
	return out, nil
}

func (tx *clubTx) ThreadNode(_ context.Context, id string) (*domain.ThreadNode, error) {
	if d, ok := tx.st.discussions[id]; ok && d.ClubSlug == tx.slug && d.IsActive {
		return &domain.ThreadNode{
			ID:           d.ID,
			Kind:         domain.NodeDiscussion,
			DiscussionID: d.ID,
			AuthorEmail:  d.AuthorEmail,
			IsActive:     true,
		}, nil
	}
	if r, ok := tx.st.replies[id]; ok && r.ClubSlug == tx.slug && r.IsActive {
		return &domain.ThreadNode{
			ID:           r.ID,
			Kind:         domain.NodeReply,
			DiscussionID: r.DiscussionID,
			ParentID:     r.ParentID,
			AuthorEmail:  r.AuthorEmail,
			Depth:        r.Depth,
			IsActive:     true,
		}, nil
	}
	return nil, nil
}

func (tx *clubTx) SaveClub(_ context.Context, c *domain.Club) error {
	tx.st.clubs[c.Slug] = *c
	return nil
}

func (tx *clubTx) InsertMembership(_ context.Context, m *domain.Membership) error {
	u, ok := tx.st.users[m.UserEmail]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	stored := *m
	stored.UserName = u.PreferredName
	tx.st.memberships[m.ID] = stored
	tx.st.track(m.ID)
	return nil
}

func (tx *clubTx) SaveMembership(_ context.Context, m *domain.Membership) error {
	if _, ok := tx.st.memberships[m.ID]; !ok {
		return domainerrors.ErrMemberNotFound
	}
	tx.st.memberships[m.ID] = *m
	return nil
}

func (tx *clubTx) SaveRing(_ context.Context, r *ring.Ring) error {
	changes := ring.Diff(tx.loaded, r)
	for _, id := range changes.Detach {
		delete(tx.st.next, id)
	}
	for from, to := range changes.Attach {
		tx.st.next[from] = to
	}
	if changes.Current == "" {
		delete(tx.st.currentPicker, tx.slug)
	} else {
		tx.st.currentPicker[tx.slug] = changes.Current
	}
	tx.loaded = r.Clone()
	return nil
}

func (tx *clubTx) InsertPick(_ context.Context, p *domain.Pick) error {
	tx.st.picks[p.ID] = *p
	tx.st.track(p.ID)
	return nil
}

func (tx *clubTx) SavePick(_ context.Context, p *domain.Pick) error {
	tx.st.picks[p.ID] = *p
	return nil
}

func (tx *clubTx) InsertDiscussion(_ context.Context, d *domain.Discussion) error {
	tx.st.discussions[d.ID] = *d
	tx.st.track(d.ID)
	return nil
}

func (tx *clubTx) InsertReply(_ context.Context, r *domain.Reply) error {
	tx.st.replies[r.ID] = *r
	tx.st.track(r.ID)
	return nil
}

func (tx *clubTx) DeactivateThreadNode(_ context.Context, id string) error {
	if d, ok := tx.st.discussions[id]; ok && d.ClubSlug == tx.slug {
		d.IsActive = false
		tx.st.discussions[id] = d
		return nil
	}
	if r, ok := tx.st.replies[id]; ok && r.ClubSlug == tx.slug {
		r.IsActive = false
		tx.st.replies[id] = r
		return nil
	}
	return domainerrors.NotFound("discussion or reply not found")
}
