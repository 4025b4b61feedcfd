package neo4jstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/ring"
)

// runner is satisfied by managed and explicit transactions.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

func collect(ctx context.Context, r runner, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := r.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

const clubReturn = `
	RETURN c.slug AS slug, c.name AS name, c.description AS description, c.image AS image,
	       c.publicity AS publicity, c.is_active AS is_active, c.created AS created,
	       c.disbanded AS disbanded
`

func clubFromRecord(rec *neo4j.Record) *domain.Club {
	return &domain.Club{
		Slug:        getString(rec, "slug"),
		Name:        getString(rec, "name"),
		Description: getString(rec, "description"),
		Image:       getString(rec, "image"),
		Publicity:   domain.Publicity(getString(rec, "publicity")),
		IsActive:    getBool(rec, "is_active"),
		Created:     getTime(rec, "created"),
		Disbanded:   getOptionalTime(rec, "disbanded"),
	}
}

const pickReturn = `
	MATCH (p)-[:OF_BOOK]->(b:Book)
	MATCH (u:User)-[:HAS_MEMBERSHIP]->(m:Membership)-[:PICKED]->(p)
	RETURN p.id AS id, m.id AS membership_id, u.email AS picker_email,
	       b.external_id AS external_id, b.title AS title, b.authors AS authors, b.cover_url AS cover_url,
	       p.picked_on AS picked_on, p.completed_on AS completed_on, p.is_active AS is_active
`

func pickFromRecord(slug string, rec *neo4j.Record) *domain.Pick {
	return &domain.Pick{
		ID:           getString(rec, "id"),
		ClubSlug:     slug,
		MembershipID: getString(rec, "membership_id"),
		PickerEmail:  getString(rec, "picker_email"),
		Book: domain.Book{
			ExternalID: getString(rec, "external_id"),
			Title:      getString(rec, "title"),
			Authors:    getStringSlice(rec, "authors"),
			CoverURL:   getString(rec, "cover_url"),
		},
		PickedOn:    getTime(rec, "picked_on"),
		CompletedOn: getOptionalTime(rec, "completed_on"),
		IsActive:    getBool(rec, "is_active"),
	}
}

const discussionReturn = `
	MATCH (u:User)-[:HAS_MEMBERSHIP]->(m:Membership)-[:STARTED]->(d)
	RETURN d.id AS id, m.id AS membership_id, u.email AS author_email, d.title AS title,
	       d.content AS content, d.created AS created, d.is_active AS is_active
`

func discussionFromRecord(slug string, rec *neo4j.Record) *domain.Discussion {
	return &domain.Discussion{
		ID:           getString(rec, "id"),
		ClubSlug:     slug,
		MembershipID: getString(rec, "membership_id"),
		AuthorEmail:  getString(rec, "author_email"),
		Title:        getString(rec, "title"),
		Content:      getString(rec, "content"),
		Created:      getTime(rec, "created"),
		IsActive:     getBool(rec, "is_active"),
	}
}

const replyReturn = `
	MATCH (u:User)-[:HAS_MEMBERSHIP]->(m:Membership)-[:WROTE]->(r)
	MATCH (parent)-[:HAS_REPLY]->(r)
	RETURN r.id AS id, r.discussion_id AS discussion_id, parent.id AS parent_id, m.id AS membership_id,
	       u.email AS author_email, r.content AS content, r.depth AS depth, r.created AS created,
	       r.is_active AS is_active
`

func replyFromRecord(slug string, rec *neo4j.Record) *domain.Reply {
	return &domain.Reply{
		ID:           getString(rec, "id"),
		ClubSlug:     slug,
		DiscussionID: getString(rec, "discussion_id"),
		ParentID:     getString(rec, "parent_id"),
		MembershipID: getString(rec, "membership_id"),
		AuthorEmail:  getString(rec, "author_email"),
		Content:      getString(rec, "content"),
		Depth:        getInt(rec, "depth"),
		Created:      getTime(rec, "created"),
		IsActive:     getBool(rec, "is_active"),
	}
}

// clubTx caches the club node, memberships, ring and open pick loaded at the
// start of the transaction and keeps them in step with its own writes.
type clubTx struct {
	r           runner
	slug        string
	club        *domain.Club
	memberships []*domain.Membership
	loaded      *ring.Ring
	openPick    *domain.Pick
}

var _ graph.ClubTx = (*clubTx)(nil)

func load(ctx context.Context, r runner, slug string, lock bool) (*clubTx, error) {
	match := `MATCH (c:BookClub {slug: $slug, is_active: true})`
	if lock {
		match += ` SET c.version = coalesce(c.version, 0) + 1`
	}
	records, err := collect(ctx, r, match+clubReturn+`,
		       [(c)-[:CURRENT_PICKER]->(cp:Membership) | cp.id][0] AS current_picker`,
		map[string]any{"slug": slug})
	if err != nil {
		return nil, storeErr(err, "load club")
	}
	if len(records) == 0 {
		return nil, domainerrors.ErrClubNotFound
	}
	tx := &clubTx{r: r, slug: slug, club: clubFromRecord(records[0])}
	current := getString(records[0], "current_picker")

	records, err = collect(ctx, r, `
		MATCH (u:User)-[:HAS_MEMBERSHIP]->(m:Membership)-[:MEMBER_OF]->(:BookClub {slug: $slug})
		OPTIONAL MATCH (m)-[:PICKS_BEFORE]->(n:Membership)
		RETURN m.id AS id, u.email AS email, u.preferred_name AS name, m.role AS role,
		       m.joined AS joined, m.departed AS departed, m.is_active AS is_active, n.id AS next
		ORDER BY m.joined, m.id
	`, map[string]any{"slug": slug})
	if err != nil {
		return nil, storeErr(err, "load memberships")
	}

	next := map[string]string{}
	for _, rec := range records {
		m := &domain.Membership{
			ID:        getString(rec, "id"),
			ClubSlug:  slug,
			UserEmail: getString(rec, "email"),
			UserName:  getString(rec, "name"),
			Role:      domain.Role(getString(rec, "role")),
			Joined:    getTime(rec, "joined"),
			Departed:  getOptionalTime(rec, "departed"),
			IsActive:  getBool(rec, "is_active"),
		}
		if n := getString(rec, "next"); m.IsActive && n != "" {
			next[m.ID] = n
		}
		tx.memberships = append(tx.memberships, m)
	}
	tx.loaded = ring.New(next, current)

	records, err = collect(ctx, r, `
		MATCH (p:Pick {is_active: true})-[:IN_CLUB]->(:BookClub {slug: $slug})
	`+pickReturn, map[string]any{"slug": slug})
	if err != nil {
		return nil, storeErr(err, "load open pick")
	}
	if len(records) > 0 {
		tx.openPick = pickFromRecord(slug, records[0])
	}

	return tx, nil
}

func (tx *clubTx) Club() *domain.Club {
	c := *tx.club
	return &c
}

func (tx *clubTx) Memberships() []*domain.Membership {
	out := make([]*domain.Membership, len(tx.memberships))
	for i, m := range tx.memberships {
		cp := *m
		out[i] = &cp
	}
	return out
}

func (tx *clubTx) Membership(email string) *domain.Membership {
	for _, m := range tx.memberships {
		if m.UserEmail == email {
			cp := *m
			return &cp
		}
	}
	return nil
}

func (tx *clubTx) Ring() *ring.Ring { return tx.loaded.Clone() }

func (tx *clubTx) OpenPick() *domain.Pick {
	if tx.openPick == nil {
		return nil
	}
	p := *tx.openPick
	return &p
}

func (tx *clubTx) Picks(ctx context.Context, limit, offset int) ([]*domain.Pick, int, error) {
	params := map[string]any{"slug": tx.slug, "offset": offset, "limit": limit}

	records, err := collect(ctx, tx.r, `
		MATCH (p:Pick)-[:IN_CLUB]->(:BookClub {slug: $slug})
		RETURN count(p) AS total
	`, params)
	if err != nil {
		return nil, 0, storeErr(err, "count picks")
	}
	total := getInt(records[0], "total")

	records, err = collect(ctx, tx.r, `
		MATCH (p:Pick)-[:IN_CLUB]->(:BookClub {slug: $slug})
	`+pickReturn+`
		ORDER BY picked_on DESC, id
		SKIP $offset LIMIT $limit
	`, params)
	if err != nil {
		return nil, 0, storeErr(err, "list picks")
	}

	picks := make([]*domain.Pick, len(records))
	for i, rec := range records {
		picks[i] = pickFromRecord(tx.slug, rec)
	}
	return picks, total, nil
}

func (tx *clubTx) Discussions(ctx context.Context, limit, offset int) ([]*domain.Discussion, int, error) {
	params := map[string]any{"slug": tx.slug, "offset": offset, "limit": limit}

	records, err := collect(ctx, tx.r, `
		MATCH (d:Discussion {is_active: true})-[:IN_CLUB]->(:BookClub {slug: $slug})
		RETURN count(d) AS total
	`, params)
	if err != nil {
		return nil, 0, storeErr(err, "count discussions")
	}
	total := getInt(records[0], "total")

	records, err = collect(ctx, tx.r, `
		MATCH (d:Discussion {is_active: true})-[:IN_CLUB]->(:BookClub {slug: $slug})
	`+discussionReturn+`
		ORDER BY created DESC, id
		SKIP $offset LIMIT $limit
	`, params)
	if err != nil {
		return nil, 0, storeErr(err, "list discussions")
	}

	discussions := make([]*domain.Discussion, len(records))
	for i, rec := range records {
		discussions[i] = discussionFromRecord(tx.slug, rec)
	}
	return discussions, total, nil
}

func (tx *clubTx) Discussion(ctx context.Context, id string) (*domain.Discussion, error) {
	records, err := collect(ctx, tx.r, `
		MATCH (d:Discussion {id: $id, is_active: true})-[:IN_CLUB]->(:BookClub {slug: $slug})
	`+discussionReturn, map[string]any{"id": id, "slug": tx.slug})
	if err != nil {
		return nil, storeErr(err, "get discussion")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return discussionFromRecord(tx.slug, records[0]), nil
}

func (tx *clubTx) Replies(ctx context.Context, discussionID string) ([]*domain.Reply, error) {
	records, err := collect(ctx, tx.r, `
		MATCH (r:Reply {discussion_id: $discussion_id, club_slug: $slug, is_active: true})
	`+replyReturn+`
		ORDER BY created, id
	`, map[string]any{"discussion_id": discussionID, "slug": tx.slug})
	if err != nil {
		return nil, storeErr(err, "list replies")
	}

	replies := make([]*domain.Reply, len(records))
	for i, rec := range records {
		replies[i] = replyFromRecord(tx.slug, rec)
	}
	return replies, nil
}

func (tx *clubTx) ThreadNode(ctx context.Context, id string) (*domain.ThreadNode, error) {
	d, err := tx.Discussion(ctx, id)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return &domain.ThreadNode{
			ID:           d.ID,
			Kind:         domain.NodeDiscussion,
			DiscussionID: d.ID,
			AuthorEmail:  d.AuthorEmail,
			IsActive:     true,
		}, nil
	}

	records, err := collect(ctx, tx.r, `
		MATCH (r:Reply {id: $id, club_slug: $slug, is_active: true})
	`+replyReturn, map[string]any{"id": id, "slug": tx.slug})
	if err != nil {
		return nil, storeErr(err, "get reply")
	}
	if len(records) == 0 {
		return nil, nil
	}
	r := replyFromRecord(tx.slug, records[0])
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

func (tx *clubTx) SaveClub(ctx context.Context, c *domain.Club) error {
	_, err := collect(ctx, tx.r, `
		MATCH (c:BookClub {slug: $slug})
		SET c.name = $name, c.description = $description, c.image = $image,
		    c.publicity = $publicity, c.is_active = $active, c.disbanded = $disbanded
	`, map[string]any{
		"slug":        tx.slug,
		"name":        c.Name,
		"description": c.Description,
		"image":       c.Image,
		"publicity":   string(c.Publicity),
		"active":      c.IsActive,
		"disbanded":   optTime(c.Disbanded),
	})
	if err != nil {
		return storeErr(err, "save club")
	}
	cp := *c
	cp.Slug = tx.slug
	tx.club = &cp
	return nil
}

func (tx *clubTx) InsertMembership(ctx context.Context, m *domain.Membership) error {
	records, err := collect(ctx, tx.r, `
		MATCH (u:User {email: $email}), (c:BookClub {slug: $slug})
		CREATE (u)-[:HAS_MEMBERSHIP]->(m:Membership {id: $id, club_slug: $slug, user_email: $email, role: $role,
		                                             joined: $joined, departed: $departed, is_active: $active})-[:MEMBER_OF]->(c)
		RETURN u.preferred_name AS name
	`, map[string]any{
		"email":    m.UserEmail,
		"slug":     tx.slug,
		"id":       m.ID,
		"role":     string(m.Role),
		"joined":   m.Joined.UTC(),
		"departed": optTime(m.Departed),
		"active":   m.IsActive,
	})
	if err != nil {
		return storeErr(err, "insert membership")
	}
	if len(records) == 0 {
		return domainerrors.ErrUserNotFound
	}

	stored := *m
	stored.ClubSlug = tx.slug
	stored.UserName = getString(records[0], "name")
	tx.memberships = append(tx.memberships, &stored)
	return nil
}

func (tx *clubTx) SaveMembership(ctx context.Context, m *domain.Membership) error {
	records, err := collect(ctx, tx.r, `
		MATCH (m:Membership {id: $id})-[:MEMBER_OF]->(:BookClub {slug: $slug})
		SET m.role = $role, m.departed = $departed, m.is_active = $active
		RETURN m.id AS id
	`, map[string]any{
		"id":       m.ID,
		"slug":     tx.slug,
		"role":     string(m.Role),
		"departed": optTime(m.Departed),
		"active":   m.IsActive,
	})
	if err != nil {
		return storeErr(err, "save membership")
	}
	if len(records) == 0 {
		return domainerrors.ErrMemberNotFound
	}

	for i, cached := range tx.memberships {
		if cached.ID == m.ID {
			cp := *m
			cp.UserName = cached.UserName
			tx.memberships[i] = &cp
		}
	}
	return nil
}

// SaveRing deletes the PICKS_BEFORE relationships of detached nodes, merges
// the attached ones and repoints CURRENT_PICKER.
func (tx *clubTx) SaveRing(ctx context.Context, r *ring.Ring) error {
	changes := ring.Diff(tx.loaded, r)
	if changes.Empty() {
		return nil
	}

	if len(changes.Detach) > 0 {
		if _, err := collect(ctx, tx.r, `
			MATCH (m:Membership)-[e:PICKS_BEFORE]->()
			WHERE m.id IN $ids
			DELETE e
		`, map[string]any{"ids": changes.Detach}); err != nil {
			return storeErr(err, "detach ring edges")
		}
	}

	if len(changes.Attach) > 0 {
		from, to := changes.AttachEdges()
		edges := make([]map[string]any, len(from))
		for i := range from {
			edges[i] = map[string]any{"from": from[i], "to": to[i]}
		}
		if _, err := collect(ctx, tx.r, `
			UNWIND $edges AS edge
			MATCH (a:Membership {id: edge.from}), (b:Membership {id: edge.to})
			MERGE (a)-[:PICKS_BEFORE]->(b)
		`, map[string]any{"edges": edges}); err != nil {
			return storeErr(err, "attach ring edges")
		}
	}

	if changes.CurrentChanged {
		if _, err := collect(ctx, tx.r, `
			MATCH (c:BookClub {slug: $slug})
			OPTIONAL MATCH (c)-[e:CURRENT_PICKER]->()
			DELETE e
			WITH DISTINCT c
			OPTIONAL MATCH (m:Membership {id: $current})
			FOREACH (_ IN CASE WHEN m IS NULL THEN [] ELSE [1] END | CREATE (c)-[:CURRENT_PICKER]->(m))
		`, map[string]any{"slug": tx.slug, "current": changes.Current}); err != nil {
			return storeErr(err, "move current picker")
		}
	}

	tx.loaded = r.Clone()
	return nil
}

func (tx *clubTx) InsertPick(ctx context.Context, p *domain.Pick) error {
	authors := p.Book.Authors
	if authors == nil {
		authors = []string{}
	}
	_, err := collect(ctx, tx.r, `
		MATCH (m:Membership {id: $membership_id}), (c:BookClub {slug: $slug})
		MERGE (b:Book {external_id: $external_id})
		SET b.title = $title, b.authors = $authors, b.cover_url = $cover_url
		CREATE (m)-[:PICKED]->(p:Pick {id: $id, picked_on: $picked_on, completed_on: $completed_on,
		                               is_active: $active, open_in: CASE WHEN $active THEN $slug END})-[:OF_BOOK]->(b)
		CREATE (p)-[:IN_CLUB]->(c)
	`, map[string]any{
		"membership_id": p.MembershipID,
		"slug":          tx.slug,
		"external_id":   p.Book.ExternalID,
		"title":         p.Book.Title,
		"authors":       authors,
		"cover_url":     p.Book.CoverURL,
		"id":            p.ID,
		"picked_on":     p.PickedOn.UTC(),
		"completed_on":  optTime(p.CompletedOn),
		"active":        p.IsActive,
	})
	if err != nil {
		return storeErr(err, "insert pick")
	}

	if p.IsActive {
		cp := *p
		tx.openPick = &cp
	}
	return nil
}

func (tx *clubTx) SavePick(ctx context.Context, p *domain.Pick) error {
	records, err := collect(ctx, tx.r, `
		MATCH (p:Pick {id: $id})-[:IN_CLUB]->(:BookClub {slug: $slug})
		SET p.completed_on = $completed_on, p.is_active = $active,
		    p.open_in = CASE WHEN $active THEN $slug END
		RETURN p.id AS id
	`, map[string]any{
		"id":           p.ID,
		"slug":         tx.slug,
		"completed_on": optTime(p.CompletedOn),
		"active":       p.IsActive,
	})
	if err != nil {
		return storeErr(err, "save pick")
	}
	if len(records) == 0 {
		return domainerrors.NotFound("pick not found")
	}

	switch {
	case p.IsActive:
		cp := *p
		tx.openPick = &cp
	case tx.openPick != nil && tx.openPick.ID == p.ID:
		tx.openPick = nil
	}
	return nil
}

func (tx *clubTx) InsertDiscussion(ctx context.Context, d *domain.Discussion) error {
	_, err := collect(ctx, tx.r, `
		MATCH (m:Membership {id: $membership_id}), (c:BookClub {slug: $slug})
		CREATE (m)-[:STARTED]->(d:Discussion {id: $id, title: $title, content: $content,
		                                      created: $created, is_active: $active})-[:IN_CLUB]->(c)
	`, map[string]any{
		"membership_id": d.MembershipID,
		"slug":          tx.slug,
		"id":            d.ID,
		"title":         d.Title,
		"content":       d.Content,
		"created":       d.Created.UTC(),
		"active":        d.IsActive,
	})
	return storeErr(err, "insert discussion")
}

func (tx *clubTx) InsertReply(ctx context.Context, r *domain.Reply) error {
	records, err := collect(ctx, tx.r, `
		MATCH (m:Membership {id: $membership_id})
		OPTIONAL MATCH (pd:Discussion {id: $parent_id})
		OPTIONAL MATCH (pr:Reply {id: $parent_id})
		WITH m, coalesce(pd, pr) AS parent
		WHERE parent IS NOT NULL
		CREATE (m)-[:WROTE]->(r:Reply {id: $id, discussion_id: $discussion_id, club_slug: $slug,
		                               content: $content, depth: $depth, created: $created, is_active: $active})
		CREATE (parent)-[:HAS_REPLY]->(r)
		RETURN r.id AS id
	`, map[string]any{
		"membership_id": r.MembershipID,
		"parent_id":     r.ParentID,
		"id":            r.ID,
		"discussion_id": r.DiscussionID,
		"slug":          tx.slug,
		"content":       r.Content,
		"depth":         r.Depth,
		"created":       r.Created.UTC(),
		"active":        r.IsActive,
	})
	if err != nil {
		return storeErr(err, "insert reply")
	}
	if len(records) == 0 {
		return domainerrors.NotFound("discussion or reply not found")
	}
	return nil
}

func (tx *clubTx) DeactivateThreadNode(ctx context.Context, id string) error {
	records, err := collect(ctx, tx.r, `
		OPTIONAL MATCH (d:Discussion {id: $id})-[:IN_CLUB]->(:BookClub {slug: $slug})
		OPTIONAL MATCH (r:Reply {id: $id, club_slug: $slug})
		WITH coalesce(d, r) AS node
		WHERE node IS NOT NULL
		SET node.is_active = false
		RETURN node.id AS id
	`, map[string]any{"id": id, "slug": tx.slug})
	if err != nil {
		return storeErr(err, "archive thread node")
	}
	if len(records) == 0 {
		return domainerrors.NotFound("discussion or reply not found")
	}
	return nil
}
