package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/ring"
)

const clubColumns = `c.slug, c.name, c.description, c.image, c.publicity, c.is_active, c.created, c.disbanded, c.current_picker_id `

const membershipQuery = `
	SELECT m.id, m.club_slug, m.user_email, u.preferred_name, m.role, m.joined, m.departed, m.is_active, m.next_membership_id
	FROM memberships m
	JOIN users u ON u.email = m.user_email
	WHERE m.club_slug = $1
	ORDER BY m.joined, m.seq
`

const pickSelect = `
	SELECT p.id, p.club_slug, p.membership_id, m.user_email,
	       b.external_id, b.title, b.authors, b.cover_url,
	       p.picked_on, p.completed_on, p.is_active
	FROM picks p
	JOIN memberships m ON m.id = p.membership_id
	JOIN books b ON b.external_id = p.book_external_id
`

const discussionSelect = `
	SELECT d.id, d.club_slug, d.membership_id, m.user_email, d.title, d.content, d.created, d.is_active
	FROM discussions d
	JOIN memberships m ON m.id = d.membership_id
`

const replySelect = `
	SELECT r.id, r.club_slug, r.discussion_id, r.parent_id, r.membership_id, m.user_email,
	       r.content, r.depth, r.created, r.is_active
	FROM replies r
	JOIN memberships m ON m.id = r.membership_id
`

type scanner interface {
	Scan(dest ...any) error
}

// clubTx caches the club row, its memberships, the ring and the open pick as
// loaded at the start of the transaction, and keeps the cache in step with
// every write it issues.
type clubTx struct {
	q           querier
	slug        string
	club        *domain.Club
	memberships []*domain.Membership
	loaded      *ring.Ring
	openPick    *domain.Pick
}

var _ graph.ClubTx = (*clubTx)(nil)

// load reads one active club. With lock set the club row is locked FOR
// UPDATE first, so concurrent writers to the same club queue behind it.
func load(ctx context.Context, q querier, slug string, lock bool) (*clubTx, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs c WHERE c.slug = $1 AND c.is_active`
	if lock {
		query += ` FOR UPDATE`
	}
	c, current, err := scanClub(q.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrClubNotFound
	}
	if err != nil {
		return nil, storeErr(err, "load club")
	}

	tx := &clubTx{q: q, slug: slug, club: c}

	rows, err := q.QueryContext(ctx, membershipQuery, slug)
	if err != nil {
		return nil, storeErr(err, "load memberships")
	}
	defer rows.Close()

	next := map[string]string{}
	for rows.Next() {
		m := &domain.Membership{}
		var successor sql.NullString
		if err := rows.Scan(&m.ID, &m.ClubSlug, &m.UserEmail, &m.UserName, &m.Role, &m.Joined, &m.Departed, &m.IsActive, &successor); err != nil {
			return nil, storeErr(err, "scan membership")
		}
		if m.IsActive && successor.Valid {
			next[m.ID] = successor.String
		}
		tx.memberships = append(tx.memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "load memberships")
	}
	tx.loaded = ring.New(next, current.String)

	p, err := scanPick(q.QueryRowContext(ctx, pickSelect+` WHERE p.club_slug = $1 AND p.is_active`, slug))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, storeErr(err, "load open pick")
	default:
		tx.openPick = p
	}

	return tx, nil
}

func scanClub(row scanner) (*domain.Club, sql.NullString, error) {
	c := &domain.Club{}
	var current sql.NullString
	err := row.Scan(&c.Slug, &c.Name, &c.Description, &c.Image, &c.Publicity, &c.IsActive, &c.Created, &c.Disbanded, &current)
	return c, current, err
}

func scanPick(row scanner) (*domain.Pick, error) {
	p := &domain.Pick{}
	err := row.Scan(&p.ID, &p.ClubSlug, &p.MembershipID, &p.PickerEmail,
		&p.Book.ExternalID, &p.Book.Title, pq.Array(&p.Book.Authors), &p.Book.CoverURL,
		&p.PickedOn, &p.CompletedOn, &p.IsActive)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanDiscussion(row scanner) (*domain.Discussion, error) {
	d := &domain.Discussion{}
	err := row.Scan(&d.ID, &d.ClubSlug, &d.MembershipID, &d.AuthorEmail, &d.Title, &d.Content, &d.Created, &d.IsActive)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanReply(row scanner) (*domain.Reply, error) {
	r := &domain.Reply{}
	err := row.Scan(&r.ID, &r.ClubSlug, &r.DiscussionID, &r.ParentID, &r.MembershipID, &r.AuthorEmail,
		&r.Content, &r.Depth, &r.Created, &r.IsActive)
	if err != nil {
		return nil, err
	}
	return r, nil
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
	var total int
	if err := tx.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM picks WHERE club_slug = $1`, tx.slug).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count picks")
	}

	rows, err := tx.q.QueryContext(ctx, pickSelect+`
		WHERE p.club_slug = $1
		ORDER BY p.seq DESC
		LIMIT $2 OFFSET $3`, tx.slug, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list picks")
	}
	defer rows.Close()

	picks := []*domain.Pick{}
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, 0, storeErr(err, "scan pick")
		}
		picks = append(picks, p)
	}
	return picks, total, storeErr(rows.Err(), "list picks")
}

func (tx *clubTx) Discussions(ctx context.Context, limit, offset int) ([]*domain.Discussion, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM discussions WHERE club_slug = $1 AND is_active`
	if err := tx.q.QueryRowContext(ctx, countQuery, tx.slug).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count discussions")
	}

	rows, err := tx.q.QueryContext(ctx, discussionSelect+`
		WHERE d.club_slug = $1 AND d.is_active
		ORDER BY d.seq DESC
		LIMIT $2 OFFSET $3`, tx.slug, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list discussions")
	}
	defer rows.Close()

	discussions := []*domain.Discussion{}
	for rows.Next() {
		d, err := scanDiscussion(rows)
		if err != nil {
			return nil, 0, storeErr(err, "scan discussion")
		}
		discussions = append(discussions, d)
	}
	return discussions, total, storeErr(rows.Err(), "list discussions")
}

func (tx *clubTx) Discussion(ctx context.Context, id string) (*domain.Discussion, error) {
	d, err := scanDiscussion(tx.q.QueryRowContext(ctx, discussionSelect+`
		WHERE d.id = $1 AND d.club_slug = $2 AND d.is_active`, id, tx.slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get discussion")
	}
	return d, nil
}

func (tx *clubTx) Replies(ctx context.Context, discussionID string) ([]*domain.Reply, error) {
	rows, err := tx.q.QueryContext(ctx, replySelect+`
		WHERE r.discussion_id = $1 AND r.club_slug = $2 AND r.is_active
		ORDER BY r.seq`, discussionID, tx.slug)
	if err != nil {
		return nil, storeErr(err, "list replies")
	}
	defer rows.Close()

	var replies []*domain.Reply
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, storeErr(err, "scan reply")
		}
		replies = append(replies, r)
	}
	return replies, storeErr(rows.Err(), "list replies")
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

	r, err := scanReply(tx.q.QueryRowContext(ctx, replySelect+`
		WHERE r.id = $1 AND r.club_slug = $2 AND r.is_active`, id, tx.slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get reply")
	}
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
	query := `
		UPDATE clubs
		SET name = $2, description = $3, image = $4, publicity = $5, is_active = $6, disbanded = $7
		WHERE slug = $1
	`
	if _, err := tx.q.ExecContext(ctx, query, tx.slug, c.Name, c.Description, c.Image, c.Publicity, c.IsActive, c.Disbanded); err != nil {
		return storeErr(err, "save club")
	}
	cp := *c
	cp.Slug = tx.slug
	tx.club = &cp
	return nil
}

func (tx *clubTx) InsertMembership(ctx context.Context, m *domain.Membership) error {
	var name string
	err := tx.q.QueryRowContext(ctx, `SELECT preferred_name FROM users WHERE email = $1`, m.UserEmail).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.ErrUserNotFound
	}
	if err != nil {
		return storeErr(err, "get member user")
	}

	query := `
		INSERT INTO memberships (id, club_slug, user_email, role, joined, departed, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.q.ExecContext(ctx, query, m.ID, tx.slug, m.UserEmail, m.Role, m.Joined, m.Departed, m.IsActive); err != nil {
		return storeErr(err, "insert membership")
	}

	stored := *m
	stored.ClubSlug = tx.slug
	stored.UserName = name
	tx.memberships = append(tx.memberships, &stored)
	return nil
}

func (tx *clubTx) SaveMembership(ctx context.Context, m *domain.Membership) error {
	query := `
		UPDATE memberships
		SET role = $3, departed = $4, is_active = $5
		WHERE id = $1 AND club_slug = $2
	`
	res, err := tx.q.ExecContext(ctx, query, m.ID, tx.slug, m.Role, m.Departed, m.IsActive)
	if err != nil {
		return storeErr(err, "save membership")
	}
	if n, _ := res.RowsAffected(); n == 0 {
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

// SaveRing applies the edge difference in at most three statements: clear the
// detached successors, set the attached ones from parallel arrays, and move
// the current-picker pointer.
func (tx *clubTx) SaveRing(ctx context.Context, r *ring.Ring) error {
	changes := ring.Diff(tx.loaded, r)
	if changes.Empty() {
		return nil
	}

	if len(changes.Detach) > 0 {
		query := `
			UPDATE memberships
			SET next_membership_id = NULL
			WHERE club_slug = $1 AND id = ANY($2)
		`
		if _, err := tx.q.ExecContext(ctx, query, tx.slug, pq.Array(changes.Detach)); err != nil {
			return storeErr(err, "detach ring edges")
		}
	}

	if len(changes.Attach) > 0 {
		from, to := changes.AttachEdges()
		query := `
			UPDATE memberships m
			SET next_membership_id = e.next_id
			FROM unnest($2::text[], $3::text[]) AS e(id, next_id)
			WHERE m.club_slug = $1 AND m.id = e.id
		`
		if _, err := tx.q.ExecContext(ctx, query, tx.slug, pq.Array(from), pq.Array(to)); err != nil {
			return storeErr(err, "attach ring edges")
		}
	}

	if changes.CurrentChanged {
		query := `UPDATE clubs SET current_picker_id = NULLIF($2, '') WHERE slug = $1`
		if _, err := tx.q.ExecContext(ctx, query, tx.slug, changes.Current); err != nil {
			return storeErr(err, "move current picker")
		}
	}

	tx.loaded = r.Clone()
	return nil
}

func (tx *clubTx) InsertPick(ctx context.Context, p *domain.Pick) error {
	bookQuery := `
		INSERT INTO books (external_id, title, authors, cover_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE
		SET title = EXCLUDED.title, authors = EXCLUDED.authors, cover_url = EXCLUDED.cover_url
	`
	b := p.Book
	if b.Authors == nil {
		b.Authors = []string{}
	}
	if _, err := tx.q.ExecContext(ctx, bookQuery, b.ExternalID, b.Title, pq.Array(b.Authors), b.CoverURL); err != nil {
		return storeErr(err, "materialize book")
	}

	pickQuery := `
		INSERT INTO picks (id, club_slug, membership_id, book_external_id, picked_on, completed_on, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.q.ExecContext(ctx, pickQuery,
		p.ID, tx.slug, p.MembershipID, b.ExternalID, p.PickedOn, p.CompletedOn, p.IsActive,
	); err != nil {
		return storeErr(err, "insert pick")
	}

	if p.IsActive {
		cp := *p
		tx.openPick = &cp
	}
	return nil
}

func (tx *clubTx) SavePick(ctx context.Context, p *domain.Pick) error {
	query := `UPDATE picks SET completed_on = $3, is_active = $4 WHERE id = $1 AND club_slug = $2`
	res, err := tx.q.ExecContext(ctx, query, p.ID, tx.slug, p.CompletedOn, p.IsActive)
	if err != nil {
		return storeErr(err, "save pick")
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	query := `
		INSERT INTO discussions (id, club_slug, membership_id, title, content, created, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.q.ExecContext(ctx, query, d.ID, tx.slug, d.MembershipID, d.Title, d.Content, d.Created, d.IsActive)
	return storeErr(err, "insert discussion")
}

func (tx *clubTx) InsertReply(ctx context.Context, r *domain.Reply) error {
	query := `
		INSERT INTO replies (id, club_slug, discussion_id, parent_id, membership_id, content, depth, created, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.q.ExecContext(ctx, query,
		r.ID, tx.slug, r.DiscussionID, r.ParentID, r.MembershipID, r.Content, r.Depth, r.Created, r.IsActive)
	return storeErr(err, "insert reply")
}

func (tx *clubTx) DeactivateThreadNode(ctx context.Context, id string) error {
	for _, table := range []string{"discussions", "replies"} {
		res, err := tx.q.ExecContext(ctx,
			`UPDATE `+table+` SET is_active = FALSE WHERE id = $1 AND club_slug = $2`, id, tx.slug)
		if err != nil {
			return storeErr(err, "archive "+table)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
	return domainerrors.NotFound("discussion or reply not found")
}
