// Package postgres is the relational graph store. The rotation ring lives in
// memberships.next_membership_id and clubs.current_picker_id; every club
// transaction starts by locking the club row, which serializes writers per
// club while leaving other clubs untouched.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres adapter.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ graph.Store = (*Store)(nil)

// New wraps an open pool. The schema must already be applied.
func New(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log.Named("postgres")}
}

// Close implements graph.Store.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// CreateUser implements graph.Users.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (email, preferred_name, joined, is_active, departed)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, u.Email, u.PreferredName, u.Joined, u.IsActive, u.Departed)
	return storeErr(err, "create user")
}

// GetUser implements graph.Users.
func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT email, preferred_name, joined, is_active, departed
		FROM users
		WHERE email = $1
	`
	u := &domain.User{}
	err := s.db.QueryRowContext(ctx, query, email).Scan(&u.Email, &u.PreferredName, &u.Joined, &u.IsActive, &u.Departed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get user")
	}
	return u, nil
}

// ListUsers implements graph.Users.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count users")
	}

	query := `
		SELECT email, preferred_name, joined, is_active, departed
		FROM users
		ORDER BY joined, email
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list users")
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(&u.Email, &u.PreferredName, &u.Joined, &u.IsActive, &u.Departed); err != nil {
			return nil, 0, storeErr(err, "scan user")
		}
		users = append(users, u)
	}
	return users, total, storeErr(rows.Err(), "list users")
}

// UpdateUser implements graph.Users.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users
		SET preferred_name = $2, is_active = $3, departed = $4
		WHERE email = $1
	`
	res, err := s.db.ExecContext(ctx, query, u.Email, u.PreferredName, u.IsActive, u.Departed)
	if err != nil {
		return storeErr(err, "update user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}

// CountActiveMemberships implements graph.Users.
func (s *Store) CountActiveMemberships(ctx context.Context, email string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM memberships m
		JOIN clubs c ON c.slug = m.club_slug
		WHERE m.user_email = $1 AND m.is_active AND c.is_active
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, email).Scan(&n); err != nil {
		return 0, storeErr(err, "count memberships")
	}
	return n, nil
}

// CreateClub implements graph.Clubs.
func (s *Store) CreateClub(ctx context.Context, c *domain.Club, owner *domain.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "begin create club")
	}
	defer tx.Rollback()

	clubQuery := `
		INSERT INTO clubs (slug, name, description, image, publicity, is_active, created, current_picker_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, clubQuery,
		c.Slug, c.Name, c.Description, c.Image, c.Publicity, c.IsActive, c.Created, owner.ID,
	); err != nil {
		return storeErr(err, "create club")
	}

	memberQuery := `
		INSERT INTO memberships (id, club_slug, user_email, role, joined, is_active, next_membership_id)
		VALUES ($1, $2, $3, $4, $5, TRUE, $1)
	`
	if _, err := tx.ExecContext(ctx, memberQuery,
		owner.ID, c.Slug, owner.UserEmail, owner.Role, owner.Joined,
	); err != nil {
		if isForeignKeyViolation(err) {
			return domainerrors.ErrUserNotFound
		}
		return storeErr(err, "create owner membership")
	}

	return storeErr(tx.Commit(), "commit create club")
}

// ClubExists implements graph.Clubs.
func (s *Store) ClubExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clubs WHERE slug = $1)`, slug).Scan(&exists)
	return exists, storeErr(err, "club exists")
}

// ListClubs implements graph.Clubs.
func (s *Store) ListClubs(ctx context.Context, viewerEmail string, limit, offset int) ([]*domain.Club, int, error) {
	visible := `
		FROM clubs c
		WHERE c.is_active AND (
			c.publicity = 'PUBLIC' OR EXISTS (
				SELECT 1 FROM memberships m
				WHERE m.club_slug = c.slug AND m.user_email = $1 AND m.is_active
			)
		)
	`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+visible, viewerEmail).Scan(&total); err != nil {
		return nil, 0, storeErr(err, "count clubs")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+clubColumns+visible+`
		ORDER BY c.seq DESC
		LIMIT $2 OFFSET $3`, viewerEmail, limit, offset)
	if err != nil {
		return nil, 0, storeErr(err, "list clubs")
	}
	defer rows.Close()

	clubs := []*domain.Club{}
	for rows.Next() {
		c, _, err := scanClub(rows)
		if err != nil {
			return nil, 0, storeErr(err, "scan club")
		}
		clubs = append(clubs, c)
	}
	return clubs, total, storeErr(rows.Err(), "list clubs")
}

// ReadClub implements graph.Clubs. The snapshot is a REPEATABLE READ, read
// only transaction, so every view method sees the same state.
func (s *Store) ReadClub(ctx context.Context, slug string, fn func(graph.ClubView) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return storeErr(err, "begin read")
	}
	defer tx.Rollback()

	ct, err := load(ctx, tx, slug, false)
	if err != nil {
		return err
	}
	if err := fn(ct); err != nil {
		return err
	}
	return storeErr(tx.Commit(), "commit read")
}

// WriteClub implements graph.Clubs.
func (s *Store) WriteClub(ctx context.Context, slug string, fn func(graph.ClubTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "begin write")
	}
	defer tx.Rollback()

	ct, err := load(ctx, tx, slug, true)
	if err != nil {
		return err
	}
	if err := fn(ct); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		s.log.Warn("commit failed", zap.String("club", slug), zap.Error(err))
		return storeErr(err, "commit write")
	}
	return nil
}
