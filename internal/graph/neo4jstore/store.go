// Package neo4jstore keeps the club graph in Neo4j. Users, clubs and
// memberships are nodes; the pick-rotation ring is the PICKS_BEFORE
// relationship between memberships and the club points at its current
// picker through CURRENT_PICKER.
//
// A club write transaction starts by bumping the club node's version, which
// takes the node's write lock and serializes writers to that club.
package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// Options holds connection settings.
type Options struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store is the Neo4j adapter.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	log      *zap.Logger
}

var _ graph.Store = (*Store)(nil)

var schema = []string{
	`CREATE CONSTRAINT user_email IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE`,
	`CREATE CONSTRAINT club_slug IF NOT EXISTS FOR (c:BookClub) REQUIRE c.slug IS UNIQUE`,
	`CREATE CONSTRAINT membership_id IF NOT EXISTS FOR (m:Membership) REQUIRE m.id IS UNIQUE`,
	`CREATE CONSTRAINT membership_club_user IF NOT EXISTS FOR (m:Membership) REQUIRE (m.club_slug, m.user_email) IS UNIQUE`,
	`CREATE CONSTRAINT book_external_id IF NOT EXISTS FOR (b:Book) REQUIRE b.external_id IS UNIQUE`,
	`CREATE CONSTRAINT pick_id IF NOT EXISTS FOR (p:Pick) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT pick_one_open_per_club IF NOT EXISTS FOR (p:Pick) REQUIRE p.open_in IS UNIQUE`,
	`CREATE CONSTRAINT discussion_id IF NOT EXISTS FOR (d:Discussion) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT reply_id IF NOT EXISTS FOR (r:Reply) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT notification_id IF NOT EXISTS FOR (n:Notification) REQUIRE n.id IS UNIQUE`,
	`CREATE INDEX notification_recipient IF NOT EXISTS FOR (n:Notification) ON (n.recipient_email)`,
}

// Open connects to Neo4j, verifies connectivity and ensures the constraints
// exist.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	s := &Store{driver: driver, database: opts.Database, log: log.Named("neo4j")}
	for _, stmt := range schema {
		if _, err := s.query(ctx, stmt, nil, true); err != nil {
			driver.Close(ctx)
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return s, nil
}

// Close implements graph.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// query runs a single auto-committed statement and returns its records.
func (s *Store) query(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	routing := neo4j.ExecuteQueryWithReadersRouting()
	if write {
		routing = neo4j.ExecuteQueryWithWritersRouting()
	}
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database), routing)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

const userReturn = `
	RETURN u.email AS email, u.preferred_name AS preferred_name, u.joined AS joined,
	       u.is_active AS is_active, u.departed AS departed
`

func userFromRecord(rec *neo4j.Record) *domain.User {
	return &domain.User{
		Email:         getString(rec, "email"),
		PreferredName: getString(rec, "preferred_name"),
		Joined:        getTime(rec, "joined"),
		IsActive:      getBool(rec, "is_active"),
		Departed:      getOptionalTime(rec, "departed"),
	}
}

// CreateUser implements graph.Users.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	cypher := `
		CREATE (u:User {email: $email, preferred_name: $name, joined: $joined,
		                is_active: $active, departed: $departed})
	`
	_, err := s.query(ctx, cypher, map[string]any{
		"email":    u.Email,
		"name":     u.PreferredName,
		"joined":   u.Joined.UTC(),
		"active":   u.IsActive,
		"departed": optTime(u.Departed),
	}, true)
	return storeErr(err, "create user")
}

// GetUser implements graph.Users.
func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	records, err := s.query(ctx, `MATCH (u:User {email: $email})`+userReturn, map[string]any{"email": email}, false)
	if err != nil {
		return nil, storeErr(err, "get user")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return userFromRecord(records[0]), nil
}

// ListUsers implements graph.Users.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	records, err := s.query(ctx, `MATCH (u:User) RETURN count(u) AS total`, nil, false)
	if err != nil {
		return nil, 0, storeErr(err, "count users")
	}
	total := getInt(records[0], "total")

	records, err = s.query(ctx, `
		MATCH (u:User)
		WITH u ORDER BY u.joined, u.email
		SKIP $offset LIMIT $limit
	`+userReturn, map[string]any{"offset": offset, "limit": limit}, false)
	if err != nil {
		return nil, 0, storeErr(err, "list users")
	}

	users := make([]*domain.User, len(records))
	for i, rec := range records {
		users[i] = userFromRecord(rec)
	}
	return users, total, nil
}

// UpdateUser implements graph.Users.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	records, err := s.query(ctx, `
		MATCH (u:User {email: $email})
		SET u.preferred_name = $name, u.is_active = $active, u.departed = $departed
		RETURN u.email AS email
	`, map[string]any{
		"email":    u.Email,
		"name":     u.PreferredName,
		"active":   u.IsActive,
		"departed": optTime(u.Departed),
	}, true)
	if err != nil {
		return storeErr(err, "update user")
	}
	if len(records) == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}

// CountActiveMemberships implements graph.Users.
func (s *Store) CountActiveMemberships(ctx context.Context, email string) (int, error) {
	records, err := s.query(ctx, `
		MATCH (:User {email: $email})-[:HAS_MEMBERSHIP]->(m:Membership {is_active: true})-[:MEMBER_OF]->(c:BookClub {is_active: true})
		RETURN count(m) AS n
	`, map[string]any{"email": email}, false)
	if err != nil {
		return 0, storeErr(err, "count memberships")
	}
	return getInt(records[0], "n"), nil
}

// CreateClub implements graph.Clubs.
func (s *Store) CreateClub(ctx context.Context, c *domain.Club, owner *domain.Membership) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := collect(ctx, tx, `
			OPTIONAL MATCH (existing:BookClub {slug: $slug})
			OPTIONAL MATCH (u:User {email: $email})
			RETURN existing IS NOT NULL AS taken, u IS NOT NULL AS user_exists
		`, map[string]any{"slug": c.Slug, "email": owner.UserEmail})
		if err != nil {
			return nil, err
		}
		if getBool(records[0], "taken") {
			return nil, domainerrors.ErrSlugTaken
		}
		if !getBool(records[0], "user_exists") {
			return nil, domainerrors.ErrUserNotFound
		}

		_, err = collect(ctx, tx, `
			MATCH (u:User {email: $email})
			CREATE (c:BookClub {slug: $slug, name: $name, description: $description, image: $image,
			                    publicity: $publicity, is_active: $active, created: $created, version: 0})
			CREATE (m:Membership {id: $membership_id, club_slug: $slug, user_email: $email,
			                      role: $role, joined: $joined, is_active: true})
			CREATE (u)-[:HAS_MEMBERSHIP]->(m)-[:MEMBER_OF]->(c)
			CREATE (m)-[:PICKS_BEFORE]->(m)
			CREATE (c)-[:CURRENT_PICKER]->(m)
		`, map[string]any{
			"email":         owner.UserEmail,
			"slug":          c.Slug,
			"name":          c.Name,
			"description":   c.Description,
			"image":         c.Image,
			"publicity":     string(c.Publicity),
			"active":        c.IsActive,
			"created":       c.Created.UTC(),
			"membership_id": owner.ID,
			"role":          string(owner.Role),
			"joined":        owner.Joined.UTC(),
		})
		return nil, err
	})
	return storeErr(err, "create club")
}

// ClubExists implements graph.Clubs.
func (s *Store) ClubExists(ctx context.Context, slug string) (bool, error) {
	records, err := s.query(ctx, `
		OPTIONAL MATCH (c:BookClub {slug: $slug})
		RETURN c IS NOT NULL AS found
	`, map[string]any{"slug": slug}, false)
	if err != nil {
		return false, storeErr(err, "club exists")
	}
	return getBool(records[0], "found"), nil
}

// ListClubs implements graph.Clubs.
func (s *Store) ListClubs(ctx context.Context, viewerEmail string, limit, offset int) ([]*domain.Club, int, error) {
	visible := `
		MATCH (c:BookClub {is_active: true})
		WHERE c.publicity = 'PUBLIC'
		   OR EXISTS { (:User {email: $email})-[:HAS_MEMBERSHIP]->(:Membership {is_active: true})-[:MEMBER_OF]->(c) }
	`
	params := map[string]any{"email": viewerEmail, "offset": offset, "limit": limit}

	records, err := s.query(ctx, visible+` RETURN count(c) AS total`, params, false)
	if err != nil {
		return nil, 0, storeErr(err, "count clubs")
	}
	total := getInt(records[0], "total")

	records, err = s.query(ctx, visible+`
		WITH c ORDER BY c.created DESC, c.slug
		SKIP $offset LIMIT $limit
	`+clubReturn, params, false)
	if err != nil {
		return nil, 0, storeErr(err, "list clubs")
	}

	clubs := make([]*domain.Club, len(records))
	for i, rec := range records {
		clubs[i] = clubFromRecord(rec)
	}
	return clubs, total, nil
}

// ReadClub implements graph.Clubs.
func (s *Store) ReadClub(ctx context.Context, slug string, fn func(graph.ClubView) error) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		ct, err := load(ctx, tx, slug, false)
		if err != nil {
			return nil, err
		}
		return nil, fn(ct)
	})
	return storeErr(err, "read club")
}

// WriteClub implements graph.Clubs. It uses an explicit transaction rather
// than ExecuteWrite: callbacks collect side effects, so they must run once.
func (s *Store) WriteClub(ctx context.Context, slug string, fn func(graph.ClubTx) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx, neo4j.WithTxTimeout(30*time.Second))
	if err != nil {
		return storeErr(err, "begin write")
	}
	defer tx.Close(ctx)

	ct, err := load(ctx, tx, slug, true)
	if err != nil {
		_ = tx.Rollback(ctx)
		return storeErr(err, "load club")
	}
	if err := fn(ct); err != nil {
		_ = tx.Rollback(ctx)
		return storeErr(err, "write club")
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Warn("commit failed", zap.String("club", slug), zap.Error(err))
		return storeErr(err, "commit write")
	}
	return nil
}
