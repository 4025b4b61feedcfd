// Package discussion attaches threaded conversations to clubs. A discussion
// hangs off the membership that started it; replies hang off a discussion or
// another reply.
package discussion

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/authz"
	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
	"github.com/bookclub/bookclub/internal/graph"
)

// ErrNodeNotFound is returned when a reply target or archive target does not
// resolve to an active discussion or reply of the club.
var ErrNodeNotFound = domainerrors.NotFound("discussion or reply not found")

// Service handles discussion business logic
type Service struct {
	store graph.Clubs
	// maxDepth limits reply nesting; 0 means unbounded.
	maxDepth int
	log      *zap.Logger
}

// NewService creates a new discussion service
func NewService(store graph.Clubs, maxDepth int, log *zap.Logger) *Service {
	return &Service{store: store, maxDepth: maxDepth, log: log.Named("discussion")}
}

// CreateDiscussion starts a discussion. Any active member may do so.
func (s *Service) CreateDiscussion(ctx context.Context, clubSlug, actorEmail string, req *CreateDiscussionRequest) (*domain.Discussion, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domainerrors.InvalidInput("a discussion needs a title")
	}

	var d *domain.Discussion
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		author, err := authz.RequireMember(tx, actorEmail)
		if err != nil {
			return err
		}

		d = &domain.Discussion{
			ID:           uuid.NewString(),
			ClubSlug:     clubSlug,
			MembershipID: author.ID,
			AuthorEmail:  author.UserEmail,
			Title:        title,
			Content:      req.Content,
			Created:      time.Now().UTC(),
			IsActive:     true,
		}
		return tx.InsertDiscussion(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("discussion created", zap.String("club", clubSlug), zap.String("discussion", d.ID))
	return d, nil
}

// Reply attaches a reply to an active discussion or reply of the club.
func (s *Service) Reply(ctx context.Context, clubSlug, actorEmail, targetID, content string) (*domain.Reply, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domainerrors.InvalidInput("a reply needs content")
	}

	var reply *domain.Reply
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		author, err := authz.RequireMember(tx, actorEmail)
		if err != nil {
			return err
		}
		target, err := s.activeNode(ctx, tx, targetID)
		if err != nil {
			return err
		}

		depth := target.Depth + 1
		if s.maxDepth > 0 && depth > s.maxDepth {
			return domainerrors.InvalidInputf("replies may nest at most %d levels deep", s.maxDepth)
		}

		reply = &domain.Reply{
			ID:           uuid.NewString(),
			ClubSlug:     clubSlug,
			DiscussionID: target.DiscussionID,
			ParentID:     target.ID,
			MembershipID: author.ID,
			AuthorEmail:  author.UserEmail,
			Content:      content,
			Depth:        depth,
			Created:      time.Now().UTC(),
			IsActive:     true,
		}
		return tx.InsertReply(ctx, reply)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("reply posted",
		zap.String("club", clubSlug),
		zap.String("discussion", reply.DiscussionID),
		zap.Int("depth", reply.Depth),
	)
	return reply, nil
}

// ListDiscussions lists a club's active discussions, newest first.
func (s *Service) ListDiscussions(ctx context.Context, clubSlug, requesterEmail string, page, perPage int) ([]*domain.Discussion, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var (
		discussions []*domain.Discussion
		total       int
	)
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		var err error
		discussions, total, err = v.Discussions(ctx, perPage, (page-1)*perPage)
		return err
	})
	return discussions, total, err
}

// GetDiscussion returns a discussion with its reply tree.
func (s *Service) GetDiscussion(ctx context.Context, clubSlug, requesterEmail, id string) (*Thread, error) {
	var thread *Thread
	err := s.store.ReadClub(ctx, clubSlug, func(v graph.ClubView) error {
		if err := authz.RequireView(v, requesterEmail); err != nil {
			return err
		}
		d, err := v.Discussion(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return domainerrors.NotFound("discussion not found")
		}
		replies, err := v.Replies(ctx, id)
		if err != nil {
			return err
		}
		thread = &Thread{Discussion: d, Replies: buildTree(d.ID, replies)}
		return nil
	})
	return thread, err
}

// Archive soft-deletes a discussion or reply. Its author or a club manager
// may archive it; archived replies hide the replies written against them.
func (s *Service) Archive(ctx context.Context, clubSlug, actorEmail, nodeID string) error {
	err := s.store.WriteClub(ctx, clubSlug, func(tx graph.ClubTx) error {
		actor, err := authz.RequireMember(tx, actorEmail)
		if err != nil {
			return err
		}
		node, err := s.activeNode(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if node.AuthorEmail != actor.UserEmail && !actor.Role.CanManage() {
			return domainerrors.Unauthorized("only the author or a club manager can archive this")
		}
		return tx.DeactivateThreadNode(ctx, node.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("thread node archived", zap.String("club", clubSlug), zap.String("node", nodeID), zap.String("actor", actorEmail))
	return nil
}

// activeNode resolves id to an active node of the club. Every ancestor up to
// and including the discussion must be active too: archiving a reply closes
// its whole subtree.
func (s *Service) activeNode(ctx context.Context, v graph.ClubView, id string) (*domain.ThreadNode, error) {
	node, err := v.ThreadNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}

	for cur := node; cur.Kind == domain.NodeReply; {
		parent, err := v.ThreadNode(ctx, cur.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.DiscussionID != node.DiscussionID || parent.Depth >= cur.Depth {
			return nil, ErrNodeNotFound
		}
		cur = parent
	}
	return node, nil
}
