package domain

import "time"

// Discussion is a thread anchored to a club and to the membership that started it.
type Discussion struct {
	ID           string    `json:"id"`
	ClubSlug     string    `json:"club_slug"`
	MembershipID string    `json:"membership_id"`
	AuthorEmail  string    `json:"author_email"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Created      time.Time `json:"created"`
	IsActive     bool      `json:"is_active"`
}

// Reply hangs off a discussion or another reply. ParentID is the node it was
// written against; DiscussionID is the thread root.
type Reply struct {
	ID           string    `json:"id"`
	ClubSlug     string    `json:"club_slug"`
	DiscussionID string    `json:"discussion_id"`
	ParentID     string    `json:"parent_id"`
	MembershipID string    `json:"membership_id"`
	AuthorEmail  string    `json:"author_email"`
	Content      string    `json:"content"`
	Depth        int       `json:"depth"`
	Created      time.Time `json:"created"`
	IsActive     bool      `json:"is_active"`
}

// ThreadNodeKind distinguishes discussions from replies.
type ThreadNodeKind string

const (
	NodeDiscussion ThreadNodeKind = "DISCUSSION"
	NodeReply      ThreadNodeKind = "REPLY"
)

// ThreadNode is the common view of anything a reply can attach to.
type ThreadNode struct {
	ID           string
	Kind         ThreadNodeKind
	DiscussionID string
	// ParentID is empty for discussions.
	ParentID     string
	AuthorEmail  string
	Depth        int
	IsActive     bool
}
