package discussion

import "github.com/bookclub/bookclub/internal/domain"

// CreateDiscussionRequest represents the request to start a discussion
type CreateDiscussionRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"max=20000"`
}

// ReplyRequest represents the request to reply to a discussion or reply
type ReplyRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

// DiscussionResponse represents a discussion
type DiscussionResponse struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	AuthorEmail string           `json:"author_email"`
	Content     string           `json:"content"`
	HTML        string           `json:"html"`
	CreatedAt   string           `json:"created_at"`
	ReplyCount  int              `json:"reply_count,omitempty"`
	Replies     []*ReplyResponse `json:"replies,omitempty"`
}

// ReplyResponse represents a reply and its nested replies
type ReplyResponse struct {
	ID          string           `json:"id"`
	ParentID    string           `json:"parent_id"`
	AuthorEmail string           `json:"author_email"`
	Content     string           `json:"content"`
	HTML        string           `json:"html"`
	Depth       int              `json:"depth"`
	CreatedAt   string           `json:"created_at"`
	Replies     []*ReplyResponse `json:"replies,omitempty"`
}

func toDiscussionResponse(d *domain.Discussion, render *Renderer) *DiscussionResponse {
	return &DiscussionResponse{
		ID:          d.ID,
		Title:       d.Title,
		AuthorEmail: d.AuthorEmail,
		Content:     d.Content,
		HTML:        render.Render(d.Content),
		CreatedAt:   d.Created.Format("2006-01-02T15:04:05Z"),
	}
}

func toReplyResponse(r *domain.Reply, render *Renderer) *ReplyResponse {
	return &ReplyResponse{
		ID:          r.ID,
		ParentID:    r.ParentID,
		AuthorEmail: r.AuthorEmail,
		Content:     r.Content,
		HTML:        render.Render(r.Content),
		Depth:       r.Depth,
		CreatedAt:   r.Created.Format("2006-01-02T15:04:05Z"),
	}
}

func toThreadResponse(t *Thread, render *Renderer) *DiscussionResponse {
	var convert func([]*ReplyNode) []*ReplyResponse
	convert = func(nodes []*ReplyNode) []*ReplyResponse {
		out := make([]*ReplyResponse, len(nodes))
		for i, n := range nodes {
			out[i] = toReplyResponse(n.Reply, render)
			out[i].Replies = convert(n.Children)
		}
		return out
	}

	resp := toDiscussionResponse(t.Discussion, render)
	resp.Replies = convert(t.Replies)
	resp.ReplyCount = t.Count()
	return resp
}
