package discussion

import "github.com/bookclub/bookclub/internal/domain"

// Thread is a discussion with its reply tree.
type Thread struct {
	Discussion *domain.Discussion
	Replies    []*ReplyNode
}

// ReplyNode is a reply and the replies written against it.
type ReplyNode struct {
	Reply    *domain.Reply
	Children []*ReplyNode
}

// buildTree arranges replies under their parents. Replies whose parent is not
// in the list (because it was archived) are left out with their subtree.
func buildTree(discussionID string, replies []*domain.Reply) []*ReplyNode {
	nodes := make(map[string]*ReplyNode, len(replies))
	for _, r := range replies {
		nodes[r.ID] = &ReplyNode{Reply: r}
	}

	var roots []*ReplyNode
	for _, r := range replies {
		n := nodes[r.ID]
		if r.ParentID == discussionID {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[r.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	return roots
}

// Count returns the number of replies in the tree.
func (t *Thread) Count() int {
	var count func([]*ReplyNode) int
	count = func(ns []*ReplyNode) int {
		total := len(ns)
		for _, n := range ns {
			total += count(n.Children)
		}
		return total
	}
	return count(t.Replies)
}
