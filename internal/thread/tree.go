package thread

import (
	"sort"

	"github.com/confessio/confessio/internal/models"
)

// MaxDepth is the deepest nesting level that gets rendered as nested.
// Replies below it are still stored and shown, just flattened to this depth.
const MaxDepth = 5

// Node is one comment with its nested replies attached.
type Node struct {
	models.Comment
	Replies []*Node `json:"replies"`
}

// Build turns a flat comment slice into a nested tree. A comment whose
// parent is absent from the input is promoted to a root rather than dropped:
// pagination may fetch a reply without its parent, and it must stay visible.
// Each sibling group is sorted by creation time ascending (id as tiebreak),
// so the result is a stable total order independent of input row order.
func Build(flat []models.Comment) []*Node {
	byID := make(map[uint]*Node, len(flat))
	for i := range flat {
		byID[flat[i].ID] = &Node{Comment: flat[i]}
	}

	var roots []*Node
	for _, n := range byID {
		if n.ParentID != nil {
			if parent, ok := byID[*n.ParentID]; ok {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	sortSiblings(roots)
	for _, n := range byID {
		sortSiblings(n.Replies)
	}
	return roots
}

func sortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}

// Walk visits the tree depth-first: each parent immediately followed by its
// time-sorted children, recursively, before the next sibling. The depth
// passed to visit is clamped to MaxDepth; deeper replies are still visited.
func Walk(roots []*Node, visit func(n *Node, depth int)) {
	for _, r := range roots {
		walk(r, 0, visit)
	}
}

func walk(n *Node, depth int, visit func(n *Node, depth int)) {
	rendered := depth
	if rendered > MaxDepth {
		rendered = MaxDepth
	}
	visit(n, rendered)
	for _, child := range n.Replies {
		walk(child, depth+1, visit)
	}
}
