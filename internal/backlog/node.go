// Package backlog models the three-level project backlog (Epic → Feature → Story)
// produced by the backlog agent, and assigns level-scoped identifiers to it.
package backlog

import (
	"encoding/json"
	"fmt"
)

// Kind is the variant of a backlog node. A node's kind is fixed by its depth.
type Kind int

const (
	KindEpic Kind = iota
	KindFeature
	KindStory
)

// String returns the tracker work item type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEpic:
		return "Epic"
	case KindFeature:
		return "Feature"
	case KindStory:
		return "User Story"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Child returns the kind its children must have. Stories have no children.
func (k Kind) Child() (Kind, bool) {
	switch k {
	case KindEpic:
		return KindFeature, true
	case KindFeature:
		return KindStory, true
	default:
		return 0, false
	}
}

// IDPrefix is the prefix used by AssignIDs for this level.
func (k Kind) IDPrefix() string {
	switch k {
	case KindEpic:
		return "E"
	case KindFeature:
		return "F"
	default:
		return "US"
	}
}

// Node is one backlog item. ID is empty until AssignIDs runs.
type Node struct {
	Kind     Kind
	Title    string
	Children []*Node
	ID       string
}

// nodeJSON is the wire shape shared with the backlog agent and the UI.
type nodeJSON struct {
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	ID       string  `json:"id,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// MarshalJSON encodes the node in the {"type","title","id","children"} shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{Type: n.Kind.String(), Title: n.Title, ID: n.ID}
	if n.Kind != KindStory {
		out.Children = n.Children
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a single node. The kind is not trusted from the wire;
// Parse and Normalize fix kinds by depth after decoding.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string            `json:"type"`
		Title    string            `json:"title"`
		ID       string            `json:"id"`
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Title = raw.Title
	n.ID = raw.ID
	n.Kind = kindFromType(raw.Type)
	n.Children = nil
	for _, c := range raw.Children {
		if isNull(c) {
			continue
		}
		child := &Node{}
		if err := json.Unmarshal(c, child); err != nil {
			// A malformed child is dropped; siblings stay usable.
			continue
		}
		n.Children = append(n.Children, child)
	}
	return nil
}

func kindFromType(t string) Kind {
	switch t {
	case "Feature":
		return KindFeature
	case "User Story", "Story", "UserStory":
		return KindStory
	default:
		return KindEpic
	}
}

// Normalize fixes node kinds by depth on a tree built elsewhere, such as a
// bundle posted back by a client. Nil entries and story children are dropped.
func Normalize(nodes []*Node) []*Node {
	return normalize(nodes, KindEpic)
}

// normalize forces every node's kind to match its depth and drops children
// below the Story level and nil entries.
func normalize(nodes []*Node, kind Kind) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		n.Kind = kind
		if child, ok := kind.Child(); ok {
			n.Children = normalize(n.Children, child)
		} else {
			n.Children = nil
		}
		out = append(out, n)
	}
	return out
}

// Walk visits every node depth-first in input order. Returning false from fn
// skips that node's subtree.
func Walk(nodes []*Node, fn func(n *Node, parent *Node) bool) {
	var visit func(list []*Node, parent *Node)
	visit = func(list []*Node, parent *Node) {
		for _, n := range list {
			if n == nil {
				continue
			}
			if fn(n, parent) {
				visit(n.Children, n)
			}
		}
	}
	visit(nodes, nil)
}

// Counts tallies nodes per level.
type Counts struct {
	Epics    int
	Features int
	Stories  int
}

// Total is the number of nodes in the tree.
func (c Counts) Total() int { return c.Epics + c.Features + c.Stories }

// Count tallies the nodes of a backlog tree by kind.
func Count(nodes []*Node) Counts {
	var c Counts
	Walk(nodes, func(n *Node, _ *Node) bool {
		switch n.Kind {
		case KindEpic:
			c.Epics++
		case KindFeature:
			c.Features++
		case KindStory:
			c.Stories++
		}
		return true
	})
	return c
}
