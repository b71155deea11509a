package backlog

import "fmt"

// AssignIDs numbers the tree in place and returns it.
//
// Epics are E-1, E-2, ... in input order. Feature numbers restart at F-1 under
// every Epic and Story numbers restart at US-1 under every Feature, so ids are
// unique only among siblings. Calling it again renumbers from scratch and
// overwrites earlier ids; callers run it once per bundle.
func AssignIDs(nodes []*Node) []*Node {
	if nodes == nil {
		return []*Node{}
	}
	assignLevel(nodes, KindEpic)
	return nodes
}

func assignLevel(nodes []*Node, kind Kind) {
	seq := 0
	for _, n := range nodes {
		if n == nil {
			continue
		}
		seq++
		n.ID = fmt.Sprintf("%s-%d", kind.IDPrefix(), seq)
		if child, ok := kind.Child(); ok {
			assignLevel(n.Children, child)
		}
	}
}
