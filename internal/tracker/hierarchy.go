package tracker

import (
	"context"
	"fmt"

	"baagent/internal/backlog"
	"baagent/internal/logging"
)

// Failure records one item the tracker refused.
type Failure struct {
	ID    string
	Kind  backlog.Kind
	Title string
	Err   error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s %q: %v", f.Kind, f.ID, f.Title, f.Err)
}

// Report summarizes one hierarchy creation run.
type Report struct {
	Created int
	Failed  []Failure
	// Skipped counts descendants never attempted because an ancestor failed.
	Skipped int
}

// OK reports whether every item was created.
func (r Report) OK() bool {
	return len(r.Failed) == 0 && r.Skipped == 0
}

// HierarchyBuilder walks a backlog and creates each item under its parent.
type HierarchyBuilder struct {
	creator WorkItemCreator
}

// NewHierarchyBuilder creates a builder on top of creator.
func NewHierarchyBuilder(creator WorkItemCreator) *HierarchyBuilder {
	return &HierarchyBuilder{creator: creator}
}

// Configured reports whether the underlying creator has its credentials.
// Creators that cannot tell are assumed ready.
func (b *HierarchyBuilder) Configured() bool {
	if b == nil || b.creator == nil {
		return false
	}
	if c, ok := b.creator.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Create creates epics, then each epic's features, then each feature's
// stories. A failed item is recorded and its subtree skipped; its siblings
// still run. Nothing is retried or rolled back.
func (b *HierarchyBuilder) Create(ctx context.Context, nodes []*backlog.Node) Report {
	timer := logging.StartTimer(logging.CategoryTracker, "create hierarchy")
	defer timer.StopWithInfo()

	var report Report
	b.createLevel(ctx, nodes, "", &report)

	logging.Tracker("hierarchy done: created=%d failed=%d skipped=%d",
		report.Created, len(report.Failed), report.Skipped)
	return report
}

func (b *HierarchyBuilder) createLevel(ctx context.Context, nodes []*backlog.Node, parent WorkItemRef, report *Report) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ref, err := b.creator.CreateWorkItem(ctx, n.Kind.String(), n.Title, parent)
		if err != nil {
			logging.TrackerError("failed to create %s %s %q: %v", n.Kind, n.ID, n.Title, err)
			logging.Audit(logging.AuditEvent{
				Type:    logging.AuditWorkItemFailed,
				Subject: n.Title,
				Message: err.Error(),
				Fields:  map[string]interface{}{"kind": n.Kind.String(), "id": n.ID},
			})
			report.Failed = append(report.Failed, Failure{ID: n.ID, Kind: n.Kind, Title: n.Title, Err: err})
			report.Skipped += descendants(n)
			continue
		}
		report.Created++
		logging.Audit(logging.AuditEvent{
			Type:    logging.AuditWorkItemCreated,
			Subject: n.Title,
			Success: true,
			Fields:  map[string]interface{}{"kind": n.Kind.String(), "id": n.ID, "url": string(ref)},
		})

		if _, ok := n.Kind.Child(); ok {
			b.createLevel(ctx, n.Children, ref, report)
		}
	}
}

func descendants(n *backlog.Node) int {
	if _, ok := n.Kind.Child(); !ok {
		return 0
	}
	count := 0
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		count += 1 + descendants(c)
	}
	return count
}
