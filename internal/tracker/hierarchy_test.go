package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baagent/internal/backlog"
)

type call struct {
	Type   string
	Title  string
	Parent WorkItemRef
}

// fakeCreator records calls and fails any title listed in failOn.
type fakeCreator struct {
	mu     sync.Mutex
	calls  []call
	failOn map[string]bool
}

func (f *fakeCreator) CreateWorkItem(_ context.Context, itemType, title string, parent WorkItemRef) (WorkItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Type: itemType, Title: title, Parent: parent})
	if f.failOn[title] {
		return "", errors.New("boom")
	}
	return WorkItemRef(fmt.Sprintf("https://ado/items/%d", len(f.calls))), nil
}

func (f *fakeCreator) titles() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Title)
	}
	return out
}

func sampleBacklog() []*backlog.Node {
	nodes := []*backlog.Node{
		{Kind: backlog.KindEpic, Title: "Epic 1", Children: []*backlog.Node{
			{Kind: backlog.KindFeature, Title: "Feature 1.1", Children: []*backlog.Node{
				{Kind: backlog.KindStory, Title: "Story 1.1.1"},
			}},
		}},
		{Kind: backlog.KindEpic, Title: "Epic 2", Children: []*backlog.Node{
			{Kind: backlog.KindFeature, Title: "Feature 2.1", Children: []*backlog.Node{
				{Kind: backlog.KindStory, Title: "Story 2.1.1"},
				{Kind: backlog.KindStory, Title: "Story 2.1.2"},
			}},
		}},
		{Kind: backlog.KindEpic, Title: "Epic 3", Children: []*backlog.Node{
			{Kind: backlog.KindFeature, Title: "Feature 3.1"},
		}},
	}
	return backlog.AssignIDs(nodes)
}

func TestHierarchyBuilder_AllCreated(t *testing.T) {
	fc := &fakeCreator{}
	report := NewHierarchyBuilder(fc).Create(context.Background(), sampleBacklog())

	assert.True(t, report.OK())
	assert.Equal(t, 9, report.Created)
	assert.Empty(t, report.Failed)

	assert.Equal(t, []string{
		"Epic 1", "Feature 1.1", "Story 1.1.1",
		"Epic 2", "Feature 2.1", "Story 2.1.1", "Story 2.1.2",
		"Epic 3", "Feature 3.1",
	}, fc.titles())

	// Epics have no parent; the first feature links to the first epic's url.
	assert.Equal(t, WorkItemRef(""), fc.calls[0].Parent)
	assert.Equal(t, "Epic", fc.calls[0].Type)
	assert.Equal(t, WorkItemRef("https://ado/items/1"), fc.calls[1].Parent)
	assert.Equal(t, "Feature", fc.calls[1].Type)
	assert.Equal(t, WorkItemRef("https://ado/items/2"), fc.calls[2].Parent)
	assert.Equal(t, "User Story", fc.calls[2].Type)
}

func TestHierarchyBuilder_EpicFailureSkipsOnlyItsSubtree(t *testing.T) {
	fc := &fakeCreator{failOn: map[string]bool{"Epic 2": true}}
	report := NewHierarchyBuilder(fc).Create(context.Background(), sampleBacklog())

	assert.False(t, report.OK())
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "E-2", report.Failed[0].ID)
	assert.Equal(t, backlog.KindEpic, report.Failed[0].Kind)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 5, report.Created)

	assert.Equal(t, []string{
		"Epic 1", "Feature 1.1", "Story 1.1.1",
		"Epic 2",
		"Epic 3", "Feature 3.1",
	}, fc.titles())
}

func TestHierarchyBuilder_FeatureFailureSkipsItsStories(t *testing.T) {
	fc := &fakeCreator{failOn: map[string]bool{"Feature 2.1": true}}
	report := NewHierarchyBuilder(fc).Create(context.Background(), sampleBacklog())

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "F-1", report.Failed[0].ID)
	assert.Equal(t, 2, report.Skipped)
	assert.NotContains(t, fc.titles(), "Story 2.1.1")
	assert.Contains(t, fc.titles(), "Epic 3")
}

func TestHierarchyBuilder_StoryFailureContinuesWithSiblings(t *testing.T) {
	fc := &fakeCreator{failOn: map[string]bool{"Story 2.1.1": true}}
	report := NewHierarchyBuilder(fc).Create(context.Background(), sampleBacklog())

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "US-1", report.Failed[0].ID)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 8, report.Created)
	assert.Contains(t, fc.titles(), "Story 2.1.2")
	assert.False(t, report.OK())
}

func TestHierarchyBuilder_EmptyBacklog(t *testing.T) {
	fc := &fakeCreator{}
	report := NewHierarchyBuilder(fc).Create(context.Background(), nil)
	assert.True(t, report.OK())
	assert.Zero(t, report.Created)
	assert.Empty(t, fc.calls)
}

func TestHierarchyBuilder_Configured(t *testing.T) {
	assert.True(t, NewHierarchyBuilder(&fakeCreator{}).Configured())
	assert.False(t, NewHierarchyBuilder(NewADOClient(ADOConfig{})).Configured())
	assert.False(t, NewHierarchyBuilder(nil).Configured())
}
