package usage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "usage.json")
	tracker := NewTracker(path)

	ctx := WithAgent(context.Background(), "trd")
	tracker.Track(ctx, "gemini-2.5-flash", 10, 5)
	tracker.Track(ctx, "gemini-2.5-flash", 2, 3)
	tracker.Track(context.Background(), "gemini-2.5-flash", 1, 1)

	stats := tracker.Stats()
	if stats.Total.Input != 13 || stats.Total.Output != 9 || stats.Total.Total != 22 || stats.Total.Calls != 3 {
		t.Fatalf("Total=%+v, want input=13 output=9 total=22 calls=3", stats.Total)
	}
	if got := stats.ByModel["gemini-2.5-flash"]; got.Total != 22 {
		t.Fatalf("ByModel=%+v, want total=22", got)
	}
	if got := stats.ByAgent["trd"]; got.Total != 20 || got.Calls != 2 {
		t.Fatalf("ByAgent[trd]=%+v, want total=20 calls=2", got)
	}
	if got := stats.ByAgent[unknownAgent]; got.Total != 2 {
		t.Fatalf("ByAgent[unknown]=%+v, want total=2", got)
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewTracker(path)
	if got := reloaded.Stats().Total.Total; got != 22 {
		t.Fatalf("reloaded total=%d, want 22", got)
	}
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker := NewTracker("")
	tracker.Track(WithAgent(context.Background(), "hld"), "m", 1, 1)

	stats := tracker.Stats()
	stats.ByAgent["hld"] = TokenCounts{}

	if got := tracker.Stats().ByAgent["hld"].Total; got != 2 {
		t.Fatalf("tracker mutated through Stats copy: total=%d", got)
	}
	if err := tracker.Save(); err != nil {
		t.Fatalf("memory-only Save: %v", err)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker("")
	ctx := NewContext(WithAgent(context.Background(), "lld"), tracker)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Record(ctx, "m", 1, 2)
		}()
	}
	wg.Wait()

	if got := tracker.Stats().ByAgent["lld"].Calls; got != 50 {
		t.Fatalf("calls=%d, want 50", got)
	}
}

func TestContextHelpers(t *testing.T) {
	tracker := NewTracker("")

	ctx := NewContext(context.Background(), tracker)
	if got := FromContext(ctx); got != tracker {
		t.Fatalf("FromContext mismatch")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("FromContext on bare context = %v", got)
	}
	if got := AgentFromContext(context.Background()); got != unknownAgent {
		t.Fatalf("AgentFromContext = %q", got)
	}

	// No tracker in ctx: nothing to record, nothing to panic on.
	Record(context.Background(), "m", 1, 1)
}
