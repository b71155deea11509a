// Package usage tracks generation-service token consumption per model and
// per agent.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"baagent/internal/logging"
)

type (
	trackerKey struct{}
	agentKey   struct{}
)

const unknownAgent = "unknown"

// Tracker aggregates token usage. A Tracker with an empty path is memory-only.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
}

// NewTracker creates a tracker persisted at path, loading any previous totals.
// A missing or corrupt file starts from zero.
func NewTracker(path string) *Tracker {
	t := &Tracker{filePath: path}
	t.data = emptyData()
	if path == "" {
		return t
	}
	if err := t.Load(); err != nil {
		logging.BootWarn("usage: starting from zero: %v", err)
		t.data = emptyData()
	}
	return t
}

func emptyData() UsageData {
	return UsageData{
		Version: "1.0",
		Aggregate: AggregatedStats{
			ByModel: make(map[string]TokenCounts),
			ByAgent: make(map[string]TokenCounts),
		},
	}
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return fmt.Errorf("invalid usage file %s: %w", t.filePath, err)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByAgent == nil {
		t.data.Aggregate.ByAgent = make(map[string]TokenCounts)
	}
	return nil
}

// Save writes the usage data to disk. It is a no-op for memory-only trackers.
func (t *Tracker) Save() error {
	if t.filePath == "" {
		return nil
	}
	t.mu.Lock()
	data, err := json.MarshalIndent(t.data, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0o644)
}

// Track records one call. The agent comes from ctx (see WithAgent).
func (t *Tracker) Track(ctx context.Context, model string, input, output int) {
	agent := AgentFromContext(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	addToMap(t.data.Aggregate.ByAgent, agent, input, output)
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByAgent = copyTokenCountsMap(stats.ByAgent)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from the context.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithAgent tags ctx with the agent making generation calls.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey{}, agent)
}

// AgentFromContext returns the agent tag, or "unknown".
func AgentFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(agentKey{}).(string); ok && a != "" {
		return a
	}
	return unknownAgent
}

// Record tracks a call on the tracker carried by ctx, if any.
func Record(ctx context.Context, model string, input, output int) {
	if t := FromContext(ctx); t != nil {
		t.Track(ctx, model, input, output)
	}
}
