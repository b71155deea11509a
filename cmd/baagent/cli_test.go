package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"baagent/internal/approval"
	"baagent/internal/backlog"
	"baagent/internal/config"
	"baagent/internal/orchestrator"
	"baagent/internal/types"
	"baagent/internal/usage"
)

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "baagent.yaml")
	configPath = path
	defer func() { configPath = "baagent.yaml"; configForce = false }()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("runConfigInit failed: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Errorf("output = %q, want path", out.String())
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Addr != config.DefaultConfig().Server.Addr {
		t.Errorf("Server.Addr = %q", loaded.Server.Addr)
	}

	if err := runConfigInit(cmd, nil); err == nil {
		t.Error("expected an error when the file exists")
	}
	configForce = true
	if err := runConfigInit(cmd, nil); err != nil {
		t.Errorf("forced overwrite failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file missing: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	payload := backlog.Parse(`{"backlog":[{"type":"Epic","title":"E","children":[
		{"type":"Feature","title":"F","children":[{"type":"User Story","title":"S1"},{"type":"User Story","title":"S2"}]}]}]}`)
	if payload.State != backlog.Parsed {
		t.Fatalf("Parse failed: %v", payload.Err)
	}
	nodes := payload.Items()
	stats := usage.AggregatedStats{Total: usage.TokenCounts{Calls: 5, Input: 100, Output: 40, Total: 140}}
	got := summarize(&orchestrator.Result{
		AnalysisID: "a-1",
		Bundle:     types.Bundle{HLD: "graph TD\nA-->B", Backlog: nodes},
	}, stats)

	for _, want := range []string{"a-1", "2 lines", "empty", "1 epics, 1 features, 2 stories", "100 in, 40 out over 5 calls"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestStartJanitor_StopWaitsForExit(t *testing.T) {
	st := approval.NewMemoryStore()
	m, err := approval.New(approval.Config{Store: st, TTL: time.Millisecond})
	if err != nil {
		t.Fatalf("approval.New failed: %v", err)
	}
	if _, err := m.Request(context.Background(), types.Bundle{}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	stop := startJanitor(context.Background(), m, 5*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for st.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if st.Len() != 0 {
		t.Errorf("janitor did not sweep the expired record")
	}
	// A second stop must not block or panic.
	stop()
}

func TestRootCommandTree(t *testing.T) {
	want := map[string]bool{"serve": false, "generate": false, "config": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
