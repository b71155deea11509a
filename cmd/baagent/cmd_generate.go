package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"baagent/internal/backlog"
	"baagent/internal/orchestrator"
	"baagent/internal/usage"
)

var (
	generateText   bool
	generateRender bool
	generateSave   bool
	generateOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Generate the artifact bundle for one document",
	Long: `Runs the planner and the four specialist agents on a .docx or .pdf file
and prints the bundle as JSON.

With --text the argument is the requirements text itself. With --render the TRD
is rendered for the terminal, followed by a summary of the bundle.`,
	Example: `  baagent generate requirements.docx
  baagent generate --text "Customers need a shopping cart" --render
  baagent generate requirements.pdf -o bundle.json --save`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateText, "text", false, "Treat the argument as requirements text")
	generateCmd.Flags().BoolVar(&generateRender, "render", false, "Render the TRD and a summary instead of JSON")
	generateCmd.Flags().BoolVar(&generateSave, "save", false, "Record the analysis in the database")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Write the bundle JSON to a file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, cfg.GetRunTimeout())
	defer cancelRun()

	var saver orchestrator.AnalysisSaver
	if generateSave {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		saver = db
	}

	tokens := usage.NewTracker("")
	orch, err := newOrchestrator(ctx, cfg, saver, tokens)
	if err != nil {
		return err
	}

	var result *orchestrator.Result
	if generateText {
		result, err = orch.RunText(ctx, args[0], "")
	} else {
		data, readErr := os.ReadFile(args[0])
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], readErr)
		}
		result, err = orch.Run(ctx, data, filepath.Base(args[0]))
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if generateOutput != "" {
		if err := os.WriteFile(generateOutput, out, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", generateOutput, err)
		}
	}

	w := cmd.OutOrStdout()
	if !generateRender {
		if generateOutput == "" {
			fmt.Fprintln(w, string(out))
		}
		return nil
	}
	return renderResult(w, result, tokens.Stats())
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderResult prints the TRD as styled markdown and a short bundle summary.
func renderResult(w io.Writer, result *orchestrator.Result, stats usage.AggregatedStats) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	trd, err := renderer.Render(result.Bundle.TRD)
	if err != nil {
		return fmt.Errorf("failed to render TRD: %w", err)
	}
	fmt.Fprint(w, trd)
	fmt.Fprintln(w, summarize(result, stats))
	return nil
}

func summarize(result *orchestrator.Result, stats usage.AggregatedStats) string {
	counts := backlog.Count(result.Bundle.Backlog)
	rows := []struct{ label, value string }{
		{"Analysis", result.AnalysisID},
		{"HLD", diagramLines(result.Bundle.HLD)},
		{"LLD", diagramLines(result.Bundle.LLD)},
		{"Images", fmt.Sprintf("%d", len(result.Bundle.Media))},
		{"Backlog", fmt.Sprintf("%d epics, %d features, %d stories", counts.Epics, counts.Features, counts.Stories)},
		{"Tokens", fmt.Sprintf("%d in, %d out over %d calls", stats.Total.Input, stats.Total.Output, stats.Total.Calls)},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Bundle summary"))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r.label))
		b.WriteString(r.value)
	}
	return boxStyle.Render(b.String())
}

func diagramLines(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "empty"
	}
	return fmt.Sprintf("%d lines", strings.Count(code, "\n")+1)
}
