// Package orchestrator turns a requirements document into the artifact
// bundle: extraction, one planning call, four specialist calls in parallel,
// then assembly.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"baagent/internal/backlog"
	"baagent/internal/diagram"
	"baagent/internal/llm"
	"baagent/internal/logging"
	"baagent/internal/types"
	"baagent/internal/usage"
)

// DefaultMaxParallel runs every specialist at once.
const DefaultMaxParallel = 4

// Extractor pulls text and images out of an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (types.ExtractedContent, error)
}

// AnalysisSaver persists a finished run.
type AnalysisSaver interface {
	SaveAnalysis(ctx context.Context, a types.Analysis) error
}

// Config wires an Orchestrator. Invoker is required. Extractor is needed by
// Run only, and a nil Saver skips persistence.
type Config struct {
	Invoker     llm.Invoker
	Extractor   Extractor
	Saver       AnalysisSaver
	MaxParallel int
}

// Result is a completed run.
type Result struct {
	Bundle     types.Bundle
	AnalysisID string
}

// MarshalJSON flattens the bundle and adds analysis_id, the shape callers
// receive from the generate endpoint.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		types.Bundle
		AnalysisID string `json:"analysis_id"`
	}{r.Bundle.Normalized(), r.AnalysisID})
}

// Orchestrator runs the generation pipeline. It is safe for concurrent use.
type Orchestrator struct {
	invoker     llm.Invoker
	extractor   Extractor
	saver       AnalysisSaver
	maxParallel int
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Invoker == nil {
		return nil, errors.New("generation invoker is required")
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	return &Orchestrator{
		invoker:     cfg.Invoker,
		extractor:   cfg.Extractor,
		saver:       cfg.Saver,
		maxParallel: cfg.MaxParallel,
	}, nil
}

// Run extracts the document and generates its bundle. It returns either a
// complete result or exactly one error identifying the failed stage.
func (o *Orchestrator) Run(ctx context.Context, file []byte, filename string) (*Result, error) {
	if o.extractor == nil {
		return nil, &ExtractionError{Filename: filename, Err: errors.New("no extractor configured")}
	}

	timer := logging.StartTimer(logging.CategoryExtract, "extract "+filename)
	content, err := o.extractor.Extract(ctx, file, filename)
	timer.Stop()
	if err != nil {
		logging.ExtractError("extraction of %s failed: %v", filename, err)
		return nil, &ExtractionError{Filename: filename, Err: err}
	}
	logging.Extract("extracted %d chars and %d images from %s", len(content.Text), len(content.Media), filename)

	return o.generate(ctx, content, filename)
}

// RunText generates a bundle from plain text, skipping extraction. Title
// names the saved analysis.
func (o *Orchestrator) RunText(ctx context.Context, text, title string) (*Result, error) {
	return o.generate(ctx, types.ExtractedContent{Text: text}, title)
}

func (o *Orchestrator) generate(ctx context.Context, content types.ExtractedContent, filename string) (*Result, error) {
	id := uuid.New().String()
	start := time.Now()
	log := logging.Get(logging.CategoryOrchestrator).With("analysis_id", id)
	log.Info("generation started for %q", filename)
	logging.Audit(logging.AuditEvent{Type: logging.AuditGenerationStart, Subject: id, Success: true})

	result, err := o.pipeline(ctx, id, content, filename)
	if err != nil {
		log.Error("generation failed: %v", err)
		logging.Audit(logging.AuditEvent{
			Type:     logging.AuditGenerationError,
			Subject:  id,
			Duration: time.Since(start),
			Message:  err.Error(),
		})
		return nil, err
	}

	counts := backlog.Count(result.Bundle.Backlog)
	log.Info("generation finished in %v (%d epics, %d features, %d stories)",
		time.Since(start), counts.Epics, counts.Features, counts.Stories)
	logging.Audit(logging.AuditEvent{
		Type:     logging.AuditGenerationComplete,
		Subject:  id,
		Success:  true,
		Duration: time.Since(start),
	})
	return result, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, id string, content types.ExtractedContent, filename string) (*Result, error) {
	plan, err := o.plan(ctx, content)
	if err != nil {
		return nil, err
	}

	outputs, err := o.specialize(ctx, plan, content.Text)
	if err != nil {
		return nil, err
	}

	bundle, err := assemble(outputs, content.Media)
	if err != nil {
		return nil, err
	}

	o.save(ctx, types.Analysis{
		ID:           id,
		Title:        types.AnalysisTitle(filename),
		Date:         time.Now(),
		Status:       types.AnalysisStatusCompleted,
		OriginalText: content.Text,
		Results:      &bundle,
	})

	return &Result{Bundle: bundle, AnalysisID: id}, nil
}

// plan sends the document text followed by every image to the planner.
func (o *Orchestrator) plan(ctx context.Context, content types.ExtractedContent) (string, error) {
	parts := make([]llm.Part, 0, 1+len(content.Media))
	parts = append(parts, llm.TextPart(buildPlannerPrompt(content.Text)))
	for _, m := range content.Media {
		parts = append(parts, llm.MediaPart(m))
	}

	timer := logging.StartTimer(logging.CategoryOrchestrator, AgentPlanner)
	plan, err := o.invoker.Invoke(usage.WithAgent(ctx, AgentPlanner), parts, false)
	timer.Stop()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}
	logging.OrchestratorDebug("plan created (%d chars)", len(plan))
	return plan, nil
}

type specialist struct {
	name       string
	prompt     string
	expectJSON bool
}

func specialists(plan, text string) []specialist {
	return []specialist{
		{name: AgentTRD, prompt: buildTRDPrompt(plan, text)},
		{name: AgentHLD, prompt: buildDiagramPrompt(AgentHLD, plan)},
		{name: AgentLLD, prompt: buildDiagramPrompt(AgentLLD, plan)},
		{name: AgentBacklog, prompt: buildBacklogPrompt(plan, text), expectJSON: true},
	}
}

// specialize runs every specialist to completion and returns their outputs
// by agent name. Any failure yields a SpecialistError naming all failed agents.
func (o *Orchestrator) specialize(ctx context.Context, plan, text string) (map[string]string, error) {
	agents := specialists(plan, text)

	var (
		mu      sync.Mutex
		outputs = make(map[string]string, len(agents))
		failed  = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(o.maxParallel)

	for _, sp := range agents {
		g.Go(func() error {
			start := time.Now()
			out, err := o.invoker.Invoke(usage.WithAgent(ctx, sp.name), []llm.Part{llm.TextPart(sp.prompt)}, sp.expectJSON)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[sp.name] = err
				logging.OrchestratorWarn("agent %s failed: %v", sp.name, err)
				logging.Audit(logging.AuditEvent{Type: logging.AuditAgentError, Subject: sp.name, Message: err.Error()})
				return nil
			}
			outputs[sp.name] = out
			logging.Audit(logging.AuditEvent{
				Type:     logging.AuditAgentComplete,
				Subject:  sp.name,
				Success:  true,
				Duration: time.Since(start),
			})
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return nil, newSpecialistError(failed)
	}
	return outputs, nil
}

// assemble builds the bundle from specialist outputs. An unparseable backlog
// becomes an empty backlog rather than a failure.
func assemble(outputs map[string]string, media []types.Media) (types.Bundle, error) {
	payload := backlog.Parse(outputs[AgentBacklog])
	if payload.State == backlog.Unparseable {
		logging.OrchestratorWarn("backlog agent returned unusable output, using empty backlog: %v", payload.Err)
	}

	bundle := types.Bundle{
		TRD:     outputs[AgentTRD],
		HLD:     diagram.ExtractCode(outputs[AgentHLD]),
		LLD:     diagram.ExtractCode(outputs[AgentLLD]),
		Media:   media,
		Backlog: backlog.AssignIDs(payload.Items()),
	}.Normalized()

	if _, err := json.Marshal(bundle); err != nil {
		return types.Bundle{}, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}
	return bundle, nil
}

// save persists the analysis. Failures are logged and never fail the run.
func (o *Orchestrator) save(ctx context.Context, a types.Analysis) {
	if o.saver == nil {
		return
	}
	if err := o.saver.SaveAnalysis(ctx, a); err != nil {
		logging.OrchestratorWarn("failed to save analysis %s: %v", a.ID, err)
		return
	}
	logging.OrchestratorDebug("analysis %s saved", a.ID)
}
