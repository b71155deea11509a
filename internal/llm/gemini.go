package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"baagent/internal/logging"
	"baagent/internal/usage"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiInvoker.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string        // optional endpoint override
	Timeout time.Duration // applied only when the caller's context has no deadline

	// Usage, when set, records token counts per call. Otherwise a tracker
	// carried by the call's context is used.
	Usage *usage.Tracker

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// GeminiInvoker implements Invoker on the Gemini generateContent API.
type GeminiInvoker struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	usage   *usage.Tracker
}

// NewGeminiInvoker creates a Gemini-backed invoker.
func NewGeminiInvoker(ctx context.Context, cfg GeminiConfig) (*GeminiInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiInvoker{client: client, model: model, timeout: cfg.Timeout, usage: cfg.Usage}, nil
}

// Model returns the configured model name.
func (g *GeminiInvoker) Model() string { return g.model }

// Invoke sends all parts, in order, as a single user turn.
func (g *GeminiInvoker) Invoke(ctx context.Context, parts []Part, expectJSON bool) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no prompt parts")
	}

	gparts, err := toGenAIParts(parts)
	if err != nil {
		return "", err
	}

	var genCfg *genai.GenerateContentConfig
	if expectJSON {
		genCfg = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}

	start := time.Now()
	logging.APIDebug("[Gemini] generateContent: model=%s parts=%d json=%v", g.model, len(parts), expectJSON)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: gparts}},
		genCfg,
	)
	if err != nil {
		logging.APIError("[Gemini] request failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	g.recordUsage(ctx, resp)

	text, ok := firstText(resp)
	if !ok {
		logging.APIError("[Gemini] response had no text candidates")
		return "", ErrEmptyResponse
	}

	logging.APIDebug("[Gemini] generateContent: %d chars in %v", len(text), time.Since(start))
	return text, nil
}

func (g *GeminiInvoker) recordUsage(ctx context.Context, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	in := int(resp.UsageMetadata.PromptTokenCount)
	out := int(resp.UsageMetadata.CandidatesTokenCount)
	if g.usage != nil {
		g.usage.Track(ctx, g.model, in, out)
		return
	}
	usage.Record(ctx, g.model, in, out)
}

func toGenAIParts(parts []Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(parts))
	for i, p := range parts {
		if p.IsMedia() {
			raw, err := p.Media.Bytes()
			if err != nil {
				return nil, fmt.Errorf("prompt part %d: %w", i, err)
			}
			out = append(out, &genai.Part{InlineData: &genai.Blob{MIMEType: p.Media.MIMEType, Data: raw}})
			continue
		}
		out = append(out, &genai.Part{Text: p.Text})
	}
	return out, nil
}

// firstText returns the concatenated non-thought text of the first candidate.
func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil || len(c.Content.Parts) == 0 {
		return "", false
	}
	var sb strings.Builder
	found := false
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		sb.WriteString(p.Text)
		found = true
	}
	return sb.String(), found
}
