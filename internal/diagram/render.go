package diagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"baagent/internal/logging"
)

// maxErrorBody caps how much of an upstream error body is kept.
const maxErrorBody = 2048

// RenderError reports a non-200 answer from the rendering service.
type RenderError struct {
	StatusCode int
	Body       string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("diagram rendering failed: %d - %s", e.StatusCode, e.Body)
}

// Renderer turns mermaid source into PNG bytes using Kroki.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
}

// NewRenderer creates a renderer for the Kroki instance at baseURL.
func NewRenderer(baseURL string, timeout time.Duration) *Renderer {
	if baseURL == "" {
		baseURL = "https://kroki.io"
	}
	return &Renderer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Render posts the diagram source and returns the PNG image.
func (r *Renderer) Render(ctx context.Context, code string) ([]byte, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("no diagram code provided")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/mermaid/png", strings.NewReader(code))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diagram rendering request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Get(logging.CategoryHTTP).Warn("kroki returned %d", resp.StatusCode)
		return nil, &RenderError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered diagram: %w", err)
	}
	return png, nil
}
