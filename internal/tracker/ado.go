// Package tracker creates the Epic > Feature > User Story hierarchy of an
// approved backlog in Azure DevOps.
package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"baagent/internal/logging"
)

// DefaultAPIVersion is the work item API version used when none is configured.
const DefaultAPIVersion = "7.1-preview.3"

// ErrNotConfigured is returned when organization, project or token are missing.
var ErrNotConfigured = errors.New("azure devops credentials not configured")

// WorkItemRef is the URL the tracker returns for a created item. Children
// link to their parent through it.
type WorkItemRef string

// WorkItemCreator creates one work item, optionally linked under a parent.
type WorkItemCreator interface {
	CreateWorkItem(ctx context.Context, itemType, title string, parent WorkItemRef) (WorkItemRef, error)
}

// ADOConfig holds Azure DevOps connection settings.
type ADOConfig struct {
	OrganizationURL     string
	Project             string
	PersonalAccessToken string
	APIVersion          string
	Timeout             time.Duration
	HTTPClient          *http.Client
}

// ADOClient implements WorkItemCreator against the Azure DevOps REST API.
type ADOClient struct {
	cfg        ADOConfig
	httpClient *http.Client
}

// NewADOClient creates a client. It does not validate credentials; use
// Configured before creating items.
func NewADOClient(cfg ADOConfig) *ADOClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.OrganizationURL = strings.TrimRight(cfg.OrganizationURL, "/")
	return &ADOClient{cfg: cfg, httpClient: hc}
}

// Configured reports whether organization URL, project and token are all set.
func (c *ADOClient) Configured() bool {
	return c != nil && c.cfg.OrganizationURL != "" && c.cfg.Project != "" && c.cfg.PersonalAccessToken != ""
}

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type relation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

type workItemResponse struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// CreateWorkItem creates one item of itemType ("Epic", "Feature", "User Story").
// With a non-empty parent the item is linked as its child.
func (c *ADOClient) CreateWorkItem(ctx context.Context, itemType, title string, parent WorkItemRef) (WorkItemRef, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ops := []patchOp{{Op: "add", Path: "/fields/System.Title", Value: title}}
	if parent != "" {
		ops = append(ops, patchOp{
			Op:   "add",
			Path: "/relations/-",
			Value: relation{
				Rel: "System.LinkTypes.Hierarchy-Reverse",
				URL: string(parent),
			},
		})
	}
	body, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?api-version=%s",
		c.cfg.OrganizationURL,
		url.PathEscape(c.cfg.Project),
		url.PathEscape(itemType),
		url.QueryEscape(c.cfg.APIVersion),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-patch+json")
	req.Header.Set("Authorization", "Basic "+basicToken(c.cfg.PersonalAccessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var item workItemResponse
	if err := json.Unmarshal(respBody, &item); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if item.URL == "" {
		return "", fmt.Errorf("response carried no work item url")
	}

	logging.TrackerDebug("created %s #%d %q", itemType, item.ID, title)
	return WorkItemRef(item.URL), nil
}

func basicToken(pat string) string {
	return base64.StdEncoding.EncodeToString([]byte(":" + pat))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
