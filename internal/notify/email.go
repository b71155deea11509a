package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"baagent/internal/logging"
	"baagent/internal/types"
)

// DefaultSubject is the approval email subject.
const DefaultSubject = "Approval Required: AI Generated Business Artifacts"

const emailAPIVersion = "2023-03-31"

// EmailConfig configures an EmailNotifier.
type EmailConfig struct {
	ConnectionString string
	SenderAddress    string
	RecipientAddress string
	Subject          string
	// BaseURL is where reviewers reach this server, used for decision links.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// EmailNotifier implements approval.Notifier with the ACS email REST API.
type EmailNotifier struct {
	cfg        EmailConfig
	conn       Connection
	configured bool
	httpClient *http.Client
	now        func() time.Time
}

// NewEmailNotifier creates a notifier. An incomplete configuration is not an
// error here; NotifyApproval reports ErrNotConfigured instead, so the server
// can start without email.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	n := &EmailNotifier{cfg: cfg, httpClient: cfg.HTTPClient, now: time.Now}
	if n.httpClient == nil {
		n.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ConnectionString == "" || cfg.SenderAddress == "" || cfg.RecipientAddress == "" {
		return n, nil
	}
	conn, err := ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid ACS connection string: %w", err)
	}
	n.conn = conn
	n.configured = true
	return n, nil
}

// Configured reports whether emails can be sent.
func (n *EmailNotifier) Configured() bool { return n.configured }

type emailAddress struct {
	Address string `json:"address"`
}

type emailMessage struct {
	SenderAddress string `json:"senderAddress"`
	Content       struct {
		Subject string `json:"subject"`
		HTML    string `json:"html"`
	} `json:"content"`
	Recipients struct {
		To []emailAddress `json:"to"`
	} `json:"recipients"`
}

// NotifyApproval emails the reviewer approve and reject links for id with the
// TRD inline.
func (n *EmailNotifier) NotifyApproval(ctx context.Context, id string, bundle types.Bundle) error {
	if !n.configured {
		return ErrNotConfigured
	}

	html, err := renderApprovalEmail(n.cfg.BaseURL, id, bundle.TRD)
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	var msg emailMessage
	msg.SenderAddress = n.cfg.SenderAddress
	msg.Content.Subject = n.cfg.Subject
	msg.Content.HTML = html
	msg.Recipients.To = []emailAddress{{Address: n.cfg.RecipientAddress}}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	endpoint := n.conn.Endpoint + "/emails:send?api-version=" + emailAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	sign(req, body, n.conn.AccessKey, n.now())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("email service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	logging.Notify("approval email for %s accepted (operation %s)", id, resp.Header.Get("Operation-Location"))
	return nil
}
