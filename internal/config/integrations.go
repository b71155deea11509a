package config

import "time"

// IntegrationsConfig configures external service integrations.
type IntegrationsConfig struct {
	// Azure Communication Services email for approval requests
	Email EmailIntegration `yaml:"email"`

	// Azure DevOps work item tracking
	Tracker TrackerIntegration `yaml:"tracker"`

	// Kroki diagram rendering
	Kroki KrokiIntegration `yaml:"kroki"`
}

// EmailIntegration configures approval emails.
type EmailIntegration struct {
	ConnectionString string `yaml:"connection_string"` // endpoint=https://...;accesskey=...
	SenderAddress    string `yaml:"sender_address"`
	RecipientAddress string `yaml:"recipient_address"`
	Subject          string `yaml:"subject"`
	Timeout          string `yaml:"timeout"`
}

// TrackerIntegration configures Azure DevOps.
type TrackerIntegration struct {
	OrganizationURL     string `yaml:"organization_url"`
	Project             string `yaml:"project"`
	PersonalAccessToken string `yaml:"personal_access_token"`
	APIVersion          string `yaml:"api_version"`
	Timeout             string `yaml:"timeout"`
}

// KrokiIntegration configures the diagram renderer.
type KrokiIntegration struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// IsEmailConfigured reports whether approval emails can be sent.
func (c *Config) IsEmailConfigured() bool {
	e := c.Integrations.Email
	return e.ConnectionString != "" && e.SenderAddress != "" && e.RecipientAddress != ""
}

// IsTrackerConfigured reports whether work items can be created.
func (c *Config) IsTrackerConfigured() bool {
	t := c.Integrations.Tracker
	return t.OrganizationURL != "" && t.Project != "" && t.PersonalAccessToken != ""
}

// GetEmailTimeout returns the email send timeout.
func (c *Config) GetEmailTimeout() time.Duration {
	return parseDuration(c.Integrations.Email.Timeout, 30*time.Second)
}

// GetTrackerTimeout returns the per-request tracker timeout.
func (c *Config) GetTrackerTimeout() time.Duration {
	return parseDuration(c.Integrations.Tracker.Timeout, 30*time.Second)
}

// GetKrokiTimeout returns the diagram rendering timeout.
func (c *Config) GetKrokiTimeout() time.Duration {
	return parseDuration(c.Integrations.Kroki.Timeout, 30*time.Second)
}
