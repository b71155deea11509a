package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ba-agent configuration.
type Config struct {
	Name string `yaml:"name"`

	// Generation service
	LLM LLMConfig `yaml:"llm"`

	// Embeddings for semantic search
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Approval lifecycle
	Approval ApprovalConfig `yaml:"approval"`

	// External services (email, tracker, diagram rendering)
	Integrations IntegrationsConfig `yaml:"integrations"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// SQLite storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PipelineConfig tunes the generation run.
type PipelineConfig struct {
	// MaxParallel bounds concurrent specialist calls (default 4, one per agent).
	MaxParallel int `yaml:"max_parallel"`
	// RunTimeout bounds one whole generation run.
	RunTimeout string `yaml:"run_timeout"`
}

// ApprovalConfig configures approval record retention.
type ApprovalConfig struct {
	// RecordTTL is how long a record is kept after its last transition.
	RecordTTL string `yaml:"record_ttl"`
	// SweepInterval is how often expired records are removed.
	SweepInterval string `yaml:"sweep_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// BaseURL is the externally reachable URL used in approval links.
	BaseURL        string `yaml:"base_url"`
	RequestTimeout string `yaml:"request_timeout"`
	// MaxUploadMB caps multipart upload size.
	MaxUploadMB int `yaml:"max_upload_mb"`
	// UploadDir keeps a copy of uploaded documents.
	UploadDir string `yaml:"upload_dir"`
}

// StorageConfig configures the SQLite database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "ba-agent",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    DefaultGeminiModel,
			Timeout:  "300s",
		},

		Embedding: EmbeddingConfig{
			Enabled: true,
			Model:   "gemini-embedding-001",
		},

		Pipeline: PipelineConfig{
			MaxParallel: 4,
			RunTimeout:  "15m",
		},

		Approval: ApprovalConfig{
			RecordTTL:     "168h",
			SweepInterval: "1h",
		},

		Integrations: IntegrationsConfig{
			Kroki: KrokiIntegration{
				BaseURL: "https://kroki.io",
				Timeout: "30s",
			},
			Tracker: TrackerIntegration{
				APIVersion: "7.1-preview.3",
				Timeout:    "30s",
			},
			Email: EmailIntegration{
				Subject: "Approval Required: AI Generated Business Artifacts",
				Timeout: "30s",
			},
		},

		Server: ServerConfig{
			Addr:           "127.0.0.1:5000",
			BaseURL:        "http://127.0.0.1:5000",
			RequestTimeout: "15m",
			MaxUploadMB:    32,
			UploadDir:      "uploads",
		},

		Storage: StorageConfig{
			DatabasePath: "data/ba_agent.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		c.Storage.DatabasePath = path
	}
	if url := os.Getenv("BACKEND_BASE_URL"); url != "" {
		c.Server.BaseURL = url
	}
	if addr := os.Getenv("BAAGENT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if v := os.Getenv("ACS_CONNECTION_STRING"); v != "" {
		c.Integrations.Email.ConnectionString = v
	}
	if v := os.Getenv("ACS_SENDER_ADDRESS"); v != "" {
		c.Integrations.Email.SenderAddress = v
	}
	if v := os.Getenv("APPROVAL_RECIPIENT_EMAIL"); v != "" {
		c.Integrations.Email.RecipientAddress = v
	}

	if v := os.Getenv("ADO_ORGANIZATION_URL"); v != "" {
		c.Integrations.Tracker.OrganizationURL = v
	}
	if v := os.Getenv("ADO_PROJECT_NAME"); v != "" {
		c.Integrations.Tracker.Project = v
	}
	if v := os.Getenv("ADO_PERSONAL_ACCESS_TOKEN"); v != "" {
		c.Integrations.Tracker.PersonalAccessToken = v
	}

	if url := os.Getenv("KROKI_URL"); url != "" {
		c.Integrations.Kroki.BaseURL = url
	}

	if lvl := os.Getenv("BAAGENT_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if v := os.Getenv("BAAGENT_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.MaxParallel = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("generation service API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "gemini" {
		return fmt.Errorf("invalid LLM provider: %s (valid: gemini)", c.LLM.Provider)
	}
	if c.Pipeline.MaxParallel < 0 {
		return fmt.Errorf("pipeline.max_parallel must not be negative")
	}
	return nil
}

// parseDuration parses s, falling back to def on empty or invalid input.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetRunTimeout returns the generation run timeout.
func (c *Config) GetRunTimeout() time.Duration {
	return parseDuration(c.Pipeline.RunTimeout, 15*time.Minute)
}

// GetRecordTTL returns how long approval records are retained.
func (c *Config) GetRecordTTL() time.Duration {
	return parseDuration(c.Approval.RecordTTL, 7*24*time.Hour)
}

// GetSweepInterval returns the approval janitor interval.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Approval.SweepInterval, time.Hour)
}

// GetRequestTimeout returns the HTTP generate request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 15*time.Minute)
}
