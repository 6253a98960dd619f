// Package config loads and validates the daemon's YAML configuration (spec §6's
// "recognized configuration options"), following the teacher's holt.yml loader: a single
// yaml.v3-tagged struct tree, a Validate method that fails fast with a named reason, and a
// Load convenience that reads, unmarshals, and validates in one call.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LM backend.
type Provider string

const (
	ProviderOpenAI      Provider = "OpenAI"
	ProviderAzureOpenAI Provider = "AzureOpenAI"
)

// Duration wraps time.Duration so config fields can be written as human strings ("5m",
// "720h") in YAML; yaml.v3 has no built-in support for unmarshaling a string into the
// plain int64 time.Duration represents.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns d as a standard time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// LMRoleConfig configures one of the two LM collaborators (Planner or Executor) — spec §6
// gives both the identical shape.
type LMRoleConfig struct {
	Provider        Provider `yaml:"provider"`
	APIKey          string   `yaml:"api_key"`
	ModelID         string   `yaml:"model_id"`
	AzureEndpoint   string   `yaml:"azure_endpoint,omitempty"`
	AzureDeployment string   `yaml:"azure_deployment,omitempty"`
}

// LMConfig groups the Planner and Executor LM role configurations.
type LMConfig struct {
	Planner  LMRoleConfig `yaml:"planner"`
	Executor LMRoleConfig `yaml:"executor"`
}

// ForgeConfig configures the forge (source-hosting) collaborator.
type ForgeConfig struct {
	Token string `yaml:"token,omitempty"`
}

// BackgroundJobConfig configures the Job Dispatcher (C8).
type BackgroundJobConfig struct {
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
	MaxRetries     int      `yaml:"max_retries,omitempty"`
	JobTimeout     Duration `yaml:"job_timeout,omitempty"`
}

// AuditConfig configures the Audit Log Store's (C3) retention sweep.
type AuditConfig struct {
	Retention Duration `yaml:"retention,omitempty"`
}

// Config is the top-level daemon configuration (spec §6's recognized options).
type Config struct {
	LM                 LMConfig            `yaml:"lm"`
	Forge              ForgeConfig         `yaml:"forge,omitempty"`
	DatabaseConnection string              `yaml:"database_connection,omitempty"`
	BackgroundJob      BackgroundJobConfig `yaml:"background_job,omitempty"`
	Audit              AuditConfig         `yaml:"audit,omitempty"`
}

// Default values applied when the corresponding option is left at its zero value.
const (
	DefaultMaxConcurrency          = 4
	DefaultMaxRetries              = 3
	DefaultJobTimeout     Duration = Duration(15 * time.Minute)
	DefaultAuditRetention Duration = Duration(30 * 24 * time.Hour)
)

// Load reads path, parses it as YAML, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BackgroundJob.MaxConcurrency == 0 {
		c.BackgroundJob.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.BackgroundJob.MaxRetries == 0 {
		c.BackgroundJob.MaxRetries = DefaultMaxRetries
	}
	if c.BackgroundJob.JobTimeout == 0 {
		c.BackgroundJob.JobTimeout = DefaultJobTimeout
	}
	if c.Audit.Retention == 0 {
		c.Audit.Retention = DefaultAuditRetention
	}
}

// Validate enforces spec §6's validation rules: missing API keys are fatal, AzureOpenAI
// requires both azure_endpoint and azure_deployment, and an unrecognized provider is fatal
// with the supported set named in the message.
func (c *Config) Validate() error {
	if err := validateLMRole("lm.planner", c.LM.Planner); err != nil {
		return err
	}
	if err := validateLMRole("lm.executor", c.LM.Executor); err != nil {
		return err
	}

	if c.BackgroundJob.MaxConcurrency < 1 {
		return fmt.Errorf("background_job.max_concurrency must be >= 1, got %d", c.BackgroundJob.MaxConcurrency)
	}
	if c.BackgroundJob.MaxRetries < 0 {
		return fmt.Errorf("background_job.max_retries must be >= 0, got %d", c.BackgroundJob.MaxRetries)
	}
	if c.BackgroundJob.JobTimeout <= 0 {
		return fmt.Errorf("background_job.job_timeout must be positive, got %s", c.BackgroundJob.JobTimeout)
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention must be >= 0, got %s", c.Audit.Retention)
	}

	return nil
}

func validateLMRole(field string, role LMRoleConfig) error {
	switch role.Provider {
	case ProviderOpenAI:
	case ProviderAzureOpenAI:
		if role.AzureEndpoint == "" || role.AzureDeployment == "" {
			return fmt.Errorf("%s: provider AzureOpenAI requires both azure_endpoint and azure_deployment", field)
		}
	default:
		return fmt.Errorf("%s: unrecognized provider %q (supported: %s, %s)", field, role.Provider, ProviderOpenAI, ProviderAzureOpenAI)
	}

	if role.APIKey == "" {
		return fmt.Errorf("%s.api_key is required", field)
	}

	return nil
}

// UsesDurableStorage reports whether DatabaseConnection selects a relational backing
// rather than in-memory stores (spec §6: "without a connection string the system runs
// entirely in-memory").
func (c *Config) UsesDurableStorage() bool {
	return c.DatabaseConnection != ""
}
