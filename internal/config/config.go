// Package config handles configuration for kube-medic.
//
// Values come from an optional YAML file, then environment variables, then
// command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinkerbelle-io/kube-medic/internal/engine"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

const (
	// DefaultConfigDir is the base config directory.
	DefaultConfigDir = "/etc/kube-medic"
	// DefaultConfigFile is the config file path.
	DefaultConfigFile = "/etc/kube-medic/config.yaml"
	// DefaultDataDir holds the ledger journal or database.
	DefaultDataDir = "/var/lib/kube-medic"
)

// Ledger backends.
const (
	LedgerMemory  = "memory"
	LedgerJournal = "journal"
	LedgerSQLite  = "sqlite"
)

// Config holds all kube-medic configuration.
type Config struct {
	Prometheus PrometheusConfig  `yaml:"prometheus"`
	GitHub     GitHubConfig      `yaml:"github"`
	Grafana    GrafanaConfig     `yaml:"grafana"`
	LLM        LLMConfig         `yaml:"llm"`
	Kubernetes KubernetesConfig  `yaml:"kubernetes"`
	Thresholds policy.Thresholds `yaml:"thresholds"`
	Series     engine.Series     `yaml:"series"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Breaker    BreakerConfig     `yaml:"breaker"`
	Daemon     DaemonConfig      `yaml:"daemon"`

	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	LogTailLines   int64         `yaml:"log_tail_lines"`
}

type PrometheusConfig struct {
	URL string `yaml:"url"`
}

type GitHubConfig struct {
	Token      string `yaml:"token"`
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	APIURL     string `yaml:"api_url"`
	BaseBranch string `yaml:"base_branch"`
}

type GrafanaConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	DashboardID int    `yaml:"dashboard_id"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type KubernetesConfig struct {
	// Kubeconfig is ignored when running in-cluster.
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
	DryRun     bool   `yaml:"dry_run"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// BreakerConfig bounds automated restarts across all pods.
type BreakerConfig struct {
	MaxPerHour int           `yaml:"max_per_hour"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

type DaemonConfig struct {
	Interval time.Duration `yaml:"interval"`
	Jitter   time.Duration `yaml:"jitter"`
	Listen   string        `yaml:"listen"`
}

// ConfigError reports an invalid or missing setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		GitHub: GitHubConfig{
			APIURL:     "https://api.github.com",
			BaseBranch: ec.BaseBranch,
		},
		Grafana: GrafanaConfig{
			DashboardID: ec.DashboardID,
		},
		LLM: LLMConfig{
			Model: "gpt-4o",
		},
		Kubernetes: KubernetesConfig{
			Namespace: ec.Namespace,
		},
		Thresholds: ec.Thresholds,
		Series:     ec.Series,
		Ledger: LedgerConfig{
			Backend: LedgerMemory,
		},
		Breaker: BreakerConfig{
			MaxPerHour: 10,
			Cooldown:   2 * time.Minute,
		},
		Daemon: DaemonConfig{
			Interval: time.Minute,
			Jitter:   5 * time.Second,
			Listen:   ":9464",
		},
		GatewayTimeout: ec.GatewayTimeout,
		RunTimeout:     ec.RunTimeout,
		LogTailLines:   ec.LogTailLines,
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path means DefaultConfigFile, which may be absent.
// Load does not validate; call Validate or ValidateLedger.
func Load(path string) (*Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && optional:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PROMETHEUS_URL", &c.Prometheus.URL)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_OWNER", &c.GitHub.Owner)
	str("GITHUB_REPO", &c.GitHub.Repo)
	str("GRAFANA_URL", &c.Grafana.URL)
	str("GRAFANA_API_KEY", &c.Grafana.APIKey)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("OPENAI_MODEL", &c.LLM.Model)
	str("KUBECONFIG", &c.Kubernetes.Kubeconfig)
	str("KUBE_MEDIC_NAMESPACE", &c.Kubernetes.Namespace)

	if v, ok := lookup("MAX_RESTARTS_PER_DAY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "MAX_RESTARTS_PER_DAY", Reason: "not an integer"}
		}
		c.Thresholds.MaxRestartsPerDay = n
	}
	if v, ok := lookup("ANALYSIS_THRESHOLD"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "ANALYSIS_THRESHOLD", Reason: "not an integer"}
		}
		c.Thresholds.AnalysisThreshold = n
	}
	if v, ok := lookup("CPU_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "CPU_THRESHOLD", Reason: "not a number"}
		}
		c.Thresholds.CPUPercent = f
	}
	if v, ok := lookup("MEMORY_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "MEMORY_THRESHOLD", Reason: "not a number"}
		}
		c.Thresholds.MemoryBytes = f
	}
	return nil
}

// Validate checks everything a pipeline run needs.
func (c *Config) Validate() error {
	required := []struct {
		field, value string
	}{
		{"prometheus.url", c.Prometheus.URL},
		{"github.token", c.GitHub.Token},
		{"github.owner", c.GitHub.Owner},
		{"github.repo", c.GitHub.Repo},
		{"grafana.url", c.Grafana.URL},
		{"llm.api_key", c.LLM.APIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Reason: "required"}
		}
	}

	t := c.Thresholds
	switch {
	case t.CPUPercent <= 0:
		return &ConfigError{Field: "thresholds.cpu_percent", Reason: "must be positive"}
	case t.MemoryBytes <= 0:
		return &ConfigError{Field: "thresholds.memory_bytes", Reason: "must be positive"}
	case t.AnalysisThreshold < 1:
		return &ConfigError{Field: "thresholds.analysis_threshold", Reason: "must be at least 1"}
	case t.EnforceMaxRestarts && t.MaxRestartsPerDay < 1:
		return &ConfigError{Field: "thresholds.max_restarts_per_day", Reason: "must be at least 1"}
	case c.GatewayTimeout <= 0:
		return &ConfigError{Field: "gateway_timeout", Reason: "must be positive"}
	case c.RunTimeout < c.GatewayTimeout:
		return &ConfigError{Field: "run_timeout", Reason: "must not be shorter than gateway_timeout"}
	}
	return c.ValidateLedger()
}

// ValidateLedger checks only the ledger section; read-only commands need
// nothing else.
func (c *Config) ValidateLedger() error {
	switch c.Ledger.Backend {
	case LedgerMemory, LedgerJournal, LedgerSQLite:
		return nil
	case "":
		return &ConfigError{Field: "ledger.backend", Reason: "required"}
	default:
		return &ConfigError{Field: "ledger.backend", Reason: fmt.Sprintf("unknown backend %q", c.Ledger.Backend)}
	}
}

// LedgerPath returns the configured path or the backend default.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	switch c.Ledger.Backend {
	case LedgerSQLite:
		return filepath.Join(DefaultDataDir, "ledger.db")
	case LedgerJournal:
		return filepath.Join(DefaultDataDir, "ledger.jsonl")
	}
	return ""
}

// Engine returns the pipeline settings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Namespace:      c.Kubernetes.Namespace,
		Series:         c.Series,
		Thresholds:     c.Thresholds,
		LogTailLines:   c.LogTailLines,
		BaseBranch:     c.GitHub.BaseBranch,
		DashboardID:    c.Grafana.DashboardID,
		GatewayTimeout: c.GatewayTimeout,
		RunTimeout:     c.RunTimeout,
	}
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
