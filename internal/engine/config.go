package engine

import (
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// Series names the metrics the monitor stage queries.
type Series struct {
	CPU          string `yaml:"cpu"`
	Memory       string `yaml:"memory"`
	CPUSpikes    string `yaml:"cpu_spikes"`
	MemorySpikes string `yaml:"memory_spikes"`
}

// Config tunes a pipeline run.
type Config struct {
	Namespace  string
	Series     Series
	Thresholds policy.Thresholds
	// LogTailLines bounds the log excerpt sent to the LLM.
	LogTailLines int64
	// BaseBranch is where fix branches start and pull requests target.
	BaseBranch  string
	DashboardID int
	// GatewayTimeout bounds each collaborator call; RunTimeout bounds the run.
	GatewayTimeout time.Duration
	RunTimeout     time.Duration
}

// DefaultSeries returns the metric names exported by the monitored app.
func DefaultSeries() Series {
	return Series{
		CPU:          "app_cpu_usage_percent",
		Memory:       "app_memory_usage_bytes",
		CPUSpikes:    "app_cpu_spike_total",
		MemorySpikes: "app_memory_spike_total",
	}
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:      "default",
		Series:         DefaultSeries(),
		Thresholds:     policy.DefaultThresholds(),
		LogTailLines:   1000,
		BaseBranch:     "develop",
		DashboardID:    1,
		GatewayTimeout: 30 * time.Second,
		RunTimeout:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.Series.CPU == "" {
		c.Series.CPU = d.Series.CPU
	}
	if c.Series.Memory == "" {
		c.Series.Memory = d.Series.Memory
	}
	if c.Series.CPUSpikes == "" {
		c.Series.CPUSpikes = d.Series.CPUSpikes
	}
	if c.Series.MemorySpikes == "" {
		c.Series.MemorySpikes = d.Series.MemorySpikes
	}
	if c.LogTailLines <= 0 {
		c.LogTailLines = d.LogTailLines
	}
	if c.BaseBranch == "" {
		c.BaseBranch = d.BaseBranch
	}
	if c.Thresholds == (policy.Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.Thresholds.CPUPercent <= 0 {
		c.Thresholds.CPUPercent = d.Thresholds.CPUPercent
	}
	if c.Thresholds.MemoryBytes <= 0 {
		c.Thresholds.MemoryBytes = d.Thresholds.MemoryBytes
	}
	if c.Thresholds.AnalysisThreshold <= 0 {
		c.Thresholds.AnalysisThreshold = d.Thresholds.AnalysisThreshold
	}
	if c.Thresholds.MaxRestartsPerDay <= 0 {
		c.Thresholds.MaxRestartsPerDay = d.Thresholds.MaxRestartsPerDay
	}
	if c.DashboardID <= 0 {
		c.DashboardID = d.DashboardID
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = d.GatewayTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	return c
}
