// Package policy turns metric samples into ranked issues and decides which
// remediation path a pod's issue takes.
package policy

// IssueType is the resource a threshold breach was detected on.
type IssueType string

const (
	IssueCPU    IssueType = "cpu"
	IssueMemory IssueType = "memory"
)

// Severity is the coarse classification of how far a value exceeds its threshold.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityHigh:   3,
	SeverityMedium: 2,
	SeverityLow:    1,
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Issue is a threshold breach attributed to a pod.
type Issue struct {
	Type      IssueType `json:"type"`
	PodName   string    `json:"pod_name"`
	Namespace string    `json:"namespace"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
}

// Thresholds holds the detection and escalation limits.
type Thresholds struct {
	CPUPercent        float64 `yaml:"cpu_percent"`
	MemoryBytes       float64 `yaml:"memory_bytes"`
	AnalysisThreshold int     `yaml:"analysis_threshold"`
	MaxRestartsPerDay int     `yaml:"max_restarts_per_day"`
	// EnforceMaxRestarts stops automated restarts once MaxRestartsPerDay is
	// reached below the analysis threshold.
	EnforceMaxRestarts bool `yaml:"enforce_max_restarts"`
}

// DefaultThresholds returns the limits kube-medic ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:         10,
		MemoryBytes:        600_000_000,
		AnalysisThreshold:  4,
		MaxRestartsPerDay:  10,
		EnforceMaxRestarts: true,
	}
}
