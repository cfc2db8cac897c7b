package engine

import (
	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// Input carries optional per-run overrides. The "namespace" key selects the
// namespace to monitor.
type Input map[string]any

// Snapshot is what the monitor stage collected.
type Snapshot struct {
	Namespace    string
	CPU          []gateway.MetricSample
	Memory       []gateway.MetricSample
	CPUSpikes    []gateway.MetricSample
	MemorySpikes []gateway.MetricSample
	Pods         []gateway.PodInfo
}

// Analysis holds detected issues and, after decide, the one acted on.
type Analysis struct {
	Issues    []policy.Issue
	Timestamp int64
	// Selected is the most severe issue; nil when there is nothing to do.
	Selected     *policy.Issue
	RestartCount int
}

// Action records what the chosen branch did.
type Action struct {
	Type         policy.Route
	Issue        policy.Issue
	RestartCount int
	Restart      *gateway.RestartResult
	IssueRef     *gateway.IssueRef
	PullRequest  *gateway.IssueRef
	Branch       string
	Commit       string
	Proposal     *FixProposal
	IncidentID   string
	Annotation   *gateway.AnnotationAck
	Message      string
}

// State is threaded through the stages of one run. Each stage returns an
// updated copy; once Err is set every stage but formatResponse returns its
// input unchanged.
type State struct {
	Input    Input
	Metrics  *Snapshot
	Analysis *Analysis
	Route    policy.Route
	Action   *Action
	Response Response
	Err      error
}

// Response is the structured result of a run.
type Response struct {
	Status       string           `json:"status"`
	Error        string           `json:"error,omitempty"`
	Action       policy.Route     `json:"action,omitempty"`
	PodName      string           `json:"pod_name,omitempty"`
	Namespace    string           `json:"namespace,omitempty"`
	IssueType    policy.IssueType `json:"issue_type,omitempty"`
	RestartCount int              `json:"restart_count,omitempty"`
	IssueNumber  int              `json:"issue_number,omitempty"`
	IssueURL     string           `json:"issue_url,omitempty"`
	PRNumber     int              `json:"pr_number,omitempty"`
	PRURL        string           `json:"pr_url,omitempty"`
	IncidentID   string           `json:"incident_id,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
