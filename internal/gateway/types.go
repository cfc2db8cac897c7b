// Package gateway defines the contracts kube-medic consumes from the systems it
// watches and acts on: metrics, pod control, issue tracking, dashboard annotations
// and LLM completion.
package gateway

import "context"

// Gateway names used in errors, logs and metrics.
const (
	Metrics     = "metrics"
	Pods        = "pods"
	Tracker     = "tracker"
	Annotations = "annotations"
	LLM         = "llm"
)

// MetricSample is one instant-vector sample returned by a metric query.
type MetricSample struct {
	Labels    map[string]string `json:"labels"`
	Value     float64           `json:"value"`
	Timestamp int64             `json:"timestamp"`
}

// PodInfo describes a pod in the monitored namespace.
type PodInfo struct {
	Name       string   `json:"name"`
	Namespace  string   `json:"namespace"`
	Status     string   `json:"status"`
	Containers []string `json:"containers"`
}

// RestartResult is the outcome reported by a pod restart.
type RestartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IssueRef points at an issue or pull request in the tracker.
type IssueRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Annotation is a timestamped, tagged note on a dashboard.
type Annotation struct {
	DashboardID int      `json:"dashboard_id"`
	TimeMs      int64    `json:"time"`
	Text        string   `json:"text"`
	Tags        []string `json:"tags"`
}

// AnnotationAck is the dashboard's acknowledgement of a created annotation.
type AnnotationAck struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// MetricGateway answers query-by-name requests.
type MetricGateway interface {
	Query(ctx context.Context, series string) ([]MetricSample, error)
}

// PodController restarts pods and reads their inventory, logs and source.
type PodController interface {
	Restart(ctx context.Context, namespace, pod string) (RestartResult, error)
	ListPods(ctx context.Context, namespace string) ([]PodInfo, error)
	GetLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error)
	GetSourceCode(ctx context.Context, namespace, pod string) (string, error)
}

// IssueTracker files issues and proposes changes.
type IssueTracker interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (IssueRef, error)
	CreateBranch(ctx context.Context, name, base string) (string, error)
	CreateFile(ctx context.Context, path, content, message, branch string) (string, error)
	CreatePullRequest(ctx context.Context, title, body, head, base string) (IssueRef, error)
}

// Annotator writes dashboard annotations.
type Annotator interface {
	CreateAnnotation(ctx context.Context, a Annotation) (AnnotationAck, error)
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
