// Package ledger records incidents and per-pod daily restart counts.
package ledger

import (
	"context"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// ActionTaken is the automated action an incident records.
type ActionTaken string

const (
	ActionRestartPod  ActionTaken = "restart_pod"
	ActionAnalyzeCode ActionTaken = "analyze_code"
)

// Ref points at an issue or pull request in the tracker.
type Ref struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// IncidentMetrics is the breach that triggered an incident.
type IncidentMetrics struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Incident is an immutable record of one remediation or analysis action.
type Incident struct {
	ID             string           `json:"id"`
	Type           policy.IssueType `json:"type"`
	PodName        string           `json:"pod_name"`
	Namespace      string           `json:"namespace"`
	Timestamp      int64            `json:"timestamp"`
	Severity       policy.Severity  `json:"severity"`
	Metrics        IncidentMetrics  `json:"metrics"`
	ActionTaken    ActionTaken      `json:"action_taken"`
	IssueRef       *Ref             `json:"issue_tracker_ref,omitempty"`
	PullRequestRef *Ref             `json:"pr_ref,omitempty"`
	Resolved       bool             `json:"resolved"`
}

// Filter narrows an incident query. Zero values match everything.
type Filter struct {
	Resolved  *bool
	Type      policy.IssueType
	PodName   string
	Namespace string
	// Since keeps incidents at or after this unix timestamp.
	Since int64
	Limit int
}

func (f Filter) match(in Incident) bool {
	if f.Resolved != nil && in.Resolved != *f.Resolved {
		return false
	}
	if f.Type != "" && in.Type != f.Type {
		return false
	}
	if f.PodName != "" && in.PodName != f.PodName {
		return false
	}
	if f.Namespace != "" && in.Namespace != f.Namespace {
		return false
	}
	if f.Since > 0 && in.Timestamp < f.Since {
		return false
	}
	return true
}

// RestartCounter is a pod's automated restart count for one day.
type RestartCounter struct {
	PodName   string `json:"pod_name"`
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
	Day       string `json:"day"`
}

// Store is the incident ledger. Implementations are safe for concurrent use and
// increment restart counts atomically per key.
type Store interface {
	AddIncident(ctx context.Context, in Incident) error
	// Incidents returns matching incidents newest first.
	Incidents(ctx context.Context, f Filter) ([]Incident, error)
	RestartCount(ctx context.Context, pod, namespace string) (int, error)
	IncrementRestartCount(ctx context.Context, pod, namespace string) (int, error)
	// ClearOldRestartCounts drops counters from previous days and reports how
	// many were removed.
	ClearOldRestartCounts(ctx context.Context) (int, error)
	RestartCounts(ctx context.Context) ([]RestartCounter, error)
	Close() error
}

// Clock returns the current time; day buckets follow its location.
type Clock func() time.Time

const dayLayout = "2006-01-02"

func dayOf(t time.Time) string {
	return t.Format(dayLayout)
}

type counterKey struct {
	pod       string
	namespace string
}

// Option configures a store.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides the time source used for day buckets.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.now = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
