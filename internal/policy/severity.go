package policy

import (
	"sort"
	"strings"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

// Fallback attribution when a sample's instance cannot be matched to a pod.
const (
	UnknownPod       = "unknown"
	DefaultNamespace = "default"
)

// CalculateSeverity classifies value against threshold. Both boundaries are
// exclusive: exactly 1.5x is medium, exactly 1.2x is low.
func CalculateSeverity(value, threshold float64) Severity {
	switch {
	case value > threshold*1.5:
		return SeverityHigh
	case value > threshold*1.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SortBySeverity orders issues high to low in place. Equal severities keep
// their relative order.
func SortBySeverity(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() > issues[j].Severity.Rank()
	})
}

// MostSevere returns the highest-ranked issue, preferring the earliest on ties.
func MostSevere(issues []Issue) (Issue, bool) {
	if len(issues) == 0 {
		return Issue{}, false
	}
	sorted := make([]Issue, len(issues))
	copy(sorted, issues)
	SortBySeverity(sorted)
	return sorted[0], true
}

// Detect compares CPU and memory samples against their thresholds and returns
// one issue per breaching sample, CPU first. Samples are attributed to pods by
// substring match of the instance label.
func Detect(cpu, memory []gateway.MetricSample, pods []gateway.PodInfo, th Thresholds) []Issue {
	var issues []Issue
	for _, s := range cpu {
		if s.Value > th.CPUPercent {
			issues = append(issues, newIssue(IssueCPU, s, pods, th.CPUPercent))
		}
	}
	for _, s := range memory {
		if s.Value > th.MemoryBytes {
			issues = append(issues, newIssue(IssueMemory, s, pods, th.MemoryBytes))
		}
	}
	return issues
}

func newIssue(typ IssueType, s gateway.MetricSample, pods []gateway.PodInfo, threshold float64) Issue {
	pod, ns := ResolvePod(s.Labels["instance"], pods)
	return Issue{
		Type:      typ,
		PodName:   pod,
		Namespace: ns,
		Value:     s.Value,
		Threshold: threshold,
		Severity:  CalculateSeverity(s.Value, threshold),
	}
}

// ResolvePod maps an instance label to the first pod whose name it contains,
// falling back to the unknown pod in the default namespace.
func ResolvePod(instance string, pods []gateway.PodInfo) (string, string) {
	for _, p := range pods {
		if p.Name != "" && strings.Contains(instance, p.Name) {
			return p.Name, p.Namespace
		}
	}
	return UnknownPod, DefaultNamespace
}
