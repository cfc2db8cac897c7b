package engine

import (
	"context"
	"fmt"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

func (e *Engine) namespaceFor(in Input) string {
	if ns, ok := in["namespace"].(string); ok && ns != "" {
		return ns
	}
	return e.cfg.Namespace
}

// monitor collects the four metric series and the pod inventory.
func (e *Engine) monitor(ctx context.Context, st State) State {
	if st.Err != nil {
		return st
	}
	ns := e.namespaceFor(st.Input)
	snap := &Snapshot{Namespace: ns}

	queries := []struct {
		series string
		dst    *[]gateway.MetricSample
	}{
		{e.cfg.Series.CPU, &snap.CPU},
		{e.cfg.Series.Memory, &snap.Memory},
		{e.cfg.Series.CPUSpikes, &snap.CPUSpikes},
		{e.cfg.Series.MemorySpikes, &snap.MemorySpikes},
	}
	for _, q := range queries {
		samples, err := call(ctx, e, gateway.Metrics, "query "+q.series, func(ctx context.Context) ([]gateway.MetricSample, error) {
			return e.deps.Metrics.Query(ctx, q.series)
		})
		if err != nil {
			e.log.Error("metric query failed", "series", q.series, "error", err)
			st.Err = fmt.Errorf("monitor metrics: %w", err)
			return st
		}
		*q.dst = samples
	}

	pods, err := call(ctx, e, gateway.Pods, "list_pods", func(ctx context.Context) ([]gateway.PodInfo, error) {
		return e.deps.Pods.ListPods(ctx, ns)
	})
	if err != nil {
		e.log.Error("pod listing failed", "namespace", ns, "error", err)
		st.Err = fmt.Errorf("monitor pods: %w", err)
		return st
	}
	snap.Pods = pods

	e.log.Debug("metrics collected",
		"namespace", ns,
		"cpu_samples", len(snap.CPU),
		"memory_samples", len(snap.Memory),
		"pods", len(pods))
	st.Metrics = snap
	return st
}

// analyze turns samples into threshold breaches.
func (e *Engine) analyze(st State) State {
	if st.Err != nil {
		return st
	}
	issues := policy.Detect(st.Metrics.CPU, st.Metrics.Memory, st.Metrics.Pods, e.cfg.Thresholds)
	for _, is := range issues {
		e.deps.Telemetry.IssueDetected(string(is.Type), string(is.Severity))
	}
	e.log.Info("analysis complete", "issues", len(issues))
	st.Analysis = &Analysis{Issues: issues, Timestamp: e.deps.Now().Unix()}
	return st
}

// decide picks the branch for the most severe issue.
func (e *Engine) decide(ctx context.Context, st State) State {
	if st.Err != nil {
		return st
	}
	issue, ok := policy.MostSevere(st.Analysis.Issues)
	if !ok {
		st.Route = policy.RouteNoAction
		return st
	}

	count, err := e.deps.Ledger.RestartCount(ctx, issue.PodName, issue.Namespace)
	if err != nil {
		st.Err = fmt.Errorf("read restart count: %w", err)
		return st
	}

	an := *st.Analysis
	an.Selected = &issue
	an.RestartCount = count
	st.Analysis = &an
	st.Route = policy.Decide(count, e.cfg.Thresholds)

	e.log.Info("decision made",
		"route", st.Route,
		"pod", issue.PodName,
		"namespace", issue.Namespace,
		"type", issue.Type,
		"severity", issue.Severity,
		"restart_count", count,
		"analysis_threshold", e.cfg.Thresholds.AnalysisThreshold)
	return st
}

// formatResponse shapes the run's outcome.
func (e *Engine) formatResponse(st State) State {
	if st.Err != nil {
		e.log.Warn("formatting error response", "error", st.Err)
		st.Response = Response{Status: StatusError, Error: st.Err.Error()}
		return st
	}

	a := st.Action
	if a == nil {
		st.Response = Response{
			Status:  StatusSuccess,
			Action:  policy.RouteNoAction,
			Message: "No issues detected",
		}
		return st
	}

	resp := Response{
		Status:     StatusSuccess,
		Action:     a.Type,
		PodName:    a.Issue.PodName,
		Namespace:  a.Issue.Namespace,
		IssueType:  a.Issue.Type,
		IncidentID: a.IncidentID,
	}
	if a.IssueRef != nil {
		resp.IssueNumber = a.IssueRef.Number
		resp.IssueURL = a.IssueRef.URL
	}
	switch a.Type {
	case policy.RouteRemediate:
		resp.RestartCount = a.RestartCount
	case policy.RouteAnalyzeCode:
		if a.PullRequest != nil {
			resp.PRNumber = a.PullRequest.Number
			resp.PRURL = a.PullRequest.URL
		}
	case policy.RouteManualIntervention:
		resp.RestartCount = a.RestartCount
		resp.Message = a.Message
	}
	st.Response = resp
	return st
}
