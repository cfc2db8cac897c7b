package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// remediate restarts the pod, counts the restart, files an issue, records an
// incident and annotates the dashboard. Side effects made before a failure
// are kept.
func (e *Engine) remediate(ctx context.Context, st State) State {
	if st.Err != nil || st.Analysis == nil || st.Analysis.Selected == nil {
		return st
	}
	issue := *st.Analysis.Selected
	log := e.log.With("pod", issue.PodName, "namespace", issue.Namespace, "type", issue.Type)

	fail := func(err error) State {
		log.Error("remediation failed", "error", err)
		st.Err = fmt.Errorf("remediate issue: %w", err)
		return st
	}

	if e.deps.Breaker != nil {
		if err := e.deps.Breaker.Check(issue.Namespace, issue.PodName); err != nil {
			e.deps.Telemetry.RestartBlocked()
			return fail(err)
		}
	}

	log.Info("restarting pod", "severity", issue.Severity, "value", issue.Value, "threshold", issue.Threshold)
	res, err := call(ctx, e, gateway.Pods, "restart", func(ctx context.Context) (gateway.RestartResult, error) {
		return e.deps.Pods.Restart(ctx, issue.Namespace, issue.PodName)
	})
	if err != nil {
		return fail(err)
	}
	if !res.Success {
		return fail(gateway.Wrap(gateway.Pods, "restart", errors.New(res.Message)))
	}
	if e.deps.Breaker != nil {
		e.deps.Breaker.Record(issue.Namespace, issue.PodName)
	}

	count, err := e.deps.Ledger.IncrementRestartCount(ctx, issue.PodName, issue.Namespace)
	if err != nil {
		return fail(err)
	}
	log.Info("pod restarted", "restart_count", count, "message", res.Message)

	ref, err := call(ctx, e, gateway.Tracker, "create_issue", func(ctx context.Context) (gateway.IssueRef, error) {
		return e.deps.Tracker.CreateIssue(ctx,
			remediationIssueTitle(issue),
			remediationIssueBody(issue, count, st.Analysis.Timestamp),
			[]string{string(issue.Type), "auto-remediated", string(issue.Severity)})
	})
	if err != nil {
		return fail(err)
	}

	incident := e.newIncident(issue, ledger.ActionRestartPod, &ref, nil)
	if err := e.deps.Ledger.AddIncident(ctx, incident); err != nil {
		return fail(err)
	}

	ack, err := e.annotate(ctx, remediationAnnotationText(issue),
		[]string{string(issue.Type), "auto-remediated", string(issue.Severity)})
	if err != nil {
		return fail(err)
	}
	e.publish(incident)

	st.Action = &Action{
		Type:         policy.RouteRemediate,
		Issue:        issue,
		RestartCount: count,
		Restart:      &res,
		IssueRef:     &ref,
		IncidentID:   incident.ID,
		Annotation:   &ack,
	}
	log.Info("remediation completed", "incident_id", incident.ID, "issue_number", ref.Number)
	return st
}

// manualIntervention annotates the dashboard instead of restarting a pod that
// has used up its daily restart budget.
func (e *Engine) manualIntervention(ctx context.Context, st State) State {
	if st.Err != nil || st.Analysis == nil || st.Analysis.Selected == nil {
		return st
	}
	issue := *st.Analysis.Selected
	count := st.Analysis.RestartCount
	msg := fmt.Sprintf("Pod %s reached %d automated restarts today (limit %d); manual intervention required",
		issue.PodName, count, e.cfg.Thresholds.MaxRestartsPerDay)

	e.log.Warn("restart budget exhausted", "pod", issue.PodName, "namespace", issue.Namespace, "restart_count", count)
	ack, err := e.annotate(ctx, msg,
		[]string{string(issue.Type), "manual-intervention", string(issue.Severity)})
	if err != nil {
		st.Err = fmt.Errorf("request manual intervention: %w", err)
		return st
	}

	st.Action = &Action{
		Type:         policy.RouteManualIntervention,
		Issue:        issue,
		RestartCount: count,
		Annotation:   &ack,
		Message:      msg,
	}
	return st
}

func (e *Engine) newIncident(issue policy.Issue, action ledger.ActionTaken, issueRef, prRef *gateway.IssueRef) ledger.Incident {
	in := ledger.Incident{
		ID:        e.deps.NewID(),
		Type:      issue.Type,
		PodName:   issue.PodName,
		Namespace: issue.Namespace,
		Timestamp: e.deps.Now().Unix(),
		Severity:  issue.Severity,
		Metrics: ledger.IncidentMetrics{
			Value:     issue.Value,
			Threshold: issue.Threshold,
		},
		ActionTaken: action,
	}
	if issueRef != nil {
		in.IssueRef = &ledger.Ref{Number: issueRef.Number, URL: issueRef.URL}
	}
	if prRef != nil {
		in.PullRequestRef = &ledger.Ref{Number: prRef.Number, URL: prRef.URL}
	}
	return in
}

func (e *Engine) annotate(ctx context.Context, text string, tags []string) (gateway.AnnotationAck, error) {
	return call(ctx, e, gateway.Annotations, "create_annotation", func(ctx context.Context) (gateway.AnnotationAck, error) {
		return e.deps.Annotator.CreateAnnotation(ctx, gateway.Annotation{
			DashboardID: e.cfg.DashboardID,
			TimeMs:      e.deps.Now().UnixMilli(),
			Text:        text,
			Tags:        tags,
		})
	})
}

func (e *Engine) publish(in ledger.Incident) {
	if e.deps.Publisher != nil {
		e.deps.Publisher.Publish("incident", in)
	}
}
