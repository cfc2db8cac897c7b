package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

const sourceUnavailable = "# Error: Could not retrieve application code"

// analyzeCode asks the LLM for a fix, files an issue, commits the fix on a new
// branch, opens a pull request, records an incident and annotates the
// dashboard.
func (e *Engine) analyzeCode(ctx context.Context, st State) State {
	if st.Err != nil || st.Analysis == nil || st.Analysis.Selected == nil {
		return st
	}
	issue := *st.Analysis.Selected
	log := e.log.With("pod", issue.PodName, "namespace", issue.Namespace, "type", issue.Type)

	fail := func(err error) State {
		log.Error("code analysis failed", "error", err)
		st.Err = fmt.Errorf("analyze code: %w", err)
		return st
	}

	logs, err := call(ctx, e, gateway.Pods, "get_logs", func(ctx context.Context) (string, error) {
		return e.deps.Pods.GetLogs(ctx, issue.Namespace, issue.PodName, e.cfg.LogTailLines)
	})
	if err != nil {
		return fail(err)
	}
	log.Info("retrieved pod logs", "bytes", len(logs))

	code, err := call(ctx, e, gateway.Pods, "get_source_code", func(ctx context.Context) (string, error) {
		return e.deps.Pods.GetSourceCode(ctx, issue.Namespace, issue.PodName)
	})
	if err != nil {
		log.Warn("source code unavailable, continuing without it", "error", err)
		code = sourceUnavailable
	}

	rawFix, err := call(ctx, e, gateway.LLM, "complete_fix", func(ctx context.Context) (string, error) {
		return e.deps.LLM.Complete(ctx, fixPrompt(issue, logs, code))
	})
	if err != nil {
		return fail(err)
	}
	fix := stripCodeFences(rawFix)
	log.Info("code fix generated", "bytes", len(fix))

	rawAnalysis, err := call(ctx, e, gateway.LLM, "complete_analysis", func(ctx context.Context) (string, error) {
		return e.deps.LLM.Complete(ctx, analysisPrompt(issue, logs, code, fix))
	})
	if err != nil {
		return fail(err)
	}
	proposal, err := parseProposal(rawAnalysis)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			log.Warn("LLM analysis was not valid JSON, using fallback", "error", perr.Err, "bytes", len(perr.Raw))
		}
		proposal = fallbackProposal(issue)
	}

	issueRef, err := call(ctx, e, gateway.Tracker, "create_issue", func(ctx context.Context) (gateway.IssueRef, error) {
		return e.deps.Tracker.CreateIssue(ctx,
			analysisIssueTitle(issue),
			analysisIssueBody(issue, proposal),
			[]string{string(issue.Type), "analysis", "needs-review"})
	})
	if err != nil {
		return fail(err)
	}

	branch := fmt.Sprintf("bug_fix/%d", issueRef.Number)
	base := e.cfg.BaseBranch
	if _, err := call(ctx, e, gateway.Tracker, "create_branch", func(ctx context.Context) (string, error) {
		return e.deps.Tracker.CreateBranch(ctx, branch, base)
	}); err != nil {
		return fail(err)
	}

	path, content := proposal.FixFile, proposal.FixCode
	if path == "" || content == "" {
		path = FallbackManifestPath
		content, err = FallbackManifest(issue)
		if err != nil {
			return fail(err)
		}
		log.Info("no usable fix from LLM, committing fallback manifest", "path", path)
	}

	commit, err := call(ctx, e, gateway.Tracker, "create_file", func(ctx context.Context) (string, error) {
		return e.deps.Tracker.CreateFile(ctx, path, content, commitMessage(issue), branch)
	})
	if err != nil {
		return fail(err)
	}

	prRef, err := call(ctx, e, gateway.Tracker, "create_pull_request", func(ctx context.Context) (gateway.IssueRef, error) {
		return e.deps.Tracker.CreatePullRequest(ctx,
			pullRequestTitle(issue, proposal),
			pullRequestBody(issue, proposal, issueRef.Number),
			branch, base)
	})
	if err != nil {
		return fail(err)
	}

	incident := e.newIncident(issue, ledger.ActionAnalyzeCode, &issueRef, &prRef)
	if err := e.deps.Ledger.AddIncident(ctx, incident); err != nil {
		return fail(err)
	}

	ack, err := e.annotate(ctx, analysisAnnotationText(issue),
		[]string{string(issue.Type), "analysis", "pr-created"})
	if err != nil {
		return fail(err)
	}
	e.publish(incident)

	st.Action = &Action{
		Type:         policy.RouteAnalyzeCode,
		Issue:        issue,
		RestartCount: st.Analysis.RestartCount,
		IssueRef:     &issueRef,
		PullRequest:  &prRef,
		Branch:       branch,
		Commit:       commit,
		Proposal:     &proposal,
		IncidentID:   incident.ID,
		Annotation:   &ack,
	}
	log.Info("code analysis completed", "incident_id", incident.ID, "pr_number", prRef.Number, "branch", branch)
	return st
}
