package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
	"github.com/tinkerbelle-io/kube-medic/internal/remediation"
)

const pod = "app-backend-5d8d9b7f9c-abcd1"

func TestNoIssuesNoAction(t *testing.T) {
	h := newHarness(5)

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess || resp.Action != policy.RouteNoAction {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Message != "No issues detected" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(h.pods.restarted) != 0 || len(h.incidents()) != 0 || len(h.annotator.annotations) != 0 {
		t.Error("no_action should have no side effects")
	}
	if len(h.metrics.calls) != 4 {
		t.Errorf("expected 4 metric queries, got %v", h.metrics.calls)
	}
}

// 15% against a 10% threshold is exactly 1.5x, so a fresh pod gets a
// medium-severity restart.
func TestBreachOnFreshPodRestarts(t *testing.T) {
	h := newHarness(15)

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess || resp.Action != policy.RouteRemediate {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.PodName != pod || resp.Namespace != "default" || resp.IssueType != policy.IssueCPU {
		t.Errorf("unexpected target: %+v", resp)
	}
	if resp.RestartCount != 1 {
		t.Errorf("restart_count = %d, want 1", resp.RestartCount)
	}
	if resp.IssueNumber != 41 || !strings.HasSuffix(resp.IssueURL, "/issues/41") {
		t.Errorf("issue ref = %d %q", resp.IssueNumber, resp.IssueURL)
	}

	if len(h.pods.restarted) != 1 || h.pods.restarted[0] != "default/"+pod {
		t.Errorf("restarted = %v", h.pods.restarted)
	}
	count, _ := h.ledger.RestartCount(context.Background(), pod, "default")
	if count != 1 {
		t.Errorf("ledger restart count = %d, want 1", count)
	}

	incidents := h.incidents()
	if len(incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incidents))
	}
	in := incidents[0]
	if in.ActionTaken != ledger.ActionRestartPod || in.Severity != policy.SeverityMedium || in.ID != resp.IncidentID {
		t.Errorf("unexpected incident: %+v", in)
	}
	if in.IssueRef == nil || in.IssueRef.Number != 41 || in.PullRequestRef != nil {
		t.Errorf("unexpected refs: %+v %+v", in.IssueRef, in.PullRequestRef)
	}
	if in.Metrics.Value != 15 || in.Metrics.Threshold != 10 || in.Timestamp != fixedNow.Unix() {
		t.Errorf("unexpected metrics: %+v", in)
	}

	if got := h.tracker.labels[0]; strings.Join(got, ",") != "cpu,auto-remediated,medium" {
		t.Errorf("issue labels = %v", got)
	}
	if len(h.annotator.annotations) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(h.annotator.annotations))
	}
	ann := h.annotator.annotations[0]
	if strings.Join(ann.Tags, ",") != "cpu,auto-remediated,medium" || ann.DashboardID != 1 || ann.TimeMs != fixedNow.UnixMilli() {
		t.Errorf("unexpected annotation: %+v", ann)
	}
	if len(h.publisher.events) != 1 {
		t.Errorf("expected incident published once, got %d", len(h.publisher.events))
	}
	if h.llm.Calls() != 0 {
		t.Error("remediation should not call the LLM")
	}
}

// The same breach after four restarts today escalates to a code fix.
func TestRepeatOffenderEscalatesToCodeFix(t *testing.T) {
	h := newHarness(15)
	h.seedRestarts(4)
	h.llm.Responses = []string{
		"```python\ndef process():\n    return compute_once()\n```",
		"```json\n" + `{"analysis":"busy loop in process","fix_description":"remove loop","fix_code":"def process():\n    return compute_once()\n","fix_file":"src/app/app.py","pr_title":"Remove busy loop","pr_body":"Replaces the loop."}` + "\n```",
	}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess || resp.Action != policy.RouteAnalyzeCode {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.IssueNumber != 41 || resp.PRNumber != 42 || !strings.HasSuffix(resp.PRURL, "/pull/42") {
		t.Errorf("unexpected refs: %+v", resp)
	}

	if len(h.pods.restarted) != 0 {
		t.Error("analyze_code must not restart the pod")
	}
	if h.pods.tailLines != 1000 {
		t.Errorf("tail lines = %d, want 1000", h.pods.tailLines)
	}
	if h.llm.Calls() != 2 {
		t.Fatalf("expected two LLM calls, got %d", h.llm.Calls())
	}
	if !strings.Contains(h.llm.Prompts[1], "return compute_once()") || strings.Contains(h.llm.Prompts[1], "```python") {
		t.Error("second prompt should carry the fence-stripped fix")
	}

	if strings.Join(h.tracker.labels[0], ",") != "cpu,analysis,needs-review" {
		t.Errorf("issue labels = %v", h.tracker.labels[0])
	}
	if h.tracker.branches[0] != "bug_fix/41" || h.tracker.bases[0] != "develop" {
		t.Errorf("branch = %v from %v", h.tracker.branches, h.tracker.bases)
	}
	file := h.tracker.files[0]
	if file.path != "src/app/app.py" || file.branch != "bug_fix/41" || !strings.Contains(file.content, "compute_once") {
		t.Errorf("unexpected file: %+v", file)
	}
	if file.message != "Fix high cpu usage in "+pod {
		t.Errorf("commit message = %q", file.message)
	}
	if h.tracker.prs[0] != "Remove busy loop" || h.tracker.prHeads[0] != "bug_fix/41" {
		t.Errorf("pr = %v head %v", h.tracker.prs, h.tracker.prHeads)
	}
	if !strings.Contains(h.tracker.prBodies[0], "Closes #41") {
		t.Errorf("pr body should close the issue: %q", h.tracker.prBodies[0])
	}

	incidents := h.incidents()
	if len(incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incidents))
	}
	in := incidents[0]
	if in.ActionTaken != ledger.ActionAnalyzeCode || in.PullRequestRef == nil || in.PullRequestRef.Number != 42 {
		t.Errorf("unexpected incident: %+v", in)
	}
	if strings.Join(h.annotator.annotations[0].Tags, ",") != "cpu,analysis,pr-created" {
		t.Errorf("annotation tags = %v", h.annotator.annotations[0].Tags)
	}
	count, _ := h.ledger.RestartCount(context.Background(), pod, "default")
	if count != 4 {
		t.Errorf("analyze_code must not bump the restart count, got %d", count)
	}
}

// A metric gateway failure yields an error response and no incident.
func TestMetricFailureIsErrorResponse(t *testing.T) {
	h := newHarness(15)
	h.metrics.err = errBoom

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if !strings.Contains(resp.Error, "connection refused") || !strings.Contains(resp.Error, "metrics") {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Action != "" {
		t.Errorf("error response should carry no action, got %q", resp.Action)
	}
	if len(h.incidents()) != 0 || len(h.pods.restarted) != 0 {
		t.Error("monitor failure must not cause side effects")
	}
	if len(h.metrics.calls) != 1 {
		t.Errorf("later queries should be skipped, got %v", h.metrics.calls)
	}
}

func TestPodListingFailureIsReportedAsPods(t *testing.T) {
	h := newHarness(15)
	h.pods.listErr = errors.New("forbidden: cannot list pods")

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if !strings.Contains(resp.Error, "monitor pods") || strings.Contains(resp.Error, "monitor metrics") {
		t.Errorf("error = %q", resp.Error)
	}
	if len(h.pods.restarted) != 0 || len(h.incidents()) != 0 {
		t.Error("pod listing failure must not cause side effects")
	}
}

func TestRoutingByRestartCount(t *testing.T) {
	tests := []struct {
		name    string
		seed    int
		want    policy.Route
		restart bool
	}{
		{"fresh pod", 0, policy.RouteRemediate, true},
		{"below threshold", 3, policy.RouteRemediate, true},
		{"at threshold", 4, policy.RouteAnalyzeCode, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(20)
			h.seedRestarts(tt.seed)
			h.llm.Responses = []string{"fix", "not json"}

			resp := h.engine.RunCycle(context.Background(), nil)
			if resp.Action != tt.want {
				t.Fatalf("action = %q (error %q), want %q", resp.Action, resp.Error, tt.want)
			}
			if got := len(h.pods.restarted) == 1; got != tt.restart {
				t.Errorf("restarted = %v, want %v", h.pods.restarted, tt.restart)
			}
		})
	}
}

func TestMostSevereIssueIsActedOn(t *testing.T) {
	h := newHarness(11)
	h.pods.pods = append(h.pods.pods, gateway.PodInfo{Name: "worker-6c9f8d7b5-zz9k2", Namespace: "batch"})
	h.metrics.series["app_memory_usage_bytes"] = []gateway.MetricSample{
		sample("worker-6c9f8d7b5-zz9k2:9100", 1_000_000_000),
	}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.PodName != "worker-6c9f8d7b5-zz9k2" || resp.Namespace != "batch" || resp.IssueType != policy.IssueMemory {
		t.Errorf("expected high memory issue on worker, got %+v", resp)
	}
}

func TestParseFailureUsesFallbackManifest(t *testing.T) {
	h := newHarness(15)
	h.seedRestarts(4)
	h.llm.Responses = []string{"def f(): pass", "I think the problem is the loop."}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess || resp.Action != policy.RouteAnalyzeCode {
		t.Fatalf("parse failure must not fail the run: %+v", resp)
	}
	file := h.tracker.files[0]
	if file.path != FallbackManifestPath {
		t.Errorf("path = %q, want fallback manifest", file.path)
	}
	for _, want := range []string{"kind: Deployment", "replicas: 2", "cpu: 200m", "name: app-backend"} {
		if !strings.Contains(file.content, want) {
			t.Errorf("fallback manifest missing %q:\n%s", want, file.content)
		}
	}
	if h.tracker.prs[0] != "Fix high cpu usage in "+pod {
		t.Errorf("pr title = %q", h.tracker.prs[0])
	}
	if !strings.Contains(h.tracker.prBodies[0], "Failed to generate PR body") || !strings.Contains(h.tracker.prBodies[0], "Closes #41") {
		t.Errorf("pr body = %q", h.tracker.prBodies[0])
	}
}

func TestSourceCodeFailureIsSoft(t *testing.T) {
	h := newHarness(15)
	h.seedRestarts(4)
	h.pods.sourceErr = errors.New("configmap not found")
	h.llm.Responses = []string{"fix", `{"analysis":"a","fix_code":"x","fix_file":"main.py"}`}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess {
		t.Fatalf("source failure should not fail the run: %+v", resp)
	}
	if !strings.Contains(h.llm.Prompts[0], sourceUnavailable) {
		t.Error("prompt should carry the placeholder source")
	}
}

func TestLLMFailureAbortsAnalysis(t *testing.T) {
	h := newHarness(15)
	h.seedRestarts(4)
	h.llm.Err = errors.New("rate limited")

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError || !strings.Contains(resp.Error, "rate limited") {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(h.tracker.issues) != 0 || len(h.incidents()) != 0 {
		t.Error("no issue or incident should be created")
	}
}

func TestRestartUnsuccessfulIsError(t *testing.T) {
	h := newHarness(15)
	h.pods.restartRes = &gateway.RestartResult{Success: false, Message: "pod not found"}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError || !strings.Contains(resp.Error, "pod not found") {
		t.Fatalf("unexpected response: %+v", resp)
	}
	count, _ := h.ledger.RestartCount(context.Background(), pod, "default")
	if count != 0 || len(h.incidents()) != 0 {
		t.Error("failed restart must not be counted or recorded")
	}
}

func TestAnnotationFailureKeepsPriorSideEffects(t *testing.T) {
	h := newHarness(15)
	h.annotator.err = errors.New("grafana down")

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError {
		t.Fatalf("expected error, got %+v", resp)
	}
	count, _ := h.ledger.RestartCount(context.Background(), pod, "default")
	if count != 1 || len(h.incidents()) != 1 || len(h.tracker.issues) != 1 {
		t.Error("side effects before the failure should stand")
	}
	if len(h.publisher.events) != 0 {
		t.Error("incident should not be published after a failed run")
	}
}

func TestGatewayTimeout(t *testing.T) {
	h := newHarness(15, func(c *Config, d *Deps) {
		c.GatewayTimeout = 20 * time.Millisecond
	})
	h.metrics.block = true

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusError || !strings.Contains(resp.Error, "gateway timeout") {
		t.Fatalf("expected gateway timeout, got %+v", resp)
	}
}

func TestCallTimesOutOnUncooperativeGateway(t *testing.T) {
	h := newHarness(15, func(c *Config, d *Deps) {
		c.GatewayTimeout = 20 * time.Millisecond
	})
	release := make(chan struct{})
	defer close(release)

	_, err := call(context.Background(), h.engine, gateway.LLM, "complete", func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})
	var ge *gateway.Error
	if !errors.As(err, &ge) || !ge.Timeout || ge.Gateway != gateway.LLM {
		t.Fatalf("expected LLM timeout, got %v", err)
	}
}

func TestManualIntervention(t *testing.T) {
	h := newHarness(15, func(c *Config, d *Deps) {
		c.Thresholds.AnalysisThreshold = 8
		c.Thresholds.MaxRestartsPerDay = 5
	})
	h.seedRestarts(5)

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Status != StatusSuccess || resp.Action != policy.RouteManualIntervention {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RestartCount != 5 || !strings.Contains(resp.Message, "manual intervention") {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(h.pods.restarted) != 0 || len(h.incidents()) != 0 {
		t.Error("manual intervention must not restart or record")
	}
	if strings.Join(h.annotator.annotations[0].Tags, ",") != "cpu,manual-intervention,medium" {
		t.Errorf("tags = %v", h.annotator.annotations[0].Tags)
	}
}

func TestMaxRestartsNotEnforced(t *testing.T) {
	h := newHarness(15, func(c *Config, d *Deps) {
		c.Thresholds.AnalysisThreshold = 8
		c.Thresholds.MaxRestartsPerDay = 5
		c.Thresholds.EnforceMaxRestarts = false
	})
	h.seedRestarts(5)

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Action != policy.RouteRemediate || resp.RestartCount != 6 {
		t.Errorf("expected fall-through to remediate, got %+v", resp)
	}
}

func TestCircuitBreakerBlocksRestart(t *testing.T) {
	breaker := remediation.NewCircuitBreaker(10, time.Hour)
	h := newHarness(15, func(c *Config, d *Deps) {
		d.Breaker = breaker
	})

	first := h.engine.RunCycle(context.Background(), nil)
	if first.Action != policy.RouteRemediate {
		t.Fatalf("first run should remediate: %+v", first)
	}
	second := h.engine.RunCycle(context.Background(), nil)
	if second.Status != StatusError || !strings.Contains(second.Error, "too recently") {
		t.Fatalf("second run should be blocked by cooldown: %+v", second)
	}
	if len(h.pods.restarted) != 1 {
		t.Errorf("restarted = %v", h.pods.restarted)
	}
}

func TestNamespaceOverride(t *testing.T) {
	h := newHarness(5)
	h.engine.RunCycle(context.Background(), Input{"namespace": "shop"})
	if h.pods.listedNS != "shop" {
		t.Errorf("listed namespace = %q, want shop", h.pods.listedNS)
	}
	h.engine.RunCycle(context.Background(), nil)
	if h.pods.listedNS != "default" {
		t.Errorf("listed namespace = %q, want default", h.pods.listedNS)
	}
}

func TestRunClearsStaleCounters(t *testing.T) {
	now := fixedNow
	h := newHarness(5)
	h.ledger = ledger.NewMemoryStore(ledger.WithClock(func() time.Time { return now }))
	h.engine.deps.Ledger = h.ledger
	h.seedRestarts(2)

	now = now.Add(24 * time.Hour)
	h.engine.RunCycle(context.Background(), nil)

	counts, _ := h.engine.RestartCounts(context.Background())
	if len(counts) != 0 {
		t.Errorf("stale counters should be cleared, got %+v", counts)
	}
}

func TestListIncidents(t *testing.T) {
	h := newHarness(15)
	h.engine.RunCycle(context.Background(), nil)

	ins, err := h.engine.ListIncidents(context.Background(), ledger.Filter{PodName: pod, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(ins) != 1 || ins[0].ID != "incident-1" {
		t.Errorf("incidents = %+v", ins)
	}
}

func TestZeroConfigUsesDefaultThresholds(t *testing.T) {
	h := newHarness(15, func(c *Config, d *Deps) {
		*c = Config{}
	})
	cfg := h.engine.Config()
	if cfg.Thresholds != policy.DefaultThresholds() || cfg.DashboardID != 1 {
		t.Errorf("effective config = %+v", cfg)
	}

	resp := h.engine.RunCycle(context.Background(), nil)
	if resp.Action != policy.RouteRemediate {
		t.Fatalf("fresh pod at 15%% should be restarted, got %+v", resp)
	}
	if h.annotator.annotations[0].DashboardID != 1 {
		t.Errorf("dashboard = %d", h.annotator.annotations[0].DashboardID)
	}
}

func TestPartialThresholdsKeepSetFields(t *testing.T) {
	h := newHarness(5, func(c *Config, d *Deps) {
		*c = Config{Thresholds: policy.Thresholds{CPUPercent: 50}}
	})
	th := h.engine.Config().Thresholds
	if th.CPUPercent != 50 || th.AnalysisThreshold != 4 || th.MemoryBytes != 600_000_000 || th.MaxRestartsPerDay != 10 {
		t.Errorf("thresholds = %+v", th)
	}
}

func TestOverlappingRunsOnSamePodSerialise(t *testing.T) {
	h := newHarness(15)
	h.seedRestarts(3)
	h.pods.restartDelay = 30 * time.Millisecond
	h.llm.Responses = []string{"fix", "not json"}

	var wg sync.WaitGroup
	responses := make([]Response, 2)
	for i := range responses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = h.engine.RunCycle(context.Background(), nil)
		}()
	}
	wg.Wait()

	actions := map[policy.Route]int{}
	for _, r := range responses {
		if r.Status != StatusSuccess {
			t.Fatalf("unexpected response: %+v", r)
		}
		actions[r.Action]++
	}
	if actions[policy.RouteRemediate] != 1 || actions[policy.RouteAnalyzeCode] != 1 {
		t.Errorf("actions = %v, want one restart then one escalation", actions)
	}
	if len(h.pods.restarted) != 1 {
		t.Errorf("restarted = %v", h.pods.restarted)
	}
	count, _ := h.ledger.RestartCount(context.Background(), pod, "default")
	if count != 4 {
		t.Errorf("restart count = %d, want 4", count)
	}
	if n := h.engine.targets.held("default/" + pod); n != 0 {
		t.Errorf("target lock still referenced %d times", n)
	}
}

func TestTargetLockHonoursContext(t *testing.T) {
	locks := newTargetLocks()
	release, err := locks.acquire(context.Background(), "default/a")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locks.acquire(ctx, "default/a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while held, got %v", err)
	}
	other, err := locks.acquire(context.Background(), "default/b")
	if err != nil {
		t.Fatalf("other pods must not be blocked: %v", err)
	}
	other()

	release()
	again, err := locks.acquire(context.Background(), "default/a")
	if err != nil {
		t.Fatal(err)
	}
	again()
	if n := locks.held("default/a"); n != 0 {
		t.Errorf("held = %d after release", n)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}
