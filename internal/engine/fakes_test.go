package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/llm"
)

type fakeMetrics struct {
	mu     sync.Mutex
	series map[string][]gateway.MetricSample
	err    error
	block  bool
	calls  []string
}

func (f *fakeMetrics) Query(ctx context.Context, series string) ([]gateway.MetricSample, error) {
	f.mu.Lock()
	f.calls = append(f.calls, series)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.series[series], nil
}

type fakePods struct {
	mu         sync.Mutex
	pods       []gateway.PodInfo
	listErr    error
	restartErr error
	// restartDelay widens the window between a restart and its count.
	restartDelay time.Duration
	restartRes   *gateway.RestartResult
	sourceErr    error
	restarted    []string
	tailLines    int64
	listedNS     string
}

func (f *fakePods) Restart(ctx context.Context, namespace, pod string) (gateway.RestartResult, error) {
	if f.restartDelay > 0 {
		time.Sleep(f.restartDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return gateway.RestartResult{}, f.restartErr
	}
	f.restarted = append(f.restarted, namespace+"/"+pod)
	if f.restartRes != nil {
		return *f.restartRes, nil
	}
	return gateway.RestartResult{Success: true, Message: "restarted"}, nil
}

func (f *fakePods) ListPods(ctx context.Context, namespace string) ([]gateway.PodInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedNS = namespace
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pods, nil
}

func (f *fakePods) GetLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	f.mu.Lock()
	f.tailLines = tailLines
	f.mu.Unlock()
	return "ERROR [app-backend] Infinite loop detected in /api/process endpoint", nil
}

func (f *fakePods) GetSourceCode(ctx context.Context, namespace, pod string) (string, error) {
	if f.sourceErr != nil {
		return "", f.sourceErr
	}
	return "def process():\n    while True:\n        pass\n", nil
}

type fileCall struct {
	path, content, message, branch string
}

type fakeTracker struct {
	mu       sync.Mutex
	next     int
	issues   []string
	labels   [][]string
	branches []string
	bases    []string
	files    []fileCall
	prs      []string
	prBodies []string
	prHeads  []string
	err      error
}

func (f *fakeTracker) nextNumber() int {
	f.next++
	return f.next
}

func (f *fakeTracker) CreateIssue(ctx context.Context, title, body string, labels []string) (gateway.IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gateway.IssueRef{}, f.err
	}
	n := f.nextNumber() + 40
	f.issues = append(f.issues, title)
	f.labels = append(f.labels, labels)
	return gateway.IssueRef{Number: n, URL: fmt.Sprintf("https://github.com/acme/shop/issues/%d", n)}, nil
}

func (f *fakeTracker) CreateBranch(ctx context.Context, name, base string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches = append(f.branches, name)
	f.bases = append(f.bases, base)
	return "refs/heads/" + name, nil
}

func (f *fakeTracker) CreateFile(ctx context.Context, path, content, message, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, fileCall{path, content, message, branch})
	return "commit-sha", nil
}

func (f *fakeTracker) CreatePullRequest(ctx context.Context, title, body, head, base string) (gateway.IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nextNumber() + 40
	f.prs = append(f.prs, title)
	f.prBodies = append(f.prBodies, body)
	f.prHeads = append(f.prHeads, head)
	return gateway.IssueRef{Number: n, URL: fmt.Sprintf("https://github.com/acme/shop/pull/%d", n)}, nil
}

type fakeAnnotator struct {
	mu          sync.Mutex
	annotations []gateway.Annotation
	err         error
}

func (f *fakeAnnotator) CreateAnnotation(ctx context.Context, a gateway.Annotation) (gateway.AnnotationAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gateway.AnnotationAck{}, f.err
	}
	f.annotations = append(f.annotations, a)
	return gateway.AnnotationAck{ID: int64(len(f.annotations)), Message: "Annotation added"}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []any
}

func (f *fakePublisher) Publish(eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data)
}

type harness struct {
	engine    *Engine
	metrics   *fakeMetrics
	pods      *fakePods
	tracker   *fakeTracker
	annotator *fakeAnnotator
	llm       *llm.Scripted
	ledger    *ledger.MemoryStore
	publisher *fakePublisher
}

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func sample(instance string, v float64) gateway.MetricSample {
	return gateway.MetricSample{Labels: map[string]string{"instance": instance}, Value: v, Timestamp: fixedNow.Unix()}
}

// newHarness builds an engine over fakes with one pod "app-backend-5d8d9b7f9c-abcd1"
// reporting the given CPU percentage.
func newHarness(cpu float64, mutate ...func(*Config, *Deps)) *harness {
	h := &harness{
		metrics: &fakeMetrics{series: map[string][]gateway.MetricSample{
			"app_cpu_usage_percent":  {sample("app-backend-5d8d9b7f9c-abcd1:8000", cpu)},
			"app_memory_usage_bytes": {sample("app-backend-5d8d9b7f9c-abcd1:8000", 100_000_000)},
		}},
		pods: &fakePods{pods: []gateway.PodInfo{
			{Name: "app-backend-5d8d9b7f9c-abcd1", Namespace: "default", Status: "Running", Containers: []string{"app-backend"}},
		}},
		tracker:   &fakeTracker{},
		annotator: &fakeAnnotator{},
		llm:       llm.NewScripted(),
		ledger:    ledger.NewMemoryStore(ledger.WithClock(func() time.Time { return fixedNow })),
		publisher: &fakePublisher{},
	}
	cfg := DefaultConfig()
	var idMu sync.Mutex
	ids := 0
	deps := Deps{
		Metrics:   h.metrics,
		Pods:      h.pods,
		Tracker:   h.tracker,
		Annotator: h.annotator,
		LLM:       h.llm,
		Ledger:    h.ledger,
		Publisher: h.publisher,
		Now:       func() time.Time { return fixedNow },
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			ids++
			return fmt.Sprintf("incident-%d", ids)
		},
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	e, err := New(cfg, deps)
	if err != nil {
		panic(err)
	}
	h.engine = e
	return h
}

func (h *harness) seedRestarts(n int) {
	for range n {
		h.ledger.IncrementRestartCount(context.Background(), "app-backend-5d8d9b7f9c-abcd1", "default")
	}
}

func (h *harness) incidents() []ledger.Incident {
	ins, _ := h.ledger.Incidents(context.Background(), ledger.Filter{})
	return ins
}

var errBoom = errors.New("connection refused")
