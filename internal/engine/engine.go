// Package engine runs the monitor, analyze, decide, act and respond pipeline
// that restarts misbehaving pods and escalates repeat offenders to code
// analysis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
	"github.com/tinkerbelle-io/kube-medic/internal/remediation"
	"github.com/tinkerbelle-io/kube-medic/internal/telemetry"
)

// Publisher receives every incident the engine records.
type Publisher interface {
	Publish(eventType string, data any)
}

// Deps are the collaborators an Engine drives. Breaker, Telemetry and
// Publisher are optional.
type Deps struct {
	Metrics   gateway.MetricGateway
	Pods      gateway.PodController
	Tracker   gateway.IssueTracker
	Annotator gateway.Annotator
	LLM       gateway.Completer
	Ledger    ledger.Store

	Breaker   *remediation.CircuitBreaker
	Telemetry *telemetry.Metrics
	Publisher Publisher

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Engine executes agent cycles. It is safe for concurrent use; runs share only
// the ledger, breaker, telemetry and publisher.
type Engine struct {
	cfg     Config
	deps    Deps
	targets *targetLocks
	log     *slog.Logger
}

// New validates deps and returns an engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Metrics == nil:
		return nil, errors.New("engine: metric gateway is required")
	case deps.Pods == nil:
		return nil, errors.New("engine: pod controller is required")
	case deps.Tracker == nil:
		return nil, errors.New("engine: issue tracker is required")
	case deps.Annotator == nil:
		return nil, errors.New("engine: annotator is required")
	case deps.LLM == nil:
		return nil, errors.New("engine: completer is required")
	case deps.Ledger == nil:
		return nil, errors.New("engine: ledger is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		deps:    deps,
		targets: newTargetLocks(),
		log:     slog.Default().With("component", "engine"),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// RunCycle executes one pipeline run and returns its response. Failures are
// reported in the response, never as a Go error.
func (e *Engine) RunCycle(ctx context.Context, input Input) Response {
	start := e.deps.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	e.log.Info("starting agent run")
	if removed, err := e.deps.Ledger.ClearOldRestartCounts(ctx); err != nil {
		e.log.Warn("failed to clear stale restart counters", "error", err)
	} else if removed > 0 {
		e.log.Info("cleared stale restart counters", "removed", removed)
	}

	st := State{Input: input}
	st = e.monitor(ctx, st)
	st = e.analyze(st)
	st = e.act(ctx, st)
	st = e.formatResponse(st)

	e.deps.Telemetry.ObserveCycle(st.Response.Status, string(st.Response.Action), e.deps.Now().Sub(start))
	e.log.Info("agent run completed", "status", st.Response.Status, "action", st.Response.Action)
	return st.Response
}

// act runs decide and the chosen branch while holding the selected pod's
// lock, so the restart count decide reads is the one the branch acts on.
func (e *Engine) act(ctx context.Context, st State) State {
	if st.Err == nil {
		if issue, ok := policy.MostSevere(st.Analysis.Issues); ok {
			key := issue.Namespace + "/" + issue.PodName
			release, err := e.targets.acquire(ctx, key)
			if err != nil {
				st.Err = fmt.Errorf("wait for in-flight run on %s: %w", key, err)
				return st
			}
			defer release()
		}
	}

	st = e.decide(ctx, st)
	switch st.Route {
	case policy.RouteRemediate:
		st = e.remediate(ctx, st)
	case policy.RouteAnalyzeCode:
		st = e.analyzeCode(ctx, st)
	case policy.RouteManualIntervention:
		st = e.manualIntervention(ctx, st)
	}
	return st
}

// ListIncidents returns ledger incidents newest first.
func (e *Engine) ListIncidents(ctx context.Context, f ledger.Filter) ([]ledger.Incident, error) {
	return e.deps.Ledger.Incidents(ctx, f)
}

// RestartCounts returns today's restart counters.
func (e *Engine) RestartCounts(ctx context.Context) ([]ledger.RestartCounter, error) {
	return e.deps.Ledger.RestartCounts(ctx)
}

// call runs fn under the gateway timeout. It returns when fn does or when the
// deadline passes, whichever comes first, and wraps failures as gateway errors.
func call[T any](ctx context.Context, e *Engine, gw, op string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	var (
		v   T
		err error
	)
	select {
	case r := <-ch:
		v, err = r.v, r.err
	case <-cctx.Done():
		err = cctx.Err()
	}
	if err == nil {
		return v, nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	err = gateway.Wrap(gw, op, err)
	e.deps.Telemetry.GatewayError(gw, gateway.IsTimeout(err))
	return v, err
}
