// Package agent schedules pipeline runs for the daemon.
package agent

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/engine"
)

// Runner executes one pipeline run.
type Runner interface {
	RunCycle(ctx context.Context, input engine.Input) engine.Response
}

// CycleLoopConfig controls the schedule.
type CycleLoopConfig struct {
	Interval time.Duration
	// Jitter spreads runs by up to ±Jitter so replicas do not fire together.
	Jitter time.Duration
	Input  engine.Input
}

// CycleLoop runs the pipeline immediately and then on every interval until
// its context is cancelled.
type CycleLoop struct {
	cfg    CycleLoopConfig
	runner Runner
	log    *slog.Logger
	rand   func() float64
}

// NewCycleLoop creates a loop. A nil logger uses slog.Default.
func NewCycleLoop(cfg CycleLoopConfig, runner Runner, logger *slog.Logger) *CycleLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &CycleLoop{
		cfg:    cfg,
		runner: runner,
		log:    logger.With("component", "cycle-loop"),
		rand:   rand.Float64,
	}
}

// Run blocks until ctx is done. It always returns nil so it can sit in an
// errgroup beside the HTTP listener.
func (l *CycleLoop) Run(ctx context.Context) error {
	l.log.Info("cycle loop started", "interval", l.cfg.Interval, "jitter", l.cfg.Jitter)
	l.runOnce(ctx)

	for {
		wait := l.nextWait()
		l.log.Debug("next cycle scheduled", "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Info("cycle loop stopped")
			return nil
		case <-timer.C:
			l.runOnce(ctx)
		}
	}
}

func (l *CycleLoop) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	resp := l.runner.RunCycle(ctx, l.cfg.Input)
	if resp.Status == engine.StatusError {
		l.log.Warn("cycle failed", "error", resp.Error, "duration", time.Since(start))
		return
	}
	l.log.Info("cycle complete",
		"action", resp.Action,
		"pod", resp.PodName,
		"incident_id", resp.IncidentID,
		"duration", time.Since(start),
	)
}

func (l *CycleLoop) nextWait() time.Duration {
	if l.cfg.Jitter <= 0 {
		return l.cfg.Interval
	}
	j := time.Duration((l.rand() - 0.5) * 2 * float64(l.cfg.Jitter))
	wait := l.cfg.Interval + j
	if wait < 0 {
		return 0
	}
	return wait
}
