package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinkerbelle-io/kube-medic/internal/agent"
	"github.com/tinkerbelle-io/kube-medic/internal/engine"
	"github.com/tinkerbelle-io/kube-medic/internal/mcpserver"
)

var (
	flagInterval time.Duration
	flagJitter   time.Duration
	flagListen   string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run agent cycles on an interval and serve the HTTP endpoints",
	Long: `Run kube-medic as a daemon. Two loops run concurrently:
  1. Cycle loop: one agent cycle immediately, then one every --interval
  2. HTTP listener on --listen:
       /healthz        liveness plus Prometheus reachability
       /metrics        Prometheus metrics
       /mcp            MCP tools over streamable HTTP
       /ws/incidents   websocket feed of new incidents

SIGINT or SIGTERM stops both.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Cycle interval (default from config, 1m)")
	daemonCmd.Flags().DurationVar(&flagJitter, "jitter", -1, "Random ± spread applied to each interval (default from config, 5s)")
	daemonCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (default from config, :9464)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if flagInterval > 0 {
		cfg.Daemon.Interval = flagInterval
	}
	if flagJitter >= 0 {
		cfg.Daemon.Jitter = flagJitter
	}
	if flagListen != "" {
		cfg.Daemon.Listen = flagListen
	}

	app, err := newAgentApp(cfg, true)
	if err != nil {
		return err
	}
	defer app.Close()

	log := slog.Default().With("component", "daemon")
	mcpSrv := mcpserver.New(app.engine, rootCmd.Version)

	srv := &http.Server{
		Addr: cfg.Daemon.Listen,
		Handler: newDaemonMux(daemonHandlers{
			healthy: app.prom.Healthy,
			metrics: app.metrics.Handler(),
			mcp:     mcpSrv.HTTPHandler(),
			feed:    app.hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loop := agent.NewCycleLoop(agent.CycleLoopConfig{
		Interval: cfg.Daemon.Interval,
		Jitter:   cfg.Daemon.Jitter,
		Input:    engine.Input{},
	}, app.engine, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http listener started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type daemonHandlers struct {
	healthy func(ctx context.Context) bool
	metrics http.Handler
	mcp     http.Handler
	feed    http.Handler
}

func newDaemonMux(h daemonHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok", "prometheus": "unknown"}
		if h.healthy != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if h.healthy(ctx) {
				body["prometheus"] = "reachable"
			} else {
				body["prometheus"] = "unreachable"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	if h.mcp != nil {
		mux.Handle("/mcp", h.mcp)
	}
	if h.feed != nil {
		mux.Handle("/ws/incidents", h.feed)
	}
	return mux
}
