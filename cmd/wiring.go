package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/engine"
	"github.com/tinkerbelle-io/kube-medic/internal/feed"
	"github.com/tinkerbelle-io/kube-medic/internal/github"
	"github.com/tinkerbelle-io/kube-medic/internal/grafana"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/llm"
	"github.com/tinkerbelle-io/kube-medic/internal/prom"
	"github.com/tinkerbelle-io/kube-medic/internal/remediation"
	"github.com/tinkerbelle-io/kube-medic/internal/telemetry"
)

// agentApp is a fully wired engine plus the shared pieces the daemon serves.
type agentApp struct {
	cfg     *config.Config
	engine  *engine.Engine
	ledger  ledger.Store
	metrics *telemetry.Metrics
	prom    *prom.Gateway
	hub     *feed.Hub
}

func (a *agentApp) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.ledger.Close(); err != nil {
		slog.Warn("failed to close ledger", "error", err)
	}
}

// openLedger opens the configured ledger backend.
func openLedger(cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerJournal:
		return ledger.OpenJournalStore(cfg.LedgerPath())
	case config.LedgerSQLite:
		path := cfg.LedgerPath()
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		return ledger.OpenSQLite(path)
	default:
		return ledger.NewMemoryStore(), nil
	}
}

// newAgentApp connects every gateway. withFeed adds the websocket hub as the
// incident publisher.
func newAgentApp(cfg *config.Config, withFeed bool) (*agentApp, error) {
	promGW, err := prom.New(cfg.Prometheus.URL)
	if err != nil {
		return nil, err
	}

	clientset, err := remediation.NewClientset(cfg.Kubernetes.Kubeconfig)
	if err != nil {
		return nil, err
	}

	completer, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}

	store, err := openLedger(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	app := &agentApp{
		cfg:     cfg,
		ledger:  store,
		metrics: telemetry.New(),
		prom:    promGW,
	}

	deps := engine.Deps{
		Metrics:   promGW,
		Pods:      remediation.NewPodController(clientset, cfg.Kubernetes.DryRun),
		Tracker:   github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo),
		Annotator: grafana.NewClient(cfg.Grafana.URL, cfg.Grafana.APIKey),
		LLM:       completer,
		Ledger:    store,
		Breaker:   remediation.NewCircuitBreaker(cfg.Breaker.MaxPerHour, cfg.Breaker.Cooldown),
		Telemetry: app.metrics,
	}
	if withFeed {
		app.hub = feed.NewHub()
		deps.Publisher = app.hub
	}

	eng, err := engine.New(cfg.Engine(), deps)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.engine = eng

	slog.Info("agent wired",
		"prometheus", cfg.Prometheus.URL,
		"repo", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo,
		"namespace", cfg.Kubernetes.Namespace,
		"ledger", cfg.Ledger.Backend,
		"dry_run", cfg.Kubernetes.DryRun,
	)
	return app, nil
}
