package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/logging"
)

var (
	// Flags
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagNamespace string
	flagDryRun    bool
)

var rootCmd = &cobra.Command{
	Use:   "kube-medic",
	Short: "Self-healing agent for Kubernetes workloads",
	Long: `kube-medic watches application metrics in Prometheus, restarts pods that
exceed their CPU or memory thresholds, and escalates pods that keep
misbehaving to code analysis: it files a GitHub issue, asks an LLM for a fix,
opens a pull request and annotates Grafana. Every action is recorded in an
incident ledger with a per-pod daily restart counter.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(flagLogLevel, flagLogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: /etc/kube-medic/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format: text, json")
	rootCmd.PersistentFlags().StringVarP(&flagNamespace, "namespace", "n", "", "Namespace to monitor (env: KUBE_MEDIC_NAMESPACE)")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "Log pod restarts instead of performing them")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("kube-medic %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, applies command-line
// overrides and validates. Commands that only read the ledger pass
// ledgerOnly.
func loadConfig(ledgerOnly bool) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)

	if ledgerOnly {
		err = cfg.ValidateLedger()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if flagNamespace != "" {
		cfg.Kubernetes.Namespace = flagNamespace
	}
	if flagDryRun {
		cfg.Kubernetes.DryRun = true
	}
}
