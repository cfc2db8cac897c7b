package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/install"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kube-medic service status",
	Long:  `Display the current state of the kube-medic service, config, and binary.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	inst, err := install.New()
	if err != nil {
		return err
	}
	s := inst.Status(cmd.Context())
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Platform:   %s (%s)\n", s.Platform, s.Manager)
	fmt.Fprintf(w, "Unit:       %s\n", s.UnitPath)
	fmt.Fprintf(w, "Binary:     %s\n", valueOrNA(s.BinaryPath))
	fmt.Fprintf(w, "Config:     %s\n", s.ConfigPath)
	fmt.Fprintf(w, "Installed:  %s\n", boolStatus(s.Installed))
	fmt.Fprintf(w, "Running:    %s\n", boolStatus(s.Running))

	if s.Installed {
		if cfg, err := config.Load(config.DefaultConfigFile); err == nil {
			fmt.Fprintln(w)
			printConfigSummary(w, cfg)
		}
	}

	fmt.Fprintf(w, "\nVersion:    %s\n", rootCmd.Version)

	// Exit code 1 if not running (useful for scripts)
	if !s.Running {
		os.Exit(1)
	}
	return nil
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Prometheus: %s\n", maskEnd(cfg.Prometheus.URL, 40))
	fmt.Fprintf(w, "  GitHub:     %s/%s (token %s)\n", cfg.GitHub.Owner, cfg.GitHub.Repo, maskToken(cfg.GitHub.Token))
	fmt.Fprintf(w, "  Grafana:    %s (key %s)\n", maskEnd(cfg.Grafana.URL, 40), maskToken(cfg.Grafana.APIKey))
	fmt.Fprintf(w, "  LLM:        %s (key %s)\n", cfg.LLM.Model, maskToken(cfg.LLM.APIKey))
	fmt.Fprintf(w, "  Namespace:  %s\n", cfg.Kubernetes.Namespace)
	fmt.Fprintf(w, "  Ledger:     %s %s\n", cfg.Ledger.Backend, cfg.LedgerPath())
	fmt.Fprintf(w, "  Interval:   %s\n", cfg.Daemon.Interval)
	fmt.Fprintf(w, "  Thresholds: cpu %.0f%%, memory %.0f bytes, analysis after %d restarts, max %d/day\n",
		cfg.Thresholds.CPUPercent, cfg.Thresholds.MemoryBytes,
		cfg.Thresholds.AnalysisThreshold, cfg.Thresholds.MaxRestartsPerDay)
}
