package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/install"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install kube-medic daemon as a system service",
	Long: `Install kube-medic as a systemd service (Linux) or launchd daemon (macOS).

This command:
  1. Loads and validates the effective config (file, environment, flags)
  2. Writes it to /etc/kube-medic/config.yaml with 0600 permissions
  3. Creates, enables and starts a service running 'kube-medic daemon'`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if cfg.Ledger.Backend == config.LedgerMemory {
		cfg.Ledger.Backend = config.LedgerJournal
	}

	inst, err := install.New()
	if err != nil {
		return err
	}

	fmt.Println("Installing kube-medic...")

	if err := inst.Install(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("install failed: %w", err)
	}

	fmt.Println("kube-medic installed and running.")
	fmt.Printf("  Config:    %s\n", config.DefaultConfigFile)
	fmt.Printf("  Ledger:    %s (%s)\n", cfg.Ledger.Backend, cfg.LedgerPath())
	fmt.Printf("  Namespace: %s\n", cfg.Kubernetes.Namespace)
	fmt.Println("\nCheck status with: kube-medic status")
	return nil
}
