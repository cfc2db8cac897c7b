package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/install"
)

var flagPurge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the kube-medic system service",
	Long: `Stop and remove the kube-medic system service.

By default, the config file at /etc/kube-medic/ and the ledger are preserved.
Use --purge to also remove the config file.`,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&flagPurge, "purge", false, "Also remove the config file")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	inst, err := install.New()
	if err != nil {
		return err
	}
	if err := inst.Uninstall(cmd.Context(), flagPurge); err != nil {
		return fmt.Errorf("uninstall failed: %w", err)
	}

	fmt.Println("kube-medic service removed.")
	if flagPurge {
		fmt.Println("Config file purged.")
	} else {
		fmt.Printf("Config preserved at %s (use --purge to remove)\n", config.DefaultConfigDir)
	}
	return nil
}
