package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one agent cycle and print the result as JSON",
	Long: `Run a single monitor, analyze, decide and act cycle against the configured
Prometheus, Kubernetes, GitHub and Grafana, then print the response.

Exits non-zero when the cycle reports an error.`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	app, err := newAgentApp(cfg, false)
	if err != nil {
		return err
	}
	defer app.Close()

	resp := app.engine.RunCycle(context.Background(), engine.Input{})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	if resp.Status == engine.StatusError {
		return fmt.Errorf("cycle failed: %s", resp.Error)
	}
	return nil
}
