package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

var restartsCmd = &cobra.Command{
	Use:   "restarts",
	Short: "Show today's automated restart count per pod",
	RunE:  runRestarts,
}

func init() {
	restartsCmd.Flags().StringVarP(&flagOutput, "output", "o", "auto", "Output format: auto, table, json")
	rootCmd.AddCommand(restartsCmd)
}

func runRestarts(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(flagOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	warnMemoryLedger(cfg)

	store, err := openLedger(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	counters, err := store.RestartCounts(context.Background())
	if err != nil {
		return fmt.Errorf("restart counts: %w", err)
	}

	if format == "json" {
		if counters == nil {
			counters = []ledger.RestartCounter{}
		}
		return writeJSON(cmd.OutOrStdout(), counters)
	}
	printRestartCounts(cmd.OutOrStdout(), counters, cfg.Thresholds)
	return nil
}

// printRestartCounts lists counters with the route the next breach would take.
func printRestartCounts(w io.Writer, counters []ledger.RestartCounter, th policy.Thresholds) {
	if len(counters) == 0 {
		fmt.Fprintln(w, "No restarts today.")
		return
	}
	tw := newTabWriter(w)
	writeRow(tw, "DAY", "NAMESPACE", "POD", "RESTARTS", "NEXT")
	for _, c := range counters {
		next := policy.Decide(c.Count, th)
		writeRow(tw, c.Day, c.Namespace, c.PodName, strconv.Itoa(c.Count), string(next))
	}
	tw.Flush()
}
