package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
	"github.com/tinkerbelle-io/kube-medic/internal/ledger"
	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

var (
	flagIncResolved string
	flagIncType     string
	flagIncPod      string
	flagIncSince    time.Duration
	flagIncLimit    int
	flagOutput      string
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List recorded incidents, newest first",
	Long: `List incidents from the configured ledger. Only the ledger section of the
config is required.

The memory ledger lives inside the daemon process; use the journal or sqlite
backend to inspect incidents from another process.`,
	RunE: runIncidents,
}

func init() {
	incidentsCmd.Flags().StringVar(&flagIncResolved, "resolved", "", "Filter by resolved state: true or false")
	incidentsCmd.Flags().StringVar(&flagIncType, "type", "", "Filter by issue type: cpu or memory")
	incidentsCmd.Flags().StringVar(&flagIncPod, "pod", "", "Filter by pod name")
	incidentsCmd.Flags().DurationVar(&flagIncSince, "since", 0, "Only incidents newer than this (e.g. 24h)")
	incidentsCmd.Flags().IntVar(&flagIncLimit, "limit", 50, "Maximum number of incidents (0 for all)")
	incidentsCmd.Flags().StringVarP(&flagOutput, "output", "o", "auto", "Output format: auto, table, json")
	rootCmd.AddCommand(incidentsCmd)
}

func runIncidents(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(flagOutput)
	if err != nil {
		return err
	}
	f, err := incidentFilter(time.Now())
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

	incidents, err := store.Incidents(context.Background(), f)
	if err != nil {
		return fmt.Errorf("list incidents: %w", err)
	}

	if format == "json" {
		if incidents == nil {
			incidents = []ledger.Incident{}
		}
		return writeJSON(cmd.OutOrStdout(), incidents)
	}
	printIncidents(cmd.OutOrStdout(), incidents)
	return nil
}

// incidentFilter builds the ledger filter from the command flags. A namespace
// filter applies only when --namespace is given explicitly.
func incidentFilter(now time.Time) (ledger.Filter, error) {
	f := ledger.Filter{
		PodName:   flagIncPod,
		Namespace: flagNamespace,
		Limit:     flagIncLimit,
	}
	if flagIncLimit < 0 {
		return f, fmt.Errorf("--limit must not be negative")
	}
	if flagIncResolved != "" {
		b, err := strconv.ParseBool(flagIncResolved)
		if err != nil {
			return f, fmt.Errorf("--resolved: %w", err)
		}
		f.Resolved = &b
	}
	switch policy.IssueType(flagIncType) {
	case "":
	case policy.IssueCPU, policy.IssueMemory:
		f.Type = policy.IssueType(flagIncType)
	default:
		return f, fmt.Errorf("--type must be cpu or memory, got %q", flagIncType)
	}
	if flagIncSince > 0 {
		f.Since = now.Add(-flagIncSince).Unix()
	}
	return f, nil
}

func printIncidents(w io.Writer, incidents []ledger.Incident) {
	if len(incidents) == 0 {
		fmt.Fprintln(w, "No incidents recorded.")
		return
	}
	tw := newTabWriter(w)
	writeRow(tw, "TIME", "ID", "NAMESPACE", "POD", "TYPE", "ACTION", "VALUE", "ISSUE", "PR", "SEVERITY")
	for _, in := range incidents {
		writeRow(tw,
			time.Unix(in.Timestamp, 0).UTC().Format(time.RFC3339),
			shortID(in.ID),
			in.Namespace,
			in.PodName,
			string(in.Type),
			string(in.ActionTaken),
			strconv.FormatFloat(in.Metrics.Value, 'f', 2, 64),
			refCell(in.IssueRef),
			refCell(in.PullRequestRef),
			severityCell(in.Severity),
		)
	}
	tw.Flush()
}

func refCell(r *ledger.Ref) string {
	if r == nil {
		return "-"
	}
	return "#" + strconv.Itoa(r.Number)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func warnMemoryLedger(cfg *config.Config) {
	if cfg.Ledger.Backend == config.LedgerMemory {
		slog.Warn("ledger backend is memory; only incidents from this process are visible",
			"hint", "set ledger.backend to journal or sqlite")
	}
}
