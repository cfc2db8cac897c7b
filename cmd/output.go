package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

var (
	styleHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// outputFormat resolves "auto" to table on a terminal and json otherwise.
func outputFormat(flag string) (string, error) {
	switch strings.ToLower(flag) {
	case "", "auto":
		if isatty.IsTerminal(os.Stdout.Fd()) {
			return "table", nil
		}
		return "json", nil
	case "table", "json":
		return strings.ToLower(flag), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, table or json)", flag)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func writeRow(w io.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func severityCell(s policy.Severity) string {
	switch s {
	case policy.SeverityHigh:
		return styleHigh.Render(string(s))
	case policy.SeverityMedium:
		return styleMedium.Render(string(s))
	case policy.SeverityLow:
		return styleLow.Render(string(s))
	}
	return string(s)
}

func boolStatus(b bool) string {
	if b {
		return styleOK.Render("yes")
	}
	return styleBad.Render("no")
}

func valueOrNA(s string) string {
	if s == "" {
		return styleDim.Render("n/a")
	}
	return s
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func maskEnd(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
