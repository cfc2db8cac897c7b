package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tinkerbelle-io/kube-medic/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent as MCP tools over stdio",
	Long: `Serve run_agent_cycle, list_incidents and get_restart_counts to an MCP
client over stdin/stdout. Logs go to stderr.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	app, err := newAgentApp(cfg, false)
	if err != nil {
		return err
	}
	defer app.Close()

	return mcpserver.New(app.engine, rootCmd.Version).ServeStdio()
}
