package cmd

import (
	"github.com/spf13/cobra"

	"toolgate/internal/cli"
)

var toolsFlags cli.CommandFlags

// toolsCmd lists the tools the server advertises.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools exposed by the tool server",
	Long: `List the tools the configured MCP tool server exposes.

The first invocation authenticates against the identity provider and
opens a session; with --output wide each tool's argument count is shown
next to its description.

Examples:
  toolgate tools
  toolgate tools --output wide
  toolgate tools --output json
  toolgate tools --endpoint https://tools.example.com/mcp`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	cli.RegisterCommonFlags(toolsCmd, &toolsFlags)
}

func runTools(cmd *cobra.Command, args []string) error {
	opts := toolsFlags.ToExecutorOptions()
	opts.ConfigPath = configPath

	exec, err := cli.NewToolExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	return exec.ListTools(cmd.Context())
}
