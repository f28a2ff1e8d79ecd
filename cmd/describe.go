package cmd

import (
	"github.com/spf13/cobra"

	"toolgate/internal/cli"
)

var describeFlags cli.CommandFlags

// describeCmd shows a single tool's schema.
var describeCmd = &cobra.Command{
	Use:   "describe <tool>",
	Short: "Show a tool's arguments and description",
	Long: `Show the full description and argument schema of one tool.

Examples:
  toolgate describe multiply_numbers
  toolgate describe greet_user --output json`,
	Args:                  cobra.ExactArgs(1),
	ArgAliases:            []string{"tool"},
	DisableFlagsInUseLine: true,
	RunE:                  runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
	cli.RegisterCommonFlags(describeCmd, &describeFlags)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	opts := describeFlags.ToExecutorOptions()
	opts.ConfigPath = configPath

	exec, err := cli.NewToolExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	return exec.DescribeTool(cmd.Context(), args[0])
}
