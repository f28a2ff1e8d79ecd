package cmd

import (
	"github.com/spf13/cobra"

	"toolgate/internal/cli"
)

var (
	callFlags    cli.CommandFlags
	callArgPairs []string
	callArgsJSON string
)

// callCmd invokes a tool on the server.
var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Call a tool on the tool server",
	Long: `Call a tool and print its result.

Arguments are passed with repeated --arg key=value flags, or as one
JSON document via --args-json. Values given as --arg are parsed as
JSON where possible (numbers, booleans, null), otherwise kept as
strings; --arg overrides --args-json on key collisions.

Examples:
  toolgate call multiply_numbers --arg a=6 --arg b=7
  toolgate call greet_user --arg name=Alice
  toolgate call multiply_numbers --args-json '{"a": 6, "b": 7}'
  toolgate call add_numbers --arg a=5 --arg b=3 --output json`,
	Args:       cobra.ExactArgs(1),
	ArgAliases: []string{"tool"},
	RunE:       runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
	cli.RegisterCommonFlags(callCmd, &callFlags)
	callCmd.Flags().StringArrayVar(&callArgPairs, "arg", nil, "Tool argument as key=value (repeatable)")
	callCmd.Flags().StringVar(&callArgsJSON, "args-json", "", "Tool arguments as a JSON object")
}

func runCall(cmd *cobra.Command, args []string) error {
	toolArgs, err := cli.ParseToolArgs(callArgPairs, callArgsJSON)
	if err != nil {
		return err
	}

	opts := callFlags.ToExecutorOptions()
	opts.ConfigPath = configPath

	exec, err := cli.NewToolExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	return exec.CallTool(cmd.Context(), args[0], toolArgs)
}
