package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the flag values shared by every command that opens
// a tool session. The config file path is a persistent flag owned by
// the root command.
type CommandFlags struct {
	// OutputFormat selects the output format (table, wide, json, yaml).
	OutputFormat string
	// NoHeaders suppresses the header row in table output.
	NoHeaders bool
	// Quiet suppresses spinners and non-essential output.
	Quiet bool
	// Endpoint overrides the tool server endpoint URL.
	Endpoint string
	// Grant overrides the grant type (client_credentials, user_password).
	Grant string
	// Scope overrides the token scope requested from the provider.
	Scope string
	// Timeout overrides the request timeout (Go duration string).
	Timeout string
}

// RegisterCommonFlags wires the shared flag set onto cmd. Keeping the
// registration in one place keeps flag names and help text identical
// across commands.
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table, wide, json, yaml)")
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress spinners and non-essential output")
	RegisterConnectionFlags(cmd, flags)
}

// RegisterConnectionFlags wires only the connection flags, for commands
// that do not produce formatted output.
func RegisterConnectionFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.Flags().StringVar(&flags.Endpoint, "endpoint", "", "Tool server endpoint URL (overrides config)")
	cmd.Flags().StringVar(&flags.Grant, "grant", "", "Grant type: client_credentials or user_password (overrides config)")
	cmd.Flags().StringVar(&flags.Scope, "scope", "", "Token scope to request (overrides config)")
	cmd.Flags().StringVar(&flags.Timeout, "timeout", "", "Request timeout, e.g. 30s (overrides config)")
}

// ToExecutorOptions bridges the parsed flags into executor options.
func (f *CommandFlags) ToExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		Format:    OutputFormat(f.OutputFormat),
		NoHeaders: f.NoHeaders,
		Quiet:     f.Quiet,
		Endpoint:  f.Endpoint,
		Grant:     f.Grant,
		Scope:     f.Scope,
		Timeout:   f.Timeout,
	}
}
