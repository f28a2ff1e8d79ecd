package cmd

import (
	"github.com/spf13/cobra"

	"toolgate/internal/cli"
)

var tokenFlags cli.CommandFlags

// tokenCmd fetches a token without opening a session.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch an access token from the identity provider",
	Long: `Fetch an access token using the configured credentials and print
its claims. No tool server session is opened; this is the quickest way
to check that discovery, credentials and scopes are set up correctly.

Table output masks the token value. Use --output json to get the full
token, e.g. for calling the server with curl.

Examples:
  toolgate token
  toolgate token --output json | jq -r .value
  toolgate token --grant user_password`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	cli.RegisterCommonFlags(tokenCmd, &tokenFlags)
}

func runToken(cmd *cobra.Command, args []string) error {
	opts := tokenFlags.ToExecutorOptions()
	opts.ConfigPath = configPath

	exec, err := cli.NewToolExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	return exec.Token(cmd.Context())
}
