package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"toolgate/internal/cli"
	"toolgate/internal/repl"
)

var replFlags cli.CommandFlags

// replCmd starts the interactive shell.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive tool shell",
	Long: `Start an interactive shell against the configured tool server.

The session opened for the first command is reused for the rest of the
shell, so repeated calls skip the auth handshake. Tool names complete
with TAB; 'help' lists the available commands.

Examples:
  toolgate repl
  toolgate repl --endpoint https://tools.example.com/mcp`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
	cli.RegisterConnectionFlags(replCmd, &replFlags)
}

func runRepl(cmd *cobra.Command, args []string) error {
	opts := replFlags.ToExecutorOptions()
	opts.ConfigPath = configPath

	exec, err := cli.NewToolExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	// Ctrl+C inside the shell is handled by readline; the signal
	// handler covers SIGTERM and signals sent from outside the tty.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	return repl.New(exec).Run(ctx)
}
