package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toolgate/internal/broker"
	"toolgate/internal/cli"
	"toolgate/internal/config"
	"toolgate/internal/session"
	"toolgate/pkg/logging"
)

// Exit codes for CLI commands. These follow common conventions so
// scripts can tell an auth problem from a flaky server.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuth indicates the auth flow failed or the tool server
	// rejected the token even after re-authentication.
	ExitCodeAuth = 2
	// ExitCodeTransport indicates the tool server was unreachable or
	// the session broke mid-operation.
	ExitCodeTransport = 3
)

var (
	configPath string
	logLevel   string
	debugMode  bool
)

// rootCmd represents the base command for the toolgate application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Call MCP tools behind bearer-token auth",
	Long: `toolgate manages authenticated sessions against MCP tool servers.
It fetches OAuth2 tokens from your identity provider, opens a
streamable HTTP session to the tool server and keeps it alive across
token expiry, so listing and calling remote tools is a single command.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
	// SilenceErrors lets Execute render errors itself, with the
	// failure stage and a recovery hint where one is known.
	SilenceErrors:    true,
	PersistentPreRun: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles
// subcommands and flags. This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "toolgate version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatFailure(err))
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error
// type. This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	// Token acquisition failures, from discovery through the token
	// endpoint response.
	var discoveryErr *broker.DiscoveryError
	if errors.As(err, &discoveryErr) {
		return ExitCodeAuth
	}
	var tokenReqErr *broker.TokenRequestError
	if errors.As(err, &tokenReqErr) {
		return ExitCodeAuth
	}
	var tokenMissingErr *broker.TokenMissingError
	if errors.As(err, &tokenMissingErr) {
		return ExitCodeAuth
	}
	var authErr *broker.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuth
	}

	// A 401/403 surfacing through the transport means the server
	// rejected the token, so it counts as auth rather than transport.
	if session.IsAuthStatusError(err) {
		return ExitCodeAuth
	}

	var transportErr *session.TransportError
	if errors.As(err, &transportErr) {
		return ExitCodeTransport
	}
	var timeoutErr *session.TimeoutError
	if errors.As(err, &timeoutErr) {
		return ExitCodeTransport
	}
	var stateErr *session.InvalidStateError
	if errors.As(err, &stateErr) {
		return ExitCodeTransport
	}

	// Default to general error. Remote tool failures land here: the
	// call itself worked, the tool reported a problem.
	return ExitCodeError
}

// initLogging configures the process logger before any command runs.
// The flag wins over the config file so --log-level debug works even
// when the config file cannot be parsed.
func initLogging(cmd *cobra.Command, args []string) {
	level := logLevel
	if level == "" && debugMode {
		level = "debug"
	}
	if level == "" {
		if cfg, err := config.LoadConfig(resolveConfigPath()); err == nil {
			level = cfg.LogLevel
		}
	}
	logging.InitForCLI(logging.ParseLogLevel(level), os.Stderr)
}

// resolveConfigPath returns the configuration directory selected by
// --config, or the per-user default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetDefaultConfigPathOrPanic()
}

// init wires the persistent flags. Tool commands register themselves
// from their own files.
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration directory (default ~/.config/toolgate)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
