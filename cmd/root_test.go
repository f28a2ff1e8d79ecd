package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"

	"toolgate/internal/broker"
	"toolgate/internal/session"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
	if GetVersion() != testVersion {
		t.Errorf("Expected GetVersion to return %s, got %s", testVersion, GetVersion())
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "toolgate" {
		t.Errorf("Expected Use to be 'toolgate', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}

	if !rootCmd.SilenceErrors {
		t.Error("Expected SilenceErrors to be true")
	}
}

func TestVersionTemplate(t *testing.T) {
	// Use a throwaway command so the template can run without
	// executing the real root command.
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "toolgate version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})

	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	output := buf.String()
	expected := "toolgate version 1.0.0\n"
	if output != expected {
		t.Errorf("Expected version output %q, got %q", expected, output)
	}
}

func TestSubcommands(t *testing.T) {
	commands := rootCmd.Commands()

	expectedCommands := []string{"tools", "describe", "call", "token", "repl", "version", "self-update"}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected subcommand %q to be registered", expected)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s to be registered", name)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "discovery failure",
			err:  &broker.DiscoveryError{URL: "https://idp.example.com/.well-known/openid-configuration", Status: 500},
			want: ExitCodeAuth,
		},
		{
			name: "token endpoint rejection",
			err:  &broker.TokenRequestError{StatusCode: 400, Body: "invalid_client"},
			want: ExitCodeAuth,
		},
		{
			name: "token response without access_token",
			err:  &broker.TokenMissingError{Endpoint: "https://idp.example.com/oauth2/token"},
			want: ExitCodeAuth,
		},
		{
			name: "initiate-auth rejection",
			err:  &broker.AuthError{Endpoint: "https://idp.example.com/", Status: 400, Message: "NotAuthorizedException"},
			want: ExitCodeAuth,
		},
		{
			name: "wrapped auth error",
			err:  fmt.Errorf("session setup: %w", &broker.AuthError{Endpoint: "https://idp.example.com/", Status: 400}),
			want: ExitCodeAuth,
		},
		{
			name: "server rejected token through transport",
			err: &session.TransportError{
				Stage:    "call tool",
				Endpoint: "https://tools.example.com/mcp",
				Err:      errors.New("request failed with status 401: invalid_token"),
			},
			want: ExitCodeAuth,
		},
		{
			name: "connection refused",
			err: &session.TransportError{
				Stage:    "connect",
				Endpoint: "https://tools.example.com/mcp",
				Category: session.CategoryNetwork,
				Err:      errors.New("dial tcp: connection refused"),
			},
			want: ExitCodeTransport,
		},
		{
			name: "operation timeout",
			err:  &session.TimeoutError{Stage: "call tool", Endpoint: "https://tools.example.com/mcp"},
			want: ExitCodeTransport,
		},
		{
			name: "protocol state violation",
			err:  &session.InvalidStateError{Op: "call tool", State: session.StateDisconnected},
			want: ExitCodeTransport,
		},
		{
			name: "tool-reported failure",
			err:  &session.RemoteToolError{Tool: "multiply_numbers", Message: "argument a is required"},
			want: ExitCodeError,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: ExitCodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
