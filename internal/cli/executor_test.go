package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/testing/mock"
)

// startServers brings up a mock identity provider and a tool server
// validating its tokens.
func startServers(t *testing.T) (*mock.IdentityProvider, *mock.ToolServer) {
	t.Helper()
	ctx := context.Background()

	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
	_, err := idp.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { idp.Stop(ctx) })

	ts := mock.NewToolServer(mock.ToolServerConfig{IdP: idp})
	_, err = ts.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { ts.Stop(ctx) })

	return idp, ts
}

// newEnvExecutor builds an executor against the mock stack with
// credentials supplied through the environment backend.
func newEnvExecutor(t *testing.T, idp *mock.IdentityProvider, ts *mock.ToolServer, format OutputFormat) (*ToolExecutor, *bytes.Buffer) {
	t.Helper()

	t.Setenv("TOOLGATE_MACHINE_CLIENT_ID", "test-client")
	t.Setenv("TOOLGATE_COGNITO_SECRET", "test-secret")
	t.Setenv("TOOLGATE_COGNITO_DISCOVERY_URL", idp.DiscoveryURL())

	exec, err := NewToolExecutor(ExecutorOptions{
		Format:     format,
		Quiet:      true,
		ConfigPath: t.TempDir(),
		Endpoint:   ts.Endpoint(),
		Timeout:    "10s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	var buf bytes.Buffer
	exec.out = &buf
	exec.errOut = &buf
	return exec, &buf
}

func TestNewToolExecutorRejectsBadFormat(t *testing.T) {
	_, err := NewToolExecutor(ExecutorOptions{Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestNewToolExecutorRejectsBadConfig(t *testing.T) {
	t.Run("missing endpoint", func(t *testing.T) {
		_, err := NewToolExecutor(ExecutorOptions{
			ConfigPath: t.TempDir(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint")
	})

	t.Run("unsupported grant", func(t *testing.T) {
		_, err := NewToolExecutor(ExecutorOptions{
			ConfigPath: t.TempDir(),
			Endpoint:   "http://localhost:1/mcp",
			Grant:      "implicit",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "grant")
	})
}

func TestExecutorCallTool(t *testing.T) {
	idp, ts := startServers(t)
	exec, buf := newEnvExecutor(t, idp, ts, OutputFormatTable)

	args, err := ParseToolArgs([]string{"a=5", "b=3"}, "")
	require.NoError(t, err)

	require.NoError(t, exec.CallTool(context.Background(), "add_numbers", args))
	assert.Equal(t, "8\n", buf.String())
	assert.Equal(t, 1, idp.TokenCount())
}

func TestExecutorCallToolGreeting(t *testing.T) {
	idp, ts := startServers(t)
	exec, buf := newEnvExecutor(t, idp, ts, OutputFormatTable)

	args, err := ParseToolArgs([]string{"name=Alice"}, "")
	require.NoError(t, err)

	require.NoError(t, exec.CallTool(context.Background(), "greet_user", args))
	assert.Equal(t, "Hello, Alice!\n", buf.String())
}

func TestExecutorListTools(t *testing.T) {
	idp, ts := startServers(t)
	exec, buf := newEnvExecutor(t, idp, ts, OutputFormatJSON)

	require.NoError(t, exec.ListTools(context.Background()))

	var items []toolListItem
	require.NoError(t, json.Unmarshal(buf.Bytes(), &items))

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	assert.Contains(t, names, "add_numbers")
	assert.Contains(t, names, "multiply_numbers")
	assert.Contains(t, names, "greet_user")
	assert.True(t, sort.StringsAreSorted(names), "tool list should be sorted by name")
}

func TestExecutorDescribeTool(t *testing.T) {
	idp, ts := startServers(t)
	exec, buf := newEnvExecutor(t, idp, ts, OutputFormatTable)

	require.NoError(t, exec.DescribeTool(context.Background(), "greet_user"))

	out := buf.String()
	assert.Contains(t, out, "greet_user")
	assert.Contains(t, out, "ARGUMENT")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "yes")
}

func TestExecutorDescribeUnknownTool(t *testing.T) {
	idp, ts := startServers(t)
	exec, _ := newEnvExecutor(t, idp, ts, OutputFormatTable)

	err := exec.DescribeTool(context.Background(), "no_such_tool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"no_such_tool" not found`)
}

func TestExecutorToken(t *testing.T) {
	idp, ts := startServers(t)
	exec, buf := newEnvExecutor(t, idp, ts, OutputFormatJSON)

	require.NoError(t, exec.Token(context.Background()))

	var view tokenView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.True(t, idp.ValidateToken(view.Value))
	assert.False(t, view.Expired)

	// Fetching a token does not open a session.
	assert.Empty(t, exec.manager.SessionID())
	assert.Zero(t, ts.RequestCount())
}

func TestExecutorFileBackend(t *testing.T) {
	idp, ts := startServers(t)

	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.yaml")
	secretsYAML := fmt.Sprintf(
		"machine_client_id: test-client\ncognito_secret: test-secret\ncognito_discovery_url: %s\n",
		idp.DiscoveryURL(),
	)
	require.NoError(t, os.WriteFile(secretsPath, []byte(secretsYAML), 0o600))

	configYAML := fmt.Sprintf(
		"endpoint: %s\ntimeout: 10s\nsecrets:\n  backend: file\n  file: %s\n",
		ts.Endpoint(), secretsPath,
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o600))

	exec, err := NewToolExecutor(ExecutorOptions{
		Format:     OutputFormatTable,
		Quiet:      true,
		ConfigPath: dir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	var buf bytes.Buffer
	exec.out = &buf

	args, err := ParseToolArgs(nil, `{"a": 6, "b": 7}`)
	require.NoError(t, err)

	require.NoError(t, exec.CallTool(context.Background(), "multiply_numbers", args))
	assert.Equal(t, "42\n", buf.String())
	assert.Equal(t, ts.Endpoint(), exec.Endpoint())
}
