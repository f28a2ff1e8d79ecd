package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecretsFile(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "secrets.yaml")
	err := os.WriteFile(path, []byte(content), 0600)
	require.NoError(t, err)
	return path
}

func TestFileStoreGet(t *testing.T) {
	path := writeSecretsFile(t, t.TempDir(), `
machine_client_id: client-abc
cognito_secret: super-secret
/app/blogpost/mcp/username: testuser
`)

	store, err := NewFileStore(path)
	require.NoError(t, err)

	value, err := store.Get(context.Background(), "machine_client_id", false)
	assert.NoError(t, err)
	assert.Equal(t, "client-abc", value)

	// Exact qualified name wins.
	value, err = store.Get(context.Background(), "/app/blogpost/mcp/username", false)
	assert.NoError(t, err)
	assert.Equal(t, "testuser", value)

	// Qualified names fall back to their last segment.
	value, err = store.Get(context.Background(), "/app/toolgate/mcp/cognito_secret", true)
	assert.NoError(t, err)
	assert.Equal(t, "super-secret", value)
}

func TestFileStoreMissingKey(t *testing.T) {
	path := writeSecretsFile(t, t.TempDir(), "machine_client_id: abc\n")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "password", true)
	assert.True(t, IsNotFound(err))
}

func TestFileStoreMissingFile(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := writeSecretsFile(t, t.TempDir(), "not: [valid: yaml: {")

	_, err := NewFileStore(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse secrets file")
}

func TestFileStoreWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := writeSecretsFile(t, dir, "password: first\n")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Watch())
	defer store.Close()

	value, err := store.Get(context.Background(), "password", true)
	require.NoError(t, err)
	require.Equal(t, "first", value)

	err = os.WriteFile(path, []byte("password: rotated\n"), 0600)
	require.NoError(t, err)

	// Reload is debounced; poll until the new value is visible.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		value, err = store.Get(context.Background(), "password", true)
		if err == nil && value == "rotated" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("secret was not reloaded, last value %q", value)
}

func TestFileStoreCloseIdempotent(t *testing.T) {
	path := writeSecretsFile(t, t.TempDir(), "username: u\n")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Watch())
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
