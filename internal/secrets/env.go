package secrets

import (
	"context"
	"os"
	"strings"

	"toolgate/pkg/logging"
)

// DefaultEnvPrefix is prepended to mangled secret names when looking up
// environment variables.
const DefaultEnvPrefix = "TOOLGATE_"

// EnvStore resolves secrets from environment variables. The last
// segment of the secret name is upper-cased, non-alphanumeric runes
// become underscores, and the store prefix is prepended:
// "/app/toolgate/mcp/machine_client_id" -> TOOLGATE_MACHINE_CLIENT_ID.
type EnvStore struct {
	// Prefix overrides DefaultEnvPrefix when non-empty.
	Prefix string
}

// NewEnvStore creates an environment-backed secret store.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{Prefix: prefix}
}

// Get implements Store. The decrypt flag is accepted for contract
// compatibility; environment values are always plaintext.
func (s *EnvStore) Get(_ context.Context, name string, decrypt bool) (string, error) {
	key := s.envKey(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logging.Debug("Secrets", "Environment variable %s not set for secret %s", key, name)
		return "", &NotFoundError{Name: name}
	}
	return value, nil
}

func (s *EnvStore) envKey(name string) string {
	mangled := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, baseName(name))
	return s.Prefix + strings.ToUpper(mangled)
}

// Compile-time interface compliance check.
var _ Store = (*EnvStore)(nil)
