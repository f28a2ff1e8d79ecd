package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrefix is the parameter namespace credentials are provisioned
// under. Logical names like "machine_client_id" resolve to
// "/app/toolgate/mcp/machine_client_id" unless the caller passes an
// already-qualified name.
const DefaultPrefix = "/app/toolgate/mcp/"

// Store is the read contract for credential material. Implementations
// back it with whatever holds the provisioned secrets (environment,
// file, parameter store); the core only ever reads.
type Store interface {
	// Get returns the value stored under name. decrypt requests
	// backend-side decryption for values stored encrypted; backends
	// holding plaintext treat it as a no-op.
	Get(ctx context.Context, name string, decrypt bool) (string, error)
}

// NotFoundError indicates the requested secret does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found", e.Name)
}

// Is allows errors.Is() to match any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// IsNotFound reports whether err indicates a missing secret.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Qualify joins a logical secret name with the configured prefix.
// Names that are already absolute are returned unchanged.
func Qualify(prefix, name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

// baseName returns the last path segment of a qualified secret name.
func baseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
