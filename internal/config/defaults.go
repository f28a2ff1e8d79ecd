package config

import "time"

// DefaultTimeout bounds provider and tool-server calls unless the
// configuration overrides it.
const DefaultTimeout = 120 * time.Second

const (
	// DefaultGrant is the machine flow.
	DefaultGrant = "client_credentials"

	// DefaultLogLevel keeps protocol traffic out of normal output.
	DefaultLogLevel = "info"
)

// GetDefaultConfig returns the built-in defaults. Endpoint stays empty
// on purpose: it has no sensible default and must come from the config
// file or a flag.
func GetDefaultConfig() Config {
	return Config{
		Grant:    DefaultGrant,
		Timeout:  "120s",
		LogLevel: DefaultLogLevel,
		Secrets: SecretsConfig{
			Backend: SecretsBackendEnv,
		},
	}
}
