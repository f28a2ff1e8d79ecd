// Package config holds toolgate's YAML configuration: which tool server
// to talk to, which auth flow to use, and where credential material
// lives. Loading is defaults-first; a missing config file is not an
// error.
package config

import (
	"fmt"
	"net/url"
	"time"

	"toolgate/internal/broker"
)

// Secrets backends.
const (
	SecretsBackendEnv  = "env"
	SecretsBackendFile = "file"
)

// Config is the top-level configuration structure for toolgate.
type Config struct {
	// Endpoint is the tool server's streamable HTTP URL.
	Endpoint string `yaml:"endpoint"`

	// Grant selects the auth flow: client_credentials or user_password.
	Grant string `yaml:"grant,omitempty"`

	// Scope optionally narrows the requested token scopes
	// (client-credentials flow only).
	Scope string `yaml:"scope,omitempty"`

	// Timeout bounds provider and tool-server calls, as a Go duration
	// string. Empty means 120s.
	Timeout string `yaml:"timeout,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Secrets configures where credential material is read from.
	Secrets SecretsConfig `yaml:"secrets,omitempty"`
}

// SecretsConfig selects and parameterizes the secret backend.
type SecretsConfig struct {
	// Backend is env or file (default: env).
	Backend string `yaml:"backend,omitempty"`

	// Prefix is the parameter namespace logical key names resolve
	// under (default: /app/toolgate/mcp/).
	Prefix string `yaml:"prefix,omitempty"`

	// EnvPrefix overrides the environment variable prefix of the env
	// backend (default: TOOLGATE_).
	EnvPrefix string `yaml:"env_prefix,omitempty"`

	// File is the secrets file of the file backend.
	File string `yaml:"file,omitempty"`

	// Watch reloads the secrets file when it changes on disk.
	Watch bool `yaml:"watch,omitempty"`

	// Keys overrides individual credential key names.
	Keys KeysConfig `yaml:"keys,omitempty"`
}

// KeysConfig names the store entries credential material is read from.
// Empty fields use the provisioning defaults (machine_client_id,
// cognito_secret, and so on).
type KeysConfig struct {
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	DiscoveryURL string `yaml:"discovery_url,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	AuthEndpoint string `yaml:"auth_endpoint,omitempty"`
}

// RequestTimeout parses the configured timeout. Empty means
// DefaultTimeout.
func (c Config) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", c.Timeout)
	}
	return d, nil
}

// StoreConfig maps the configuration onto the broker's store-backed
// credential resolution.
func (c Config) StoreConfig() broker.StoreConfig {
	return broker.StoreConfig{
		Grant:  broker.GrantType(c.Grant),
		Prefix: c.Secrets.Prefix,
		Scope:  c.Scope,
		Keys: broker.SecretKeys{
			ClientID:     c.Secrets.Keys.ClientID,
			ClientSecret: c.Secrets.Keys.ClientSecret,
			DiscoveryURL: c.Secrets.Keys.DiscoveryURL,
			Username:     c.Secrets.Keys.Username,
			Password:     c.Secrets.Keys.Password,
			AuthEndpoint: c.Secrets.Keys.AuthEndpoint,
		},
	}
}

// Validate checks the configuration after flags have been merged in.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required (set it in the config file or via --endpoint)")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q is not a valid URL", c.Endpoint)
	}

	switch broker.GrantType(c.Grant) {
	case broker.GrantClientCredentials, broker.GrantUserPassword:
	default:
		return fmt.Errorf("unsupported grant type %q", c.Grant)
	}

	if _, err := c.RequestTimeout(); err != nil {
		return err
	}

	switch c.Secrets.Backend {
	case "", SecretsBackendEnv, SecretsBackendFile:
	default:
		return fmt.Errorf("unsupported secrets backend %q", c.Secrets.Backend)
	}
	if c.Secrets.Backend == SecretsBackendFile && c.Secrets.File == "" {
		return fmt.Errorf("secrets backend %q requires a file", SecretsBackendFile)
	}

	return nil
}
