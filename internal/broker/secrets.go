package broker

import (
	"context"
	"fmt"
	"sync"

	"toolgate/internal/secrets"
	"toolgate/pkg/logging"
)

// Default store keys for credential material, matching what the
// provisioning side writes under the parameter prefix.
const (
	KeyMachineClientID = "machine_client_id"
	KeyClientSecret    = "cognito_secret"
	KeyDiscoveryURL    = "cognito_discovery_url"
	KeyUsername        = "username"
	KeyPassword        = "password"
	KeyAuthEndpoint    = "auth_endpoint"
)

// SecretKeys selects which store entries a store-backed broker reads
// its credential material from. Empty fields fall back to the default
// key names above.
type SecretKeys struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	Username     string
	Password     string
	AuthEndpoint string
}

// StoreConfig describes how a store-backed broker resolves its
// credential material.
type StoreConfig struct {
	// Grant selects the flow.
	Grant GrantType

	// Prefix is the parameter namespace logical key names resolve
	// under. Empty means secrets.DefaultPrefix.
	Prefix string

	// Keys overrides individual key names.
	Keys SecretKeys

	// Scope optionally narrows the requested scopes (client-credentials
	// flow only).
	Scope string
}

// NewStoreBroker returns a Broker that resolves its credentials from
// store on every fetch. Reading at fetch time means rotated secrets
// take effect without a restart; the underlying flow broker is rebuilt
// only when the material actually changes, so the discovery-document
// cache survives ordinary fetches.
func NewStoreBroker(store secrets.Store, cfg StoreConfig, opts ...Option) (Broker, error) {
	if store == nil {
		return nil, fmt.Errorf("secret store is required")
	}
	switch cfg.Grant {
	case GrantClientCredentials, GrantUserPassword:
	default:
		return nil, fmt.Errorf("unsupported grant type %q", cfg.Grant)
	}
	return &storeBroker{store: store, cfg: cfg, opts: opts}, nil
}

type storeBroker struct {
	store secrets.Store
	cfg   StoreConfig
	opts  []Option

	mu    sync.Mutex
	creds Credentials
	inner Broker
}

var _ Broker = (*storeBroker)(nil)

func (b *storeBroker) Fetch(ctx context.Context) (*Token, error) {
	inner, err := b.flowBroker(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Fetch(ctx)
}

// flowBroker loads the current credential material and returns the
// flow broker for it, reusing the previous one while the material is
// unchanged.
func (b *storeBroker) flowBroker(ctx context.Context) (Broker, error) {
	creds, err := b.loadCredentials(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inner != nil && creds == b.creds {
		return b.inner, nil
	}
	if b.inner != nil {
		logging.Debug(subsystem, "Credential material changed, rebuilding %s broker", b.cfg.Grant)
	}

	inner, err := NewBroker(creds, b.opts...)
	if err != nil {
		return nil, err
	}
	b.inner = inner
	b.creds = creds
	return inner, nil
}

func (b *storeBroker) loadCredentials(ctx context.Context) (Credentials, error) {
	logging.Debug(subsystem, "Resolving %s credentials from secret store", b.cfg.Grant)

	creds := Credentials{Grant: b.cfg.Grant, Scope: b.cfg.Scope}
	var err error

	switch b.cfg.Grant {
	case GrantClientCredentials:
		if creds.ClientID, err = b.read(ctx, b.cfg.Keys.ClientID, KeyMachineClientID, false); err != nil {
			return Credentials{}, err
		}
		if creds.ClientSecret, err = b.read(ctx, b.cfg.Keys.ClientSecret, KeyClientSecret, true); err != nil {
			return Credentials{}, err
		}
		if creds.DiscoveryURL, err = b.read(ctx, b.cfg.Keys.DiscoveryURL, KeyDiscoveryURL, false); err != nil {
			return Credentials{}, err
		}

	case GrantUserPassword:
		if creds.ClientID, err = b.read(ctx, b.cfg.Keys.ClientID, KeyMachineClientID, false); err != nil {
			return Credentials{}, err
		}
		if creds.Username, err = b.read(ctx, b.cfg.Keys.Username, KeyUsername, false); err != nil {
			return Credentials{}, err
		}
		if creds.Password, err = b.read(ctx, b.cfg.Keys.Password, KeyPassword, true); err != nil {
			return Credentials{}, err
		}
		if creds.AuthEndpoint, err = b.read(ctx, b.cfg.Keys.AuthEndpoint, KeyAuthEndpoint, false); err != nil {
			return Credentials{}, err
		}
	}

	return creds, nil
}

// read resolves one credential, qualifying the key with the configured
// prefix. Secrets (the decrypt=true reads) never appear in logs.
func (b *storeBroker) read(ctx context.Context, key, fallback string, decrypt bool) (string, error) {
	if key == "" {
		key = fallback
	}
	name := secrets.Qualify(b.cfg.Prefix, key)
	value, err := b.store.Get(ctx, name, decrypt)
	if err != nil {
		return "", fmt.Errorf("failed to load credential %s: %w", name, err)
	}
	return value, nil
}
