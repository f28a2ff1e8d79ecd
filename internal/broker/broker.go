// Package broker acquires OAuth2 bearer tokens for the tool gateway.
//
// A Broker wraps one set of Credentials and turns them into bearer
// tokens on demand. Machine clients go through the provider's discovery
// document and token endpoint (client-credentials grant); human users
// go through the provider's fixed initiate-auth endpoint
// (resource-owner password grant, Cognito InitiateAuth wire shape).
// Token expiry is inspected locally from the token's own claims; there
// is no background refresh, staleness is checked lazily by callers.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"toolgate/pkg/logging"
)

const subsystem = "TokenBroker"

const (
	// defaultTimeout bounds every provider HTTP call.
	defaultTimeout = 120 * time.Second

	// defaultDiscoveryTTL is how long a fetched discovery document is
	// reused before it is fetched again.
	defaultDiscoveryTTL = 1 * time.Hour

	// authFlowUserPassword is the initiate-auth flow identifier for the
	// resource-owner password grant.
	authFlowUserPassword = "USER_PASSWORD_AUTH"

	// initiateAuthTarget is the Cognito API target header value for
	// InitiateAuth calls.
	initiateAuthTarget = "AWSCognitoIdentityProviderService.InitiateAuth"
)

// Broker acquires bearer tokens for one fixed set of credentials.
// Implementations are safe for concurrent use.
type Broker interface {
	// Fetch obtains a fresh token from the identity provider.
	Fetch(ctx context.Context) (*Token, error)
}

// Option configures a broker created by NewBroker.
type Option func(*brokerOptions)

type brokerOptions struct {
	httpClient   *http.Client
	timeout      time.Duration
	discoveryTTL time.Duration
}

// WithHTTPClient sets a custom HTTP client for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *brokerOptions) {
		o.httpClient = client
	}
}

// WithTimeout sets the per-call timeout for the default HTTP client.
// It has no effect when WithHTTPClient is also given.
func WithTimeout(timeout time.Duration) Option {
	return func(o *brokerOptions) {
		o.timeout = timeout
	}
}

// WithDiscoveryTTL sets how long discovery documents are cached.
func WithDiscoveryTTL(ttl time.Duration) Option {
	return func(o *brokerOptions) {
		o.discoveryTTL = ttl
	}
}

// NewBroker validates the credentials and returns the strategy
// implementation matching their grant type.
func NewBroker(creds Credentials, opts ...Option) (Broker, error) {
	options := &brokerOptions{
		timeout:      defaultTimeout,
		discoveryTTL: defaultDiscoveryTTL,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: options.timeout}
	}

	switch creds.Grant {
	case GrantClientCredentials:
		if creds.ClientID == "" || creds.ClientSecret == "" || creds.DiscoveryURL == "" {
			return nil, fmt.Errorf("client-credentials grant requires client id, client secret and discovery URL")
		}
		return &clientCredentialsBroker{
			creds:        creds,
			httpClient:   options.httpClient,
			discoveryTTL: options.discoveryTTL,
		}, nil

	case GrantUserPassword:
		if creds.ClientID == "" || creds.Username == "" || creds.Password == "" || creds.AuthEndpoint == "" {
			return nil, fmt.Errorf("user-password grant requires client id, username, password and auth endpoint")
		}
		return &userPasswordBroker{
			creds:      creds,
			httpClient: options.httpClient,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported grant type %q", creds.Grant)
	}
}

// discoveryDocument is the subset of the provider's discovery document
// the broker consumes.
type discoveryDocument struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
}

// tokenResponse is the token endpoint's JSON response shape.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// clientCredentialsBroker implements the machine flow: a discovery
// lookup followed by a form-encoded client_credentials POST to the
// discovered token endpoint.
type clientCredentialsBroker struct {
	creds      Credentials
	httpClient *http.Client

	discoveryMu  sync.RWMutex
	discovery    *discoveryDocument
	discoveredAt time.Time
	discoveryTTL time.Duration

	// discoveryGroup deduplicates concurrent discovery fetches.
	discoveryGroup singleflight.Group
}

var _ Broker = (*clientCredentialsBroker)(nil)

func (b *clientCredentialsBroker) Fetch(ctx context.Context) (*Token, error) {
	doc, err := b.discoverEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	return b.requestToken(ctx, doc.TokenEndpoint)
}

// discoverEndpoints returns the cached discovery document, fetching it
// when missing or stale. Concurrent callers share a single fetch.
func (b *clientCredentialsBroker) discoverEndpoints(ctx context.Context) (*discoveryDocument, error) {
	b.discoveryMu.RLock()
	if b.discovery != nil && time.Since(b.discoveredAt) < b.discoveryTTL {
		doc := b.discovery
		b.discoveryMu.RUnlock()
		return doc, nil
	}
	b.discoveryMu.RUnlock()

	result, err, _ := b.discoveryGroup.Do("discovery", func() (interface{}, error) {
		// Double-check after winning the singleflight slot: another
		// caller may have populated the cache while we waited.
		b.discoveryMu.RLock()
		if b.discovery != nil && time.Since(b.discoveredAt) < b.discoveryTTL {
			doc := b.discovery
			b.discoveryMu.RUnlock()
			return doc, nil
		}
		b.discoveryMu.RUnlock()

		doc, err := b.fetchDiscovery(ctx)
		if err != nil {
			return nil, err
		}

		b.discoveryMu.Lock()
		b.discovery = doc
		b.discoveredAt = time.Now()
		b.discoveryMu.Unlock()

		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*discoveryDocument), nil
}

func (b *clientCredentialsBroker) fetchDiscovery(ctx context.Context) (*discoveryDocument, error) {
	logging.Debug(subsystem, "Fetching discovery document from %s", b.creds.DiscoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.creds.DiscoveryURL, nil)
	if err != nil {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL, Err: fmt.Errorf("failed to parse document: %w", err)}
	}
	if doc.TokenEndpoint == "" {
		return nil, &DiscoveryError{URL: b.creds.DiscoveryURL}
	}

	logging.Debug(subsystem, "Discovered token endpoint %s", doc.TokenEndpoint)
	return &doc, nil
}

func (b *clientCredentialsBroker) requestToken(ctx context.Context, tokenEndpoint string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", b.creds.ClientID)
	data.Set("client_secret", b.creds.ClientSecret)
	if b.creds.Scope != "" {
		data.Set("scope", b.creds.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &TokenRequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &TokenRequestError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TokenRequestError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.Debug(subsystem, "Token request failed with status %d: %s", resp.StatusCode, string(body))
		return nil, &TokenRequestError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &TokenRequestError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &TokenMissingError{Endpoint: tokenEndpoint}
	}

	tok := mintToken(tr.AccessToken)
	if tr.TokenType != "" {
		tok.TokenType = tr.TokenType
	}
	logging.Debug(subsystem, "Obtained token via client-credentials flow")
	return tok, nil
}

// userPasswordBroker implements the resource-owner password flow
// against a fixed initiate-auth endpoint.
type userPasswordBroker struct {
	creds      Credentials
	httpClient *http.Client
}

var _ Broker = (*userPasswordBroker)(nil)

// initiateAuthRequest is the initiate-auth request shape.
type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

// initiateAuthResponse is the subset of the initiate-auth response the
// broker consumes.
type initiateAuthResponse struct {
	AuthenticationResult struct {
		AccessToken string `json:"AccessToken"`
		TokenType   string `json:"TokenType"`
		ExpiresIn   int    `json:"ExpiresIn"`
	} `json:"AuthenticationResult"`
}

func (b *userPasswordBroker) Fetch(ctx context.Context) (*Token, error) {
	payload, err := json.Marshal(initiateAuthRequest{
		AuthFlow: authFlowUserPassword,
		ClientID: b.creds.ClientID,
		AuthParameters: map[string]string{
			"USERNAME": b.creds.Username,
			"PASSWORD": b.creds.Password,
		},
	})
	if err != nil {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Err: err}
	}

	logging.Debug(subsystem, "Initiating user-password auth for %s", b.creds.Username)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.creds.AuthEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", initiateAuthTarget)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var provider struct {
			Type    string `json:"__type"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &provider)
		message := provider.Message
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		logging.Debug(subsystem, "Initiate-auth failed with status %d: %s", resp.StatusCode, message)
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Status: resp.StatusCode, Message: message}
	}

	var ar initiateAuthResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if ar.AuthenticationResult.AccessToken == "" {
		return nil, &AuthError{Endpoint: b.creds.AuthEndpoint}
	}

	tok := mintToken(ar.AuthenticationResult.AccessToken)
	if ar.AuthenticationResult.TokenType != "" {
		tok.TokenType = ar.AuthenticationResult.TokenType
	}
	logging.Debug(subsystem, "Obtained token via user-password flow")
	return tok, nil
}
