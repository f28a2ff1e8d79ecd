package broker

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// GrantType selects which OAuth2 flow a broker uses to obtain tokens.
type GrantType string

const (
	// GrantClientCredentials authenticates as a machine client with a
	// client id/secret pair against a token endpoint looked up from the
	// provider's discovery document.
	GrantClientCredentials GrantType = "client_credentials"

	// GrantUserPassword exchanges a username/password pair for a token
	// against the provider's fixed initiate-auth endpoint.
	GrantUserPassword GrantType = "user_password"
)

// Credentials carries the credential material for one broker instance.
// Grant selects the flow; only the fields belonging to that flow are
// required. Credentials are immutable once handed to NewBroker.
type Credentials struct {
	// Grant selects the flow.
	Grant GrantType

	// ClientID identifies the app client. Required by both flows.
	ClientID string

	// ClientSecret authenticates the machine client (client-credentials
	// flow only).
	ClientSecret string

	// DiscoveryURL points at the provider's discovery document
	// (client-credentials flow only).
	DiscoveryURL string

	// Scope optionally narrows the requested scopes, space-separated
	// (client-credentials flow only).
	Scope string

	// Username and Password are the resource-owner credentials
	// (user-password flow only).
	Username string
	Password string

	// AuthEndpoint is the provider's initiate-auth endpoint
	// (user-password flow only).
	AuthEndpoint string
}

// Token is a bearer token together with the identity claims read from
// it at acquisition time. The raw value is opaque beyond the iat/exp
// claims; it is never mutated, only replaced by a fresh fetch.
type Token struct {
	// Value is the raw bearer token exactly as issued.
	Value string

	// TokenType is typically "Bearer".
	TokenType string

	// IssuedAt is the token's iat claim, or the local acquisition time
	// when the claim is absent.
	IssuedAt time.Time

	// ExpiresAt is the token's exp claim. A zero value means the expiry
	// is unknown; such tokens never report expired locally.
	ExpiresAt time.Time
}

// IsExpired reports whether the token's expiry has passed. Tokens
// without a known expiry never expire locally; the server remains the
// enforcement point.
func (t *Token) IsExpired() bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(t.ExpiresAt)
}

// ExpiresIn returns the remaining token lifetime. Zero when the expiry
// is unknown; negative when it has already passed.
func (t *Token) ExpiresIn() time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	return time.Until(t.ExpiresAt)
}

// ToOAuth2Token converts the token for use with golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   t.TokenType,
		Expiry:      t.ExpiresAt,
	}
}

// TokenSource adapts a Broker to the oauth2.TokenSource interface so
// the broker can feed oauth2-aware HTTP stacks. Every Token call
// performs a full fetch; wrap the result in oauth2.ReuseTokenSource to
// get caching.
func TokenSource(ctx context.Context, b Broker) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, broker: b}
}

type tokenSource struct {
	ctx    context.Context
	broker Broker
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.broker.Fetch(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.ToOAuth2Token(), nil
}
