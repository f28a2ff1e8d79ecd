package mock

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// jwtHeader is the pre-computed base64-encoded JWT header for unsigned tokens.
// We use "none" algorithm since this is for testing only.
// Value: base64url({"alg":"none","typ":"JWT"})
//
// SECURITY WARNING: This generates unsigned JWTs with alg:none for TESTING ONLY.
// Production identity providers MUST sign tokens (RS256, ES256, ...) and
// downstream servers MUST reject alg:none.
const jwtHeader = "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0"

// accessTokenClaims is the claim set minted into mock access tokens.
type accessTokenClaims struct {
	Iss   string `json:"iss"`           // Issuer
	Sub   string `json:"sub"`           // Subject (client or user)
	Aud   string `json:"aud,omitempty"` // Audience (client ID)
	Exp   int64  `json:"exp"`           // Expiration time
	Iat   int64  `json:"iat"`           // Issued at
	Scope string `json:"scope,omitempty"`
}

// IdentityProviderConfig configures the mock identity provider.
type IdentityProviderConfig struct {
	// Issuer is the provider identifier. Defaults to the server's own
	// http://localhost:<port> address once started.
	Issuer string

	// ClientID and ClientSecret are the credentials the token endpoint
	// accepts for the client-credentials grant.
	ClientID     string
	ClientSecret string

	// Username and Password are the credentials the initiate-auth
	// endpoint accepts for the user-password grant.
	Username string
	Password string

	// Scope is the scope granted on issued tokens when the request does
	// not ask for one.
	Scope string

	// TokenLifetime is how long issued tokens remain valid.
	TokenLifetime time.Duration

	// SimulateErrors injects failures into individual endpoints.
	SimulateErrors *ErrorSimulation

	// Clock drives issued-at/expiry times. Defaults to RealClock.
	Clock Clock

	// Debug enables debug logging to stderr.
	Debug bool
}

// ErrorSimulation allows simulating error conditions per endpoint.
type ErrorSimulation struct {
	// DiscoveryStatus, when non-zero, is returned by the discovery
	// endpoint instead of the document.
	DiscoveryStatus int

	// OmitTokenEndpoint serves a discovery document without a
	// token_endpoint member.
	OmitTokenEndpoint bool

	// TokenEndpointStatus, when non-zero, is returned by /token with an
	// OAuth error body.
	TokenEndpointStatus int

	// TokenEndpointError is the error code used with
	// TokenEndpointStatus. Defaults to "invalid_client".
	TokenEndpointError string

	// OmitAccessToken serves a 200 token response without an
	// access_token member.
	OmitAccessToken bool

	// RejectAuth makes initiate-auth reject the credentials with a
	// NotAuthorizedException.
	RejectAuth bool

	// OmitAuthResult serves a 200 initiate-auth response without
	// AuthenticationResult.AccessToken.
	OmitAuthResult bool
}

// issuedToken tracks a token this provider has handed out.
type issuedToken struct {
	AccessToken string
	Scope       string
	ExpiresAt   time.Time
}

// IdentityProvider is a mock identity provider covering both toolgate
// auth flows: OAuth2 client-credentials behind a discovery document and
// a Cognito-style initiate-auth user-password exchange.
type IdentityProvider struct {
	config     IdentityProviderConfig
	httpServer *http.Server
	listener   net.Listener
	port       int
	running    bool
	mu         sync.RWMutex

	issuedTokens map[string]*issuedToken
	tokenCount   int

	clock Clock
}

// NewIdentityProvider creates a new mock identity provider.
func NewIdentityProvider(config IdentityProviderConfig) *IdentityProvider {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = 1 * time.Hour
	}
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}
	if config.ClientSecret == "" {
		config.ClientSecret = "test-secret"
	}
	if config.Username == "" {
		config.Username = "test-user"
	}
	if config.Password == "" {
		config.Password = "test-password"
	}
	if config.Scope == "" {
		config.Scope = "mcp.tools"
	}

	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	return &IdentityProvider{
		config:       config,
		issuedTokens: make(map[string]*issuedToken),
		clock:        clock,
	}
}

// Start starts the provider on a random available port.
func (s *IdentityProvider) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.port, nil
	}

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	if s.config.Issuer == "" {
		s.config.Issuer = fmt.Sprintf("http://localhost:%d", s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleDiscovery)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/initiate-auth", s.handleInitiateAuth)

	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "Identity provider error: %v\n", err)
			}
		}
	}()

	s.running = true

	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "🔐 Mock identity provider started on port %d (issuer: %s)\n", s.port, s.config.Issuer)
	}

	return s.port, nil
}

// Stop stops the provider.
func (s *IdentityProvider) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.httpServer.Shutdown(ctx)
	s.running = false
	return err
}

// IssuerURL returns the provider's issuer identifier.
func (s *IdentityProvider) IssuerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Issuer
}

// DiscoveryURL returns the openid-configuration document URL.
func (s *IdentityProvider) DiscoveryURL() string {
	return s.IssuerURL() + "/.well-known/openid-configuration"
}

// TokenURL returns the token endpoint URL.
func (s *IdentityProvider) TokenURL() string {
	return s.IssuerURL() + "/token"
}

// AuthEndpointURL returns the initiate-auth endpoint URL.
func (s *IdentityProvider) AuthEndpointURL() string {
	return s.IssuerURL() + "/initiate-auth"
}

// SetSimulateErrors replaces the fault injection config. Pass nil to
// restore normal behavior.
func (s *IdentityProvider) SetSimulateErrors(sim *ErrorSimulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.SimulateErrors = sim
}

// SetTokenLifetime changes the lifetime applied to tokens issued from
// now on. Already-issued tokens keep their original expiry.
func (s *IdentityProvider) SetTokenLifetime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.TokenLifetime = d
}

// simulateErrors returns the current fault injection config.
func (s *IdentityProvider) simulateErrors() *ErrorSimulation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.SimulateErrors
}

// ValidateToken checks whether the provider issued this token and it is
// still within its lifetime.
func (s *IdentityProvider) ValidateToken(accessToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.issuedTokens[accessToken]
	if !exists {
		return false
	}
	return s.clock.Now().Before(token.ExpiresAt)
}

// TokenScope returns the scope granted on an issued token, or "" for
// unknown tokens.
func (s *IdentityProvider) TokenScope(accessToken string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token, exists := s.issuedTokens[accessToken]; exists {
		return token.Scope
	}
	return ""
}

// TokenCount returns how many tokens the provider has issued. Retry
// tests use it to assert that re-authentication happened exactly once.
func (s *IdentityProvider) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenCount
}

// RevokeAllTokens removes all issued tokens, making them invalid for
// future validation. Returns the number of tokens revoked.
func (s *IdentityProvider) RevokeAllTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.issuedTokens)
	s.issuedTokens = make(map[string]*issuedToken)
	return count
}

// IssueToken mints a token directly, without going through an HTTP
// flow. Session tests use it to get a valid bearer without standing up
// a broker.
func (s *IdentityProvider) IssueToken(scope string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scope == "" {
		scope = s.config.Scope
	}
	return s.mintAccessToken(s.config.ClientID, scope)
}

// mintAccessToken generates an unsigned JWT and records it as issued.
// Note: caller must hold the write lock on mu.
func (s *IdentityProvider) mintAccessToken(sub, scope string) string {
	now := s.clock.Now()
	expiresAt := now.Add(s.config.TokenLifetime)

	claims := accessTokenClaims{
		Iss:   s.config.Issuer,
		Sub:   sub,
		Aud:   s.config.ClientID,
		Exp:   expiresAt.Unix(),
		Iat:   now.Unix(),
		Scope: scope,
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		// This should never happen with our fixed struct
		panic(fmt.Errorf("failed to marshal access token claims: %w", err))
	}

	// Unsigned JWT (header.payload.); the trailing dot indicates no
	// signature (alg: none).
	payload := base64.RawURLEncoding.EncodeToString(claimsJSON)
	token := fmt.Sprintf("%s.%s.", jwtHeader, payload)

	// Two tokens minted within the same second for the same subject are
	// byte-identical. Mix a nonce into the subject so revoking one never
	// silently revokes the other.
	if _, exists := s.issuedTokens[token]; exists {
		claims.Sub = sub + "-" + generateNonce()
		claimsJSON, _ = json.Marshal(claims)
		payload = base64.RawURLEncoding.EncodeToString(claimsJSON)
		token = fmt.Sprintf("%s.%s.", jwtHeader, payload)
	}

	s.issuedTokens[token] = &issuedToken{
		AccessToken: token,
		Scope:       scope,
		ExpiresAt:   expiresAt,
	}
	s.tokenCount++

	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "🔐 Issued token #%d for %s (scope: %s, expires: %s)\n",
			s.tokenCount, sub, scope, expiresAt.Format(time.RFC3339))
	}

	return token
}

// generateNonce generates a short random suffix.
// Panics if crypto/rand fails, which should never happen in practice.
func generateNonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// handleDiscovery serves the provider metadata document.
func (s *IdentityProvider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if sim := s.simulateErrors(); sim != nil {
		if sim.DiscoveryStatus != 0 {
			http.Error(w, "simulated discovery failure", sim.DiscoveryStatus)
			return
		}
		if sim.OmitTokenEndpoint {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"issuer":                 s.IssuerURL(),
				"authorization_endpoint": s.IssuerURL() + "/authorize",
			})
			return
		}
	}

	metadata := map[string]interface{}{
		"issuer":                                s.IssuerURL(),
		"token_endpoint":                        s.TokenURL(),
		"grant_types_supported":                 []string{"client_credentials"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post"},
		"scopes_supported":                      []string{s.config.Scope},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metadata)
}

// handleToken serves the client-credentials token endpoint.
func (s *IdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if sim := s.simulateErrors(); sim != nil {
		if sim.TokenEndpointStatus != 0 {
			errorCode := sim.TokenEndpointError
			if errorCode == "" {
				errorCode = "invalid_client"
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(sim.TokenEndpointStatus)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             errorCode,
				"error_description": "simulated token endpoint failure",
			})
			return
		}
		if sim.OmitAccessToken {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token_type": "Bearer",
				"expires_in": int(s.config.TokenLifetime.Seconds()),
			})
			return
		}
	}

	if grantType := r.FormValue("grant_type"); grantType != "client_credentials" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "unsupported_grant_type",
			"error_description": fmt.Sprintf("grant_type %s not supported", grantType),
		})
		return
	}

	if r.FormValue("client_id") != s.config.ClientID || r.FormValue("client_secret") != s.config.ClientSecret {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		})
		return
	}

	scope := r.FormValue("scope")
	if scope == "" {
		scope = s.config.Scope
	}

	s.mu.Lock()
	accessToken := s.mintAccessToken(s.config.ClientID, scope)
	lifetime := s.config.TokenLifetime
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(lifetime.Seconds()),
		"scope":        scope,
	})
}

// initiateAuthRequest is the Cognito InitiateAuth request shape.
type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

// handleInitiateAuth serves the Cognito-style user-password exchange.
func (s *IdentityProvider) handleInitiateAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if target := r.Header.Get("X-Amz-Target"); target != "AWSCognitoIdentityProviderService.InitiateAuth" {
		s.authError(w, http.StatusBadRequest, "UnknownOperationException",
			fmt.Sprintf("unknown operation %q", target))
		return
	}

	var req initiateAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.authError(w, http.StatusBadRequest, "SerializationException", "malformed request body")
		return
	}

	if sim := s.simulateErrors(); sim != nil {
		if sim.RejectAuth {
			s.authError(w, http.StatusBadRequest, "NotAuthorizedException", "Incorrect username or password.")
			return
		}
		if sim.OmitAuthResult {
			w.Header().Set("Content-Type", "application/x-amz-json-1.1")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ChallengeName":       "NEW_PASSWORD_REQUIRED",
				"ChallengeParameters": map[string]string{},
			})
			return
		}
	}

	if req.AuthFlow != "USER_PASSWORD_AUTH" {
		s.authError(w, http.StatusBadRequest, "InvalidParameterException",
			fmt.Sprintf("auth flow %q not enabled for this client", req.AuthFlow))
		return
	}
	if req.ClientID != s.config.ClientID {
		s.authError(w, http.StatusBadRequest, "ResourceNotFoundException",
			fmt.Sprintf("client %s does not exist", req.ClientID))
		return
	}
	if req.AuthParameters["USERNAME"] != s.config.Username || req.AuthParameters["PASSWORD"] != s.config.Password {
		s.authError(w, http.StatusBadRequest, "NotAuthorizedException", "Incorrect username or password.")
		return
	}

	s.mu.Lock()
	accessToken := s.mintAccessToken(s.config.Username, s.config.Scope)
	lifetime := s.config.TokenLifetime
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"AuthenticationResult": map[string]interface{}{
			"AccessToken": accessToken,
			"ExpiresIn":   int(lifetime.Seconds()),
			"TokenType":   "Bearer",
		},
		"ChallengeParameters": map[string]string{},
	})
}

// authError writes a Cognito-style error body.
func (s *IdentityProvider) authError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"__type":  errType,
		"message": message,
	})
}
