package broker

import (
	"errors"
	"fmt"
)

// DiscoveryError indicates the provider's discovery document could not
// be fetched, could not be parsed, or did not contain a usable
// token_endpoint. No token request is attempted after a discovery
// failure.
type DiscoveryError struct {
	// URL is the discovery document URL that failed.
	URL string

	// Status is the HTTP status when the document was served but
	// unusable; zero for network-level failures.
	Status int

	// Err is the underlying fetch or parse error, if any.
	Err error
}

func (e *DiscoveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("discovery failed for %s: %v", e.URL, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("discovery request for %s returned status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("discovery document from %s contains no token_endpoint", e.URL)
	}
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *DiscoveryError) Is(target error) bool {
	_, ok := target.(*DiscoveryError)
	return ok
}

// TokenRequestError indicates the token endpoint rejected the
// client-credentials request, or the request itself failed at the
// network level (Status zero, Err set).
type TokenRequestError struct {
	// StatusCode is the HTTP status returned by the token endpoint.
	StatusCode int

	// Body is the response body, kept verbatim to support
	// troubleshooting provider-side misconfiguration.
	Body string

	// Err is the underlying transport error for network-level failures.
	Err error
}

func (e *TokenRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token request failed: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("token request failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token request failed with status %d", e.StatusCode)
}

func (e *TokenRequestError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *TokenRequestError) Is(target error) bool {
	_, ok := target.(*TokenRequestError)
	return ok
}

// TokenMissingError indicates the token endpoint answered HTTP 200 but
// the response body carried no access_token field.
type TokenMissingError struct {
	// Endpoint is the token endpoint that produced the response.
	Endpoint string
}

func (e *TokenMissingError) Error() string {
	return fmt.Sprintf("token response from %s contains no access_token", e.Endpoint)
}

// Is implements error matching for errors.Is.
func (e *TokenMissingError) Is(target error) bool {
	_, ok := target.(*TokenMissingError)
	return ok
}

// AuthError indicates the identity provider rejected an authentication
// attempt in the user-password flow, or the flow's response was missing
// a required field.
type AuthError struct {
	// Endpoint is the initiate-auth endpoint involved.
	Endpoint string

	// Status is the HTTP status for provider rejections; zero for
	// network-level failures and malformed responses.
	Status int

	// Message is the provider-reported failure message, when present.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("authentication failed against %s: %v", e.Endpoint, e.Err)
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("authentication failed with status %d: %s", e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("authentication failed with status %d", e.Status)
	case e.Message != "":
		return fmt.Sprintf("authentication failed: %s", e.Message)
	default:
		return fmt.Sprintf("authentication response from %s contains no AuthenticationResult.AccessToken", e.Endpoint)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *AuthError) Is(target error) bool {
	_, ok := target.(*AuthError)
	return ok
}

// IsAuthError returns true if err is an AuthError anywhere in its
// chain.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
