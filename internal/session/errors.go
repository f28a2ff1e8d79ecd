package session

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// TransportCategory categorizes the cause of a transport failure.
type TransportCategory int

const (
	// CategoryUnknown indicates an unclassified transport error.
	CategoryUnknown TransportCategory = iota
	// CategoryTLS indicates a TLS/certificate verification error.
	CategoryTLS
	// CategoryNetwork indicates a connectivity error (refused, reset,
	// unreachable).
	CategoryNetwork
	// CategoryDNS indicates a name resolution failure.
	CategoryDNS
)

// String returns a human-readable name for the category.
func (c TransportCategory) String() string {
	switch c {
	case CategoryTLS:
		return "TLS certificate error"
	case CategoryNetwork:
		return "network error"
	case CategoryDNS:
		return "DNS resolution error"
	default:
		return "transport error"
	}
}

// TransportError indicates the connection to the tool server failed at
// the transport level: TLS, DNS, refused, or another network fault.
// Stage names the operation that hit it (connect, initialize, list
// tools, call tool).
type TransportError struct {
	Stage    string
	Endpoint string
	Category TransportCategory
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed (%s) for %s: %v", e.Stage, e.Category, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *TransportError) Is(target error) bool {
	_, ok := target.(*TransportError)
	return ok
}

// TimeoutError indicates an operation exceeded its deadline. Retry
// handling treats it exactly like a TransportError; the separate type
// exists so callers can report it precisely.
type TimeoutError struct {
	Stage    string
	Endpoint string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s for %s", e.Stage, e.Timeout, e.Endpoint)
	}
	return fmt.Sprintf("%s timed out for %s: %v", e.Stage, e.Endpoint, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// InvalidStateError indicates a protocol operation was called out of
// order, for example CallTool before Initialize.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.State)
}

// Is implements error matching for errors.Is.
func (e *InvalidStateError) Is(target error) bool {
	_, ok := target.(*InvalidStateError)
	return ok
}

// RemoteToolError is a server-reported failure for one tool call. The
// transport and protocol were fine; the tool itself reported an error.
type RemoteToolError struct {
	Tool    string
	Message string
}

func (e *RemoteToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

// Is implements error matching for errors.Is.
func (e *RemoteToolError) Is(target error) bool {
	_, ok := target.(*RemoteToolError)
	return ok
}

// classifyTransportError converts a raw operation failure into the
// matching taxonomy type. Timeouts get their own type; everything else
// becomes a TransportError with a best-effort category.
func classifyTransportError(stage, endpoint string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if isTimeoutError(err) {
		return &TimeoutError{Stage: stage, Endpoint: endpoint, Timeout: timeout, Err: err}
	}
	return &TransportError{Stage: stage, Endpoint: endpoint, Category: categorizeTransportError(err), Err: err}
}

func categorizeTransportError(err error) TransportCategory {
	if isTLSError(err) {
		return CategoryTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}

	if isNetworkError(err.Error()) {
		return CategoryNetwork
	}

	return CategoryUnknown
}

// isTLSError checks if the error is related to TLS/certificate issues.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *x509.CertificateInvalidError
	var hostErr *x509.HostnameError
	var unknownAuthErr *x509.UnknownAuthorityError
	var systemRootsErr *x509.SystemRootsError

	if errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &systemRootsErr) {
		return true
	}

	errStr := err.Error()
	tlsKeywords := []string{
		"x509:",
		"certificate",
		"tls:",
		"TLS handshake",
	}

	for _, keyword := range tlsKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is a timeout or exceeded deadline.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// net.Error carries Timeout() as interface behavior, which needs a
	// manual unwrap walk.
	for e := err; e != nil; {
		if ne, ok := e.(net.Error); ok && ne.Timeout() {
			return true
		}
		if u, ok := e.(interface{ Unwrap() error }); ok {
			e = u.Unwrap()
		} else {
			break
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if the error string indicates a connectivity
// issue.
func isNetworkError(errStr string) bool {
	networkKeywords := []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"connect:",
	}

	for _, keyword := range networkKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// authStatusPatterns are the message shapes the MCP transport produces
// when the server rejects a request with HTTP 401 or 403. The transport
// folds status codes into error strings, so detection is textual.
var authStatusPatterns = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid_token",
	"insufficient_scope",
	"token expired",
	"token has expired",
	"access token expired",
	"token validation failed",
}

// IsAuthStatusError reports whether err looks like an authentication
// rejection (HTTP 401/403 class) surfaced through the transport. These
// are the failures worth one re-authentication attempt; everything else
// is surfaced immediately.
func IsAuthStatusError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range authStatusPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
