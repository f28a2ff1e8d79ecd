package cli

import (
	"errors"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"toolgate/internal/broker"
	"toolgate/internal/secrets"
	"toolgate/internal/session"
)

// FailureStage attributes err to the pipeline stage that produced it:
// secret lookup, discovery, token request, authentication, then the
// session stages (connect, initialize, list tools, call tool) and
// finally the tool itself. Unrecognized errors return "".
func FailureStage(err error) string {
	var (
		discoveryErr *broker.DiscoveryError
		tokenReqErr  *broker.TokenRequestError
		tokenMissErr *broker.TokenMissingError
		authErr      *broker.AuthError
		transportErr *session.TransportError
		timeoutErr   *session.TimeoutError
		stateErr     *session.InvalidStateError
		toolErr      *session.RemoteToolError
	)
	switch {
	case err == nil:
		return ""
	case secrets.IsNotFound(err):
		return "secret lookup"
	case errors.As(err, &discoveryErr):
		return "discovery"
	case errors.As(err, &tokenReqErr), errors.As(err, &tokenMissErr):
		return "token request"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &transportErr):
		return transportErr.Stage
	case errors.As(err, &timeoutErr):
		return timeoutErr.Stage
	case errors.As(err, &stateErr):
		return "session state"
	case errors.As(err, &toolErr):
		return "tool call"
	case session.IsAuthStatusError(err):
		return "authorization"
	default:
		return ""
	}
}

// FormatFailure renders err as a terminal diagnostic. The first line is
// the error itself; a hint line follows when there is an obvious
// operator action. The taxonomy's own messages already name the failed
// stage, so nothing is prefixed here.
func FormatFailure(err error) string {
	lines := []string{text.FgRed.Sprint("❌ " + err.Error())}
	if hint := failureHint(err); hint != "" {
		lines = append(lines, text.FgYellow.Sprint("   "+hint))
	}
	return strings.Join(lines, "\n")
}

func failureHint(err error) string {
	var (
		discoveryErr *broker.DiscoveryError
		tokenReqErr  *broker.TokenRequestError
		authErr      *broker.AuthError
		timeoutErr   *session.TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case secrets.IsNotFound(err):
		return "Provision the credential in your secret store, or point --config at one that has it."
	case errors.As(err, &discoveryErr):
		return "Check the discovery URL and that the identity provider is reachable."
	case errors.As(err, &tokenReqErr) && tokenReqErr.StatusCode >= 400 && tokenReqErr.StatusCode < 500:
		return "Verify the client id and client secret configured for this endpoint."
	case errors.As(err, &authErr):
		return "Verify the username and password configured for this endpoint."
	case errors.As(err, &timeoutErr):
		return "Increase --timeout or check the tool server's health."
	case session.IsAuthStatusError(err):
		return "The tool server rejected the token. Check that the token scope matches what the server requires."
	default:
		return ""
	}
}
