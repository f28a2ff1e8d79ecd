// Package mock provides the heavyweight test doubles for toolgate's
// integration tests: a mock identity provider and a bearer-protected
// mock MCP tool server.
//
// The IdentityProvider serves a discovery document, an OAuth2
// client-credentials token endpoint, and a Cognito-style initiate-auth
// endpoint. It issues unsigned JWTs (alg: none) whose lifetimes follow
// an injectable Clock, tracks every token it has issued, and supports
// per-endpoint fault injection through ErrorSimulation so tests can
// force discovery failures, malformed token responses, and credential
// rejections.
//
// The ToolServer runs a real mcp-go streamable-HTTP MCP server on a
// random local port behind a bearer-token middleware. Requests without
// a valid token receive a 401 challenge with a WWW-Authenticate header;
// ForceRejections arms the middleware to reject the next N tool calls
// with a chosen status (401 or 403), which is how the re-authentication
// retry paths are exercised. The server exposes a small fixed tool set
// (add_numbers, multiply_numbers, divide_numbers, greet_user) used by
// session, manager, and CLI tests.
//
// Both servers listen on random ports and validate tokens against the
// same IdentityProvider instance when wired together, so a test can
// revoke tokens on the provider and observe the tool server start
// rejecting them.
package mock
