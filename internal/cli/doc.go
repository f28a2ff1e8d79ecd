// Package cli implements the command-line surface over the session
// manager.
//
// ToolExecutor is the entry point: it composes the secret store, token
// broker and session manager from configuration plus flag overrides,
// runs one operation (list tools, describe a tool, call a tool, fetch a
// token) and renders the outcome in the requested output format.
//
// # Output Formats
//
//   - table: compact human-readable table (default)
//   - wide: the table with additional columns and untruncated text
//   - json: raw JSON for programmatic consumption
//   - yaml: YAML converted from the JSON representation
//
// # Failure Reporting
//
// Every error leaving this package is attributable to the pipeline
// stage that produced it: secret lookup, discovery, token request,
// authentication, connect, initialize, list tools or call tool.
// FailureStage classifies an error chain into one of those stages and
// FormatFailure renders it as a terminal diagnostic, with a hint line
// when there is an obvious operator action.
package cli
