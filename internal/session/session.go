// Package session maintains one authenticated streamable-HTTP connection
// to a remote tool server. A Session walks a strict lifecycle, from
// Disconnected through Connect and Initialize to Initialized, where
// ListTools and CallTool become available, and ends at Closed. Closed is
// terminal; re-authentication means building a new Session with a fresh
// bearer token, which is the manager package's job.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"toolgate/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const subsystem = "ToolSession"

// DefaultTimeout bounds each protocol operation (connect, initialize,
// list tools, call tool) unless WithTimeout overrides it.
const DefaultTimeout = 120 * time.Second

const protocolVersion = "2024-11-05"

// Session is a single authenticated connection to a tool server. All
// methods are safe for concurrent use; protocol operations require the
// lifecycle order Connect, Initialize, then ListTools/CallTool.
type Session struct {
	id       string
	endpoint string
	token    string
	timeout  time.Duration

	mu     sync.RWMutex
	state  State
	client *client.Client
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout overrides the per-operation timeout. Non-positive values
// are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a disconnected Session for the given endpoint. The bearer
// token is fixed for the session's lifetime; a rotated token needs a new
// Session.
func New(endpoint, bearerToken string, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New().String(),
		endpoint: endpoint,
		token:    bearerToken,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier, used to correlate log
// lines across the session's lifetime.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect establishes the HTTP transport. Every request the transport
// sends carries the bearer token and JSON content headers. On failure
// the session remains Disconnected and Connect may be retried.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return &InvalidStateError{Op: "connect", State: s.state}
	}

	logging.Debug(subsystem, "Connecting to %s (session %s)", s.endpoint, s.id)

	headers := map[string]string{
		"Authorization": "Bearer " + s.token,
		"Content-Type":  "application/json",
		"Accept":        "application/json, text/event-stream",
	}

	mcpClient, err := client.NewStreamableHttpClient(s.endpoint, transport.WithHTTPHeaders(headers))
	if err != nil {
		return classifyTransportError("connect", s.endpoint, s.timeout, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := mcpClient.Start(timeoutCtx); err != nil {
		mcpClient.Close()
		return classifyTransportError("connect", s.endpoint, s.timeout, err)
	}

	s.client = mcpClient
	s.state = StateConnected

	return nil
}

// Initialize performs the protocol handshake. The session must be
// Connected. On failure the session stays Connected; the caller decides
// whether to close it.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return &InvalidStateError{Op: "initialize", State: s.state}
	}

	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "toolgate",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.Initialize(timeoutCtx, req)
	if err != nil {
		return classifyTransportError("initialize", s.endpoint, s.timeout, err)
	}

	s.state = StateInitialized

	logging.Debug(subsystem, "Session %s initialized. Server: %s, Version: %s",
		s.id, result.ServerInfo.Name, result.ServerInfo.Version)

	return nil
}

// clientInState returns the underlying client if the session is
// Initialized, or an InvalidStateError naming op otherwise.
// Note: Caller must hold at least a read lock on mu.
func (s *Session) clientInState(op string) (*client.Client, error) {
	if s.state != StateInitialized || s.client == nil {
		return nil, &InvalidStateError{Op: op, State: s.state}
	}
	return s.client, nil
}

// ListTools returns all tools the server advertises.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mcpClient, err := s.clientInState("list tools")
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := mcpClient.ListTools(timeoutCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, classifyTransportError("list tools", s.endpoint, s.timeout, err)
	}

	return result.Tools, nil
}

// CallTool invokes a named tool. When the server reports a tool-level
// failure the result is returned alongside a RemoteToolError carrying
// the server's message, so callers can inspect the full payload.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mcpClient, err := s.clientInState("call tool")
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := mcpClient.CallTool(timeoutCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, classifyTransportError("call tool", s.endpoint, s.timeout, err)
	}

	if result.IsError {
		return result, &RemoteToolError{Tool: name, Message: TextContent(result)}
	}

	return result, nil
}

// Close shuts down the transport and moves the session to Closed. It is
// idempotent: only the first call touches the transport, later calls
// return nil. A Closed session cannot be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	s.state = StateClosed

	logging.Debug(subsystem, "Session %s closed", s.id)

	return err
}

// TextContent flattens a tool result's text blocks into one string,
// joining multiple blocks with newlines. Non-text content is skipped.
func TextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
