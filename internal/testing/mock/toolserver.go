package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolServerConfig configures a bearer-protected mock MCP tool server.
type ToolServerConfig struct {
	// Name is the name of this tool server.
	Name string

	// IdP is the identity provider to validate bearer tokens against.
	// When nil, any non-empty bearer token is accepted.
	IdP *IdentityProvider

	// RequiredScope, when set, demands that the validated token's scope
	// contains it; otherwise the request is rejected with 403.
	RequiredScope string

	// Debug enables debug logging to stderr.
	Debug bool
}

// ToolServer is a mock MCP tool server that requires bearer
// authentication. It runs a real streamable-HTTP MCP server with a
// fixed arithmetic/greeting tool set behind a token-checking
// middleware.
type ToolServer struct {
	config     ToolServerConfig
	httpServer *http.Server
	listener   net.Listener
	port       int
	running    bool
	mu         sync.RWMutex

	// Rejection forcing and request accounting, guarded separately so
	// handlers never contend with Start/Stop.
	countMu        sync.Mutex
	forceStatus    int
	forceRemaining int
	requestCount   int
	rejectedCount  int
	callCounts     map[string]int
}

// NewToolServer creates a new bearer-protected mock tool server.
func NewToolServer(config ToolServerConfig) *ToolServer {
	if config.Name == "" {
		config.Name = "tools"
	}
	return &ToolServer{
		config:     config,
		callCounts: make(map[string]int),
	}
}

// Start starts the tool server on a random available port.
func (s *ToolServer) Start(ctx context.Context) (int, error) {
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

	s.httpServer = &http.Server{Handler: s.createProtectedHandler()}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "Tool server error: %v\n", err)
			}
		}
	}()

	s.running = true

	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "🔒 Mock tool server %s started on port %d\n", s.config.Name, s.port)
	}

	return s.port, nil
}

// Stop stops the tool server.
func (s *ToolServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.httpServer.Shutdown(ctx)
	s.running = false
	return err
}

// Port returns the port the server is listening on.
func (s *ToolServer) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Endpoint returns the MCP endpoint URL.
func (s *ToolServer) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d/mcp", s.port)
}

// ForceRejections arms the middleware to reject the next count tool
// calls with the given HTTP status (401 or 403). Protocol traffic other
// than tools/call passes through unaffected, so a rejected session can
// still re-establish itself.
func (s *ToolServer) ForceRejections(status, count int) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	s.forceStatus = status
	s.forceRemaining = count
}

// RequestCount returns how many HTTP requests the middleware has seen.
func (s *ToolServer) RequestCount() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.requestCount
}

// RejectedCount returns how many requests were rejected with 401/403.
func (s *ToolServer) RejectedCount() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.rejectedCount
}

// CallCount returns how many tools/call requests reached the server for
// the named tool, including rejected ones.
func (s *ToolServer) CallCount(tool string) int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.callCounts[tool]
}

// createProtectedHandler wraps the MCP handler with bearer validation.
func (s *ToolServer) createProtectedHandler() http.Handler {
	mcpServer := server.NewMCPServer(
		fmt.Sprintf("mock-%s", s.config.Name),
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	registerDemoTools(mcpServer)

	return &bearerMiddleware{
		server:  s,
		handler: server.NewStreamableHTTPServer(mcpServer),
	}
}

// registerDemoTools adds the fixed tool set to the MCP server.
func registerDemoTools(mcpServer *server.MCPServer) {
	addTool := mcp.NewTool("add_numbers",
		mcp.WithDescription("Add two numbers and return the sum"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	)
	mcpServer.AddTool(addTool, handleAddNumbers)

	multiplyTool := mcp.NewTool("multiply_numbers",
		mcp.WithDescription("Multiply two numbers and return the product"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	)
	mcpServer.AddTool(multiplyTool, handleMultiplyNumbers)

	divideTool := mcp.NewTool("divide_numbers",
		mcp.WithDescription("Divide the first number by the second"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("Dividend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Divisor")),
	)
	mcpServer.AddTool(divideTool, handleDivideNumbers)

	greetTool := mcp.NewTool("greet_user",
		mcp.WithDescription("Greet a user by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the user to greet")),
	)
	mcpServer.AddTool(greetTool, handleGreetUser)
}

func handleAddNumbers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, b, err := twoNumberArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatNumber(a + b)), nil
}

func handleMultiplyNumbers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, b, err := twoNumberArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatNumber(a * b)), nil
}

func handleDivideNumbers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, b, err := twoNumberArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if b == 0 {
		return mcp.NewToolResultError("division by zero"), nil
	}
	return mcp.NewToolResultText(formatNumber(a / b)), nil
}

func handleGreetUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("missing required argument \"name\""), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hello, %s!", name)), nil
}

// twoNumberArgs extracts the a and b number arguments from a request.
func twoNumberArgs(request mcp.CallToolRequest) (float64, float64, error) {
	args := request.GetArguments()
	a, err := numberArg(args, "a")
	if err != nil {
		return 0, 0, err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func numberArg(args map[string]interface{}, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
	return f, nil
}

// formatNumber renders a numeric result. Integer results print without
// a decimal point (8, not 8.0).
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// bearerMiddleware validates bearer tokens before passing requests to
// the MCP handler.
type bearerMiddleware struct {
	server  *ToolServer
	handler http.Handler
}

// rpcEnvelope is the slice of a JSON-RPC request the middleware needs
// for accounting and force-rejection targeting.
type rpcEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Name string `json:"name"`
	} `json:"params"`
}

func (m *bearerMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := m.server

	// The body is consumed for request sniffing and restored for the
	// MCP handler.
	var envelope rpcEnvelope
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err == nil {
			json.Unmarshal(body, &envelope)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
	}
	isToolCall := envelope.Method == "tools/call"

	s.countMu.Lock()
	s.requestCount++
	if isToolCall {
		s.callCounts[envelope.Params.Name]++
	}
	forced := 0
	if isToolCall && s.forceRemaining > 0 {
		s.forceRemaining--
		forced = s.forceStatus
	}
	s.countMu.Unlock()

	if forced != 0 {
		if s.config.Debug {
			fmt.Fprintf(os.Stderr, "🔒 Forcing %d rejection for tool call %q\n", forced, envelope.Params.Name)
		}
		s.reject(w, forced)
		return
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		if s.config.Debug {
			fmt.Fprintf(os.Stderr, "🔒 No/invalid Authorization header, returning 401\n")
		}
		s.reject(w, http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(auth, "Bearer ")

	if s.config.IdP != nil {
		if !s.config.IdP.ValidateToken(token) {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "🔒 Token validation failed, returning 401\n")
			}
			s.reject(w, http.StatusUnauthorized)
			return
		}
		if s.config.RequiredScope != "" && !strings.Contains(s.config.IdP.TokenScope(token), s.config.RequiredScope) {
			if s.config.Debug {
				fmt.Fprintf(os.Stderr, "🔒 Token missing required scope %s, returning 403\n", s.config.RequiredScope)
			}
			s.reject(w, http.StatusForbidden)
			return
		}
	}

	m.handler.ServeHTTP(w, r)
}

// reject writes a 401 challenge or 403 response. The bodies carry the
// phrases real providers use so clients exercising error classification
// see realistic text.
func (s *ToolServer) reject(w http.ResponseWriter, status int) {
	s.countMu.Lock()
	s.rejectedCount++
	s.countMu.Unlock()

	if status == http.StatusForbidden {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("insufficient_scope"))
		return
	}

	// 401 challenge per RFC 6750.
	realm := ""
	if s.config.IdP != nil {
		realm = s.config.IdP.IssuerURL()
	}
	authHeader := fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, realm)
	if s.config.RequiredScope != "" {
		authHeader += fmt.Sprintf(`, scope=%q`, s.config.RequiredScope)
	}
	w.Header().Set("WWW-Authenticate", authHeader)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"invalid_token","error_description":"Token validation failed"}`))
}
