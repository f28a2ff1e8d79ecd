package mock

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

const toolCallBody = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add_numbers","arguments":{"a":1,"b":2}}}`

func postMCP(t *testing.T, endpoint, bearer, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

func TestToolServer_StartStop(t *testing.T) {
	server := NewToolServer(ToolServerConfig{Name: "test-tools"})

	ctx := context.Background()

	port, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	if port == 0 {
		t.Error("Expected non-zero port")
	}
	if server.Endpoint() == "" {
		t.Error("Expected non-empty endpoint")
	}

	if err := server.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop tool server: %v", err)
	}
	if server.Endpoint() != "" {
		t.Error("Expected empty endpoint after stop")
	}
}

func TestToolServer_RequiresAuth(t *testing.T) {
	server := NewToolServer(ToolServerConfig{Name: "protected"})

	ctx := context.Background()
	if _, err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	defer server.Stop(ctx)

	resp := postMCP(t, server.Endpoint(), "", toolCallBody)
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without auth, got %d", resp.StatusCode)
	}

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	if wwwAuth == "" {
		t.Error("Expected WWW-Authenticate header in 401 response")
	}
	if !strings.HasPrefix(wwwAuth, "Bearer") {
		t.Errorf("Expected WWW-Authenticate to start with 'Bearer', got: %s", wwwAuth)
	}

	if server.RejectedCount() != 1 {
		t.Errorf("Expected 1 rejected request, got %d", server.RejectedCount())
	}
}

func TestToolServer_AcceptsAnyBearerWithoutIdP(t *testing.T) {
	server := NewToolServer(ToolServerConfig{Name: "open"})

	ctx := context.Background()
	if _, err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	defer server.Stop(ctx)

	// The request may still fail inside the MCP handler (no session),
	// but it must clear the auth middleware.
	resp := postMCP(t, server.Endpoint(), "anything", toolCallBody)
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.Errorf("Expected request to pass auth middleware, got %d", resp.StatusCode)
	}
}

func TestToolServer_ValidatesTokensAgainstIdP(t *testing.T) {
	idp := NewIdentityProvider(IdentityProviderConfig{TokenLifetime: time.Hour})
	server := NewToolServer(ToolServerConfig{Name: "protected", IdP: idp})

	ctx := context.Background()
	if _, err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	defer server.Stop(ctx)

	resp := postMCP(t, server.Endpoint(), "not-issued-by-idp", toolCallBody)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown token, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "invalid_token") {
		t.Errorf("Expected invalid_token in rejection body, got: %s", body)
	}

	token := idp.IssueToken("")
	resp = postMCP(t, server.Endpoint(), token, toolCallBody)
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Error("Got 401 with valid token - authentication should have passed")
	}

	// Revoking the token brings the 401s back.
	idp.RevokeAllTokens()
	resp = postMCP(t, server.Endpoint(), token, toolCallBody)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for revoked token, got %d", resp.StatusCode)
	}
}

func TestToolServer_ScopeEnforcement(t *testing.T) {
	idp := NewIdentityProvider(IdentityProviderConfig{Scope: "mcp.tools"})
	server := NewToolServer(ToolServerConfig{
		Name:          "scoped",
		IdP:           idp,
		RequiredScope: "admin.tools",
	})

	ctx := context.Background()
	if _, err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	defer server.Stop(ctx)

	token := idp.IssueToken("mcp.tools")
	resp := postMCP(t, server.Endpoint(), token, toolCallBody)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for missing scope, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "insufficient_scope") {
		t.Errorf("Expected insufficient_scope body, got: %s", body)
	}

	admin := idp.IssueToken("admin.tools")
	resp = postMCP(t, server.Endpoint(), admin, toolCallBody)
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		t.Error("Got 403 with sufficient scope")
	}
}

func TestToolServer_ForceRejections(t *testing.T) {
	server := NewToolServer(ToolServerConfig{Name: "flaky"})

	ctx := context.Background()
	if _, err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start tool server: %v", err)
	}
	defer server.Stop(ctx)

	server.ForceRejections(http.StatusForbidden, 1)

	// Initialize-style traffic passes through even while armed.
	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	resp := postMCP(t, server.Endpoint(), "token", initBody)
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		t.Error("Expected non-tool-call traffic to pass while rejections are armed")
	}

	// First tool call eats the forced rejection.
	resp = postMCP(t, server.Endpoint(), "token", toolCallBody)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected forced 403, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "insufficient_scope") {
		t.Errorf("Expected insufficient_scope body, got: %s", body)
	}

	// Second tool call passes the middleware again.
	resp = postMCP(t, server.Endpoint(), "token", toolCallBody)
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		t.Error("Expected force to be exhausted after one rejection")
	}

	if server.CallCount("add_numbers") != 2 {
		t.Errorf("Expected 2 recorded add_numbers calls, got %d", server.CallCount("add_numbers"))
	}
	if server.RejectedCount() != 1 {
		t.Errorf("Expected 1 rejected request, got %d", server.RejectedCount())
	}
}
