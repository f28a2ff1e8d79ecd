package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"toolgate/internal/broker"
)

func sampleTools() []mcp.Tool {
	multiply := mcp.NewTool("multiply_numbers",
		mcp.WithDescription("Multiply two numbers and return the product"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	)
	greet := mcp.NewTool("greet_user",
		mcp.WithDescription("Greet a user by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the user to greet")),
	)
	// Unsorted on purpose; rendering sorts by name.
	return []mcp.Tool{multiply, greet}
}

func newTestExecutor(format OutputFormat, out *bytes.Buffer) *ToolExecutor {
	return &ToolExecutor{
		opts:   ExecutorOptions{Format: format, Quiet: true},
		out:    out,
		errOut: out,
	}
}

func TestValidateOutputFormat(t *testing.T) {
	for _, format := range []string{"table", "wide", "json", "yaml"} {
		assert.NoError(t, ValidateOutputFormat(format))
	}
	err := ValidateOutputFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid output format "xml"`)
}

func TestRenderToolsTable(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatTable, &buf)

	require.NoError(t, e.renderTools(sampleTools()))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "greet_user")
	assert.Contains(t, out, "multiply_numbers")
	assert.Contains(t, out, "2 tools")
	// Sorted by name: greet_user renders before multiply_numbers.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("greet_user")), bytes.Index(buf.Bytes(), []byte("multiply_numbers")))
	// Args column is wide-only.
	assert.NotContains(t, out, "ARGS")
}

func TestRenderToolsWide(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatWide, &buf)

	require.NoError(t, e.renderTools(sampleTools()))

	out := buf.String()
	assert.Contains(t, out, "ARGS")
	assert.Contains(t, out, "2 (2 req)")
	assert.Contains(t, out, "1 (1 req)")
}

func TestRenderToolsNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatTable, &buf)
	e.opts.NoHeaders = true

	require.NoError(t, e.renderTools(sampleTools()))

	out := buf.String()
	assert.NotContains(t, out, "NAME")
	assert.Contains(t, out, "greet_user")
}

func TestRenderToolsJSON(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatJSON, &buf)

	require.NoError(t, e.renderTools(sampleTools()))

	var items []toolListItem
	require.NoError(t, json.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "greet_user", items[0].Name)
	assert.Equal(t, "multiply_numbers", items[1].Name)
	assert.Equal(t, "Greet a user by name", items[0].Description)
}

func TestRenderToolsYAML(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatYAML, &buf)

	require.NoError(t, e.renderTools(sampleTools()))

	var items []map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "greet_user", items[0]["name"])
}

func TestRenderToolsEmpty(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatTable, &buf)

	require.NoError(t, e.renderTools(nil))
	assert.Contains(t, buf.String(), "0 tools")
}

func TestWriteToolDetail(t *testing.T) {
	var buf bytes.Buffer
	writeToolDetail(&buf, sampleTools()[0], false)

	out := buf.String()
	assert.Contains(t, out, "multiply_numbers")
	assert.Contains(t, out, "Multiply two numbers")
	assert.Contains(t, out, "ARGUMENT")
	assert.Contains(t, out, "a")
	assert.Contains(t, out, "number")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "First operand")
}

func TestWriteToolDetailNoArgs(t *testing.T) {
	var buf bytes.Buffer
	writeToolDetail(&buf, mcp.NewTool("ping", mcp.WithDescription("Liveness probe")), false)

	out := buf.String()
	assert.Contains(t, out, "Arguments: none")
	assert.NotContains(t, out, "ARGUMENT")
}

func TestSummarizeToolArgs(t *testing.T) {
	tools := sampleTools()
	assert.Equal(t, "2 (2 req)", summarizeToolArgs(tools[0]))
	assert.Equal(t, "1 (1 req)", summarizeToolArgs(tools[1]))
	assert.Equal(t, "-", summarizeToolArgs(mcp.NewTool("ping")))
}

func TestRenderResultText(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatTable, &buf)

	require.NoError(t, e.renderResult(mcp.NewToolResultText("8")))
	assert.Equal(t, "8\n", buf.String())
}

func TestRenderResultEmpty(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatTable, &buf)

	require.NoError(t, e.renderResult(&mcp.CallToolResult{}))
	assert.Contains(t, buf.String(), "(no text content)")
}

func TestRenderResultJSON(t *testing.T) {
	var buf bytes.Buffer
	e := newTestExecutor(OutputFormatJSON, &buf)

	require.NoError(t, e.renderResult(mcp.NewToolResultText("8")))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, buf.String(), `"8"`)
}

func TestRenderToken(t *testing.T) {
	issued := time.Now().Add(-time.Minute)
	expires := time.Now().Add(time.Hour)
	tok := &broker.Token{
		Value:     "eyJhbGciOiJIUzI1NiJ9.payload-payload-payload.signature-signature",
		TokenType: "Bearer",
		IssuedAt:  issued,
		ExpiresAt: expires,
	}

	t.Run("table masks the value", func(t *testing.T) {
		var buf bytes.Buffer
		e := newTestExecutor(OutputFormatTable, &buf)

		require.NoError(t, e.renderToken(tok))

		out := buf.String()
		assert.Contains(t, out, "Bearer")
		assert.Contains(t, out, "...")
		assert.NotContains(t, out, tok.Value)
	})

	t.Run("json carries the full value", func(t *testing.T) {
		var buf bytes.Buffer
		e := newTestExecutor(OutputFormatJSON, &buf)

		require.NoError(t, e.renderToken(tok))

		var view tokenView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
		assert.Equal(t, tok.Value, view.Value)
		assert.False(t, view.Expired)
		assert.NotEmpty(t, view.ExpiresIn)
	})

	t.Run("expired token says so", func(t *testing.T) {
		var buf bytes.Buffer
		e := newTestExecutor(OutputFormatTable, &buf)

		stale := &broker.Token{Value: "tok", TokenType: "Bearer", ExpiresAt: time.Now().Add(-time.Minute)}
		require.NoError(t, e.renderToken(stale))
		assert.Contains(t, buf.String(), "expired")
	})

	t.Run("no exp claim reported as unknown", func(t *testing.T) {
		var buf bytes.Buffer
		e := newTestExecutor(OutputFormatTable, &buf)

		bare := &broker.Token{Value: "tok", TokenType: "Bearer"}
		require.NoError(t, e.renderToken(bare))
		assert.Contains(t, buf.String(), "unknown (no exp claim)")
	})
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "short", maskToken("short"))

	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	masked := maskToken(long)
	assert.NotEqual(t, long, masked)
	assert.Contains(t, masked, "...")
	assert.Len(t, masked, 16+3+8)
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 tool", pluralize(1, "tool"))
	assert.Equal(t, "0 tools", pluralize(0, "tool"))
	assert.Equal(t, "4 tools", pluralize(4, "tool"))
}
