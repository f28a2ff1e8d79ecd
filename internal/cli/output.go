package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"toolgate/internal/broker"
	"toolgate/internal/session"
	pkgstrings "toolgate/pkg/strings"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputFormatTable renders a compact table (default).
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide renders the table with extra columns and
	// untruncated text.
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON renders indented JSON.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML renders YAML converted from the JSON form.
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat checks that format names a supported format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatWide, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (supported: table, wide, json, yaml)", format)
	}
}

// toolListItem is the json/yaml shape of one catalog entry.
type toolListItem struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

func (e *ToolExecutor) renderTools(tools []mcp.Tool) error {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	switch e.opts.Format {
	case OutputFormatJSON:
		return writeJSON(e.out, toolListItems(tools))
	case OutputFormatYAML:
		return writeYAML(e.out, toolListItems(tools))
	default:
		writeToolTable(e.out, tools, e.opts.Format == OutputFormatWide, e.opts.NoHeaders)
		return nil
	}
}

func toolListItems(tools []mcp.Tool) []toolListItem {
	items := make([]toolListItem, 0, len(tools))
	for _, tool := range tools {
		items = append(items, toolListItem{Name: tool.Name, Description: tool.Description})
	}
	return items
}

// writeToolTable renders the catalog as a table, wide adds an ARGS
// column and skips description truncation.
func writeToolTable(w io.Writer, tools []mcp.Tool, wide, noHeaders bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if !noHeaders {
		if wide {
			t.AppendHeader(table.Row{"NAME", "DESCRIPTION", "ARGS"})
		} else {
			t.AppendHeader(table.Row{"NAME", "DESCRIPTION"})
		}
	}
	for _, tool := range tools {
		desc := tool.Description
		if !wide {
			desc = pkgstrings.TruncateDescription(desc, pkgstrings.DefaultDescriptionMaxLen)
		}
		if wide {
			t.AppendRow(table.Row{tool.Name, desc, summarizeToolArgs(tool)})
		} else {
			t.AppendRow(table.Row{tool.Name, desc})
		}
	}
	t.Render()
	fmt.Fprintf(w, "\n%s\n", pluralize(len(tools), "tool"))
}

// summarizeToolArgs condenses a tool's argument schema to "N (M req)".
func summarizeToolArgs(tool mcp.Tool) string {
	count := len(tool.InputSchema.Properties)
	if count == 0 {
		return "-"
	}
	if req := len(tool.InputSchema.Required); req > 0 {
		return fmt.Sprintf("%d (%d req)", count, req)
	}
	return fmt.Sprintf("%d", count)
}

func (e *ToolExecutor) renderToolDetail(tool mcp.Tool) error {
	switch e.opts.Format {
	case OutputFormatJSON:
		return writeJSON(e.out, tool)
	case OutputFormatYAML:
		return writeYAML(e.out, tool)
	default:
		writeToolDetail(e.out, tool, e.opts.NoHeaders)
		return nil
	}
}

// writeToolDetail renders one tool with its argument schema expanded
// into an ARGUMENT/TYPE/REQUIRED/DESCRIPTION table.
func writeToolDetail(w io.Writer, tool mcp.Tool, noHeaders bool) {
	fmt.Fprintf(w, "Tool: %s\n", text.Bold.Sprint(tool.Name))
	if tool.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", tool.Description)
	}
	if len(tool.InputSchema.Properties) == 0 {
		fmt.Fprintln(w, "Arguments: none")
		return
	}

	required := make(map[string]bool, len(tool.InputSchema.Required))
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if !noHeaders {
		t.AppendHeader(table.Row{"ARGUMENT", "TYPE", "REQUIRED", "DESCRIPTION"})
	}
	for _, name := range names {
		argType, argDesc := schemaProperty(tool.InputSchema.Properties[name])
		req := ""
		if required[name] {
			req = "yes"
		}
		t.AppendRow(table.Row{name, argType, req, argDesc})
	}
	t.Render()
}

// schemaProperty pulls the type and description out of one JSON schema
// property, tolerating whatever shape the server sent.
func schemaProperty(raw interface{}) (string, string) {
	prop, ok := raw.(map[string]interface{})
	if !ok {
		return "", ""
	}
	argType, _ := prop["type"].(string)
	argDesc, _ := prop["description"].(string)
	return argType, argDesc
}

func (e *ToolExecutor) renderResult(result *mcp.CallToolResult) error {
	switch e.opts.Format {
	case OutputFormatJSON:
		return writeJSON(e.out, result)
	case OutputFormatYAML:
		return writeYAML(e.out, result)
	default:
		content := session.TextContent(result)
		if content == "" {
			content = "(no text content)"
		}
		fmt.Fprintln(e.out, content)
		return nil
	}
}

// tokenView is the rendered shape of a bearer token. The raw value is
// included so the output can feed other tooling; table output masks it.
type tokenView struct {
	TokenType string `json:"token_type" yaml:"token_type"`
	IssuedAt  string `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	ExpiresIn string `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
	Expired   bool   `json:"expired" yaml:"expired"`
	Value     string `json:"value" yaml:"value"`
}

func (e *ToolExecutor) renderToken(tok *broker.Token) error {
	view := tokenView{
		TokenType: tok.TokenType,
		Expired:   tok.IsExpired(),
		Value:     tok.Value,
	}
	if !tok.IssuedAt.IsZero() {
		view.IssuedAt = tok.IssuedAt.Format(time.RFC3339)
	}
	if !tok.ExpiresAt.IsZero() {
		view.ExpiresAt = tok.ExpiresAt.Format(time.RFC3339)
		view.ExpiresIn = tok.ExpiresIn().Round(time.Second).String()
	}

	switch e.opts.Format {
	case OutputFormatJSON:
		return writeJSON(e.out, view)
	case OutputFormatYAML:
		return writeYAML(e.out, view)
	default:
		writeTokenTable(e.out, view)
		return nil
	}
}

func writeTokenTable(w io.Writer, view tokenView) {
	fmt.Fprintf(w, "Type:       %s\n", view.TokenType)
	if view.IssuedAt != "" {
		fmt.Fprintf(w, "Issued at:  %s\n", view.IssuedAt)
	}
	switch {
	case view.ExpiresAt == "":
		fmt.Fprintf(w, "Expires:    %s\n", "unknown (no exp claim)")
	case view.Expired:
		fmt.Fprintf(w, "Expires:    %s %s\n", view.ExpiresAt, text.FgRed.Sprint("(expired)"))
	default:
		fmt.Fprintf(w, "Expires:    %s (in %s)\n", view.ExpiresAt, view.ExpiresIn)
	}
	fmt.Fprintf(w, "Token:      %s\n", maskToken(view.Value))
}

// maskToken keeps enough of the token visible to correlate with server
// logs without echoing the whole credential to a terminal. Use json or
// yaml output to get the full value.
func maskToken(value string) string {
	if len(value) <= 24 {
		return value
	}
	return value[:16] + "..." + value[len(value)-8:]
}

// writeJSON renders v as indented JSON, the shape scripts consume.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// writeYAML renders v as YAML. The value goes through its JSON form
// first so both formats show identical field names.
func writeYAML(w io.Writer, v interface{}) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	var plain interface{}
	if err := json.Unmarshal(jsonData, &plain); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	data, err := yaml.Marshal(plain)
	if err != nil {
		return fmt.Errorf("failed to format YAML output: %w", err)
	}
	fmt.Fprint(w, string(data))
	return nil
}

func pluralize(count int, noun string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
