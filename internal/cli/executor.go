package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"

	"toolgate/internal/broker"
	"toolgate/internal/config"
	"toolgate/internal/manager"
	"toolgate/internal/secrets"
)

// ExecutorOptions configures a ToolExecutor. Zero values defer to the
// config file; non-zero values override it.
type ExecutorOptions struct {
	// Format selects the output format (table, wide, json, yaml).
	Format OutputFormat

	// NoHeaders suppresses the header row in table output.
	NoHeaders bool

	// Quiet suppresses spinners and non-essential output.
	Quiet bool

	// ConfigPath points at the configuration directory holding
	// config.yaml. Empty means ~/.config/toolgate.
	ConfigPath string

	// Endpoint overrides the configured tool server endpoint.
	Endpoint string

	// Grant overrides the configured grant type.
	Grant string

	// Scope overrides the configured token scope.
	Scope string

	// Timeout overrides the configured request timeout, as a Go
	// duration string.
	Timeout string
}

// ToolExecutor runs tool operations from the command line. It owns the
// composed secret store, token broker and session manager, and renders
// operation results in the format selected at construction.
type ToolExecutor struct {
	opts    ExecutorOptions
	cfg     config.Config
	manager *manager.Manager
	store   secrets.Store

	out    io.Writer
	errOut io.Writer
}

// NewToolExecutor loads configuration, applies the flag overrides and
// wires the secret store, broker and session manager together. No
// network traffic happens here; the session is established lazily on
// first use.
func NewToolExecutor(opts ExecutorOptions) (*ToolExecutor, error) {
	if opts.Format == "" {
		opts.Format = OutputFormatTable
	}
	if err := ValidateOutputFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.Grant != "" {
		cfg.Grant = opts.Grant
	}
	if opts.Scope != "" {
		cfg.Scope = opts.Scope
	}
	if opts.Timeout != "" {
		cfg.Timeout = opts.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := newSecretStore(cfg.Secrets)
	if err != nil {
		return nil, err
	}

	b, err := broker.NewStoreBroker(store, cfg.StoreConfig())
	if err != nil {
		closeStore(store)
		return nil, err
	}

	timeout, err := cfg.RequestTimeout()
	if err != nil {
		closeStore(store)
		return nil, err
	}
	mgr, err := manager.New(cfg.Endpoint, b, manager.WithTimeout(timeout))
	if err != nil {
		closeStore(store)
		return nil, err
	}

	return &ToolExecutor{
		opts:    opts,
		cfg:     cfg,
		manager: mgr,
		store:   store,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}, nil
}

// newSecretStore builds the secret store named by the config. The env
// backend is the default; the file backend optionally watches for
// credential rotation.
func newSecretStore(cfg config.SecretsConfig) (secrets.Store, error) {
	switch cfg.Backend {
	case config.SecretsBackendFile:
		store, err := secrets.NewFileStore(cfg.File)
		if err != nil {
			return nil, err
		}
		if cfg.Watch {
			if err := store.Watch(); err != nil {
				store.Close()
				return nil, fmt.Errorf("failed to watch secrets file %s: %w", cfg.File, err)
			}
		}
		return store, nil
	default:
		return secrets.NewEnvStore(cfg.EnvPrefix), nil
	}
}

func closeStore(store secrets.Store) {
	if c, ok := store.(io.Closer); ok {
		c.Close()
	}
}

// ListTools fetches the tool catalog through the managed session and
// renders it.
func (e *ToolExecutor) ListTools(ctx context.Context) error {
	s := e.startSpinner("Listing tools...")
	tools, err := e.manager.Tools(ctx)
	e.stopSpinner(s, err)
	if err != nil {
		return err
	}
	return e.renderTools(tools)
}

// DescribeTool renders one tool's description and argument schema.
func (e *ToolExecutor) DescribeTool(ctx context.Context, name string) error {
	s := e.startSpinner("Listing tools...")
	tools, err := e.manager.Tools(ctx)
	e.stopSpinner(s, err)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if tool.Name == name {
			return e.renderToolDetail(tool)
		}
	}
	return fmt.Errorf("tool %q not found on %s (run \"toolgate tools\" to list what is available)", name, e.cfg.Endpoint)
}

// CallTool invokes one tool through the managed session and renders the
// result.
func (e *ToolExecutor) CallTool(ctx context.Context, tool string, args map[string]interface{}) error {
	s := e.startSpinner(fmt.Sprintf("Calling %s...", tool))
	result, err := e.manager.Invoke(ctx, tool, args)
	e.stopSpinner(s, err)
	if err != nil {
		return err
	}
	return e.renderResult(result)
}

// Token acquires a bearer token (reusing a cached unexpired one) and
// renders its claims and expiry state.
func (e *ToolExecutor) Token(ctx context.Context) error {
	s := e.startSpinner("Requesting token...")
	tok, err := e.manager.Token(ctx)
	e.stopSpinner(s, err)
	if err != nil {
		return err
	}
	return e.renderToken(tok)
}

// Tools returns the live tool catalog without rendering it. The repl
// uses this for tab completion.
func (e *ToolExecutor) Tools(ctx context.Context) ([]mcp.Tool, error) {
	return e.manager.Tools(ctx)
}

// Endpoint returns the tool server endpoint the executor talks to.
func (e *ToolExecutor) Endpoint() string {
	return e.cfg.Endpoint
}

// Close releases the session and stops any secret store watchers. The
// executor is not usable afterwards.
func (e *ToolExecutor) Close() error {
	err := e.manager.Close()
	if c, ok := e.store.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// startSpinner begins progress feedback for a slow operation. Quiet
// mode disables it.
func (e *ToolExecutor) startSpinner(message string) *spinner.Spinner {
	if e.opts.Quiet {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(e.errOut))
	s.Suffix = " " + message
	s.Start()
	return s
}

// stopSpinner ends progress feedback, leaving a stage-named failure
// line behind when the operation failed.
func (e *ToolExecutor) stopSpinner(s *spinner.Spinner, err error) {
	if s == nil {
		return
	}
	if err != nil {
		if stage := FailureStage(err); stage != "" {
			s.FinalMSG = text.FgRed.Sprintf("❌ %s failed\n", stage)
		}
	}
	s.Stop()
}
