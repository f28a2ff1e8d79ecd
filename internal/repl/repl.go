// Package repl implements the interactive shell over the tool
// executor: a readline loop with command history and tab completion
// over the live tool catalog.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"

	"toolgate/internal/cli"
	"toolgate/pkg/logging"
)

const subsystem = "CLI"

// commandTimeout bounds one interactive command so a hung tool call
// cannot wedge the loop.
const commandTimeout = 5 * time.Minute

// completionTimeout bounds the catalog fetch behind tab completion.
// Completion must stay snappy even when the server is slow.
const completionTimeout = 2 * time.Second

// errExit signals a clean shutdown request from the exit command.
var errExit = errors.New("exit")

// executor is the slice of the tool executor the shell drives.
type executor interface {
	ListTools(ctx context.Context) error
	DescribeTool(ctx context.Context, name string) error
	CallTool(ctx context.Context, tool string, args map[string]interface{}) error
	Token(ctx context.Context) error
	Tools(ctx context.Context) ([]mcp.Tool, error)
	Endpoint() string
}

// command is one shell command with its usage line for help output.
type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// REPL is the interactive shell. Create one with New and drive it with
// Run; it owns the readline instance for its lifetime.
type REPL struct {
	exec     executor
	commands []command

	mu        sync.Mutex
	nameCache []string
}

// New creates a shell over exec. Nothing is connected until the first
// command runs.
func New(exec *cli.ToolExecutor) *REPL {
	return newREPL(exec)
}

func newREPL(exec executor) *REPL {
	r := &REPL{exec: exec}
	r.commands = []command{
		{
			name:  "tools",
			usage: "tools",
			help:  "List the tools the server advertises",
			run: func(ctx context.Context, args []string) error {
				return r.exec.ListTools(ctx)
			},
		},
		{
			name:  "describe",
			usage: "describe <tool>",
			help:  "Show one tool's description and argument schema",
			run: func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: describe <tool>")
				}
				return r.exec.DescribeTool(ctx, args[0])
			},
		},
		{
			name:  "call",
			usage: "call <tool> [key=value ...]",
			help:  "Invoke a tool with the given arguments",
			run: func(ctx context.Context, args []string) error {
				if len(args) == 0 {
					return fmt.Errorf("usage: call <tool> [key=value ...]")
				}
				toolArgs, err := cli.ParseToolArgs(args[1:], "")
				if err != nil {
					return err
				}
				return r.exec.CallTool(ctx, args[0], toolArgs)
			},
		},
		{
			name:  "token",
			usage: "token",
			help:  "Show the current bearer token's claims and expiry",
			run: func(ctx context.Context, args []string) error {
				return r.exec.Token(ctx)
			},
		},
		{
			name:  "help",
			usage: "help",
			help:  "Show this help",
			run: func(ctx context.Context, args []string) error {
				r.printHelp()
				return nil
			},
		},
		{
			name:  "exit",
			usage: "exit",
			help:  "Leave the shell",
			run: func(ctx context.Context, args []string) error {
				return errExit
			},
		},
	}
	return r
}

// Run enters the interactive loop and blocks until the user exits, the
// input stream ends, or ctx is canceled.
func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "toolgate> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".toolgate_history"),
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	fmt.Printf("toolgate interactive shell (%s)\n", r.exec.Endpoint())
	fmt.Println("Type 'help' for available commands. Use TAB for completion.")
	fmt.Println()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				fmt.Println("Goodbye!")
				return nil
			}
			// Ctrl+C with text on the line discards the line.
			continue
		} else if err == io.EOF {
			fmt.Println("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.executeLine(input); err != nil {
			if errors.Is(err, errExit) {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Fprintln(os.Stderr, cli.FormatFailure(err))
		}
		fmt.Println()
	}
}

// executeLine parses one input line and dispatches it. Commands run
// under their own timeout so the loop survives a hung call.
func (r *REPL) executeLine(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	if name == "?" {
		name = "help"
	}
	if name == "quit" {
		name = "exit"
	}

	for _, cmd := range r.commands {
		if cmd.name != name {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return cmd.run(ctx, parts[1:])
	}
	return fmt.Errorf("unknown command %q (type 'help' for available commands)", parts[0])
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	for _, cmd := range r.commands {
		fmt.Printf("  %-28s %s\n", cmd.usage, cmd.help)
	}
}

// completer builds tab completion: static command words plus the live
// tool catalog behind describe and call.
func (r *REPL) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("tools"),
		readline.PcItem("describe", readline.PcItemDynamic(r.toolNames)),
		readline.PcItem("call", readline.PcItemDynamic(r.toolNames)),
		readline.PcItem("token"),
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

// toolNames supplies tool names for tab completion. The catalog fetch
// runs under a short timeout and the last good answer is cached, so
// completion keeps working when the server is briefly unreachable.
func (r *REPL) toolNames(string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	tools, err := r.exec.Tools(ctx)
	if err != nil {
		logging.Debug(subsystem, "Tool completion fetch failed: %v", err)
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.nameCache
	}

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	r.mu.Lock()
	r.nameCache = names
	r.mu.Unlock()
	return names
}

// filterInput blocks Ctrl+Z so the shell cannot be suspended into a
// state readline does not recover from.
func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}
