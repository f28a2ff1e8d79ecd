// Package logging provides structured logging for toolgate on top of the
// standard slog package.
//
// Every entry carries a subsystem attribute identifying the component that
// produced it (TokenBroker, ToolSession, SessionManager, Secrets, Config,
// CLI), a level, and a formatted message. Output goes through a single
// handler configured once at startup with InitForCLI.
//
// Usage:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//	logging.Info("TokenBroker", "Fetched discovery document from %s", url)
//	logging.Error("ToolSession", err, "Tool call %s failed", name)
//
// Log level filtering happens in the handler; Debug calls are cheap when
// the configured level is higher.
package logging
