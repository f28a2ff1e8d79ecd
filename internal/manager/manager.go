// Package manager hands out ready-to-use tool sessions. A Manager owns
// at most one live Session at a time: the first operation builds it
// (token fetch, connect, initialize) with concurrent callers sharing a
// single attempt, later operations reuse it, and a token that has
// expired or been rejected by the server triggers a full rebuild. The
// transport of a replaced session is closed, never reused.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	"toolgate/internal/broker"
	"toolgate/internal/session"
	"toolgate/pkg/logging"
)

const subsystem = "SessionManager"

// Manager multiplexes callers onto one lazily created session against a
// fixed endpoint. Safe for concurrent use.
type Manager struct {
	endpoint string
	broker   broker.Broker
	timeout  time.Duration

	// group deduplicates concurrent session builds and token fetches.
	group singleflight.Group

	mu      sync.Mutex
	session *session.Session
	token   *broker.Token
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the per-operation timeout handed to sessions.
// Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New creates a Manager for one endpoint. The broker supplies bearer
// tokens on demand; no network traffic happens until the first
// operation.
func New(endpoint string, b broker.Broker, opts ...Option) (*Manager, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if b == nil {
		return nil, fmt.Errorf("token broker is required")
	}

	m := &Manager{
		endpoint: endpoint,
		broker:   b,
		timeout:  session.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Invoke calls a named tool on the managed session, building the
// session first when necessary. A rejected token is refreshed exactly
// once, with a single retry of the call; if the retry fails too, that
// failure is surfaced with its HTTP status. Tool-level failures are
// returned as-is, never retried.
func (m *Manager) Invoke(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	sess, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := sess.CallTool(ctx, tool, args)
	if err != nil && shouldReplace(err) {
		sess, err = m.replace(ctx, sess, err)
		if err != nil {
			return nil, err
		}
		result, err = sess.CallTool(ctx, tool, args)
	}
	if err != nil {
		return result, err
	}

	logging.Debug(subsystem, "Tool %s answered: %s", tool, session.TextContent(result))
	return result, nil
}

// Tools lists the tools the server advertises, with the same
// build-on-demand and single-retry behavior as Invoke.
func (m *Manager) Tools(ctx context.Context) ([]mcp.Tool, error) {
	sess, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	tools, err := sess.ListTools(ctx)
	if err != nil && shouldReplace(err) {
		sess, err = m.replace(ctx, sess, err)
		if err != nil {
			return nil, err
		}
		tools, err = sess.ListTools(ctx)
	}
	return tools, err
}

// Token returns the cached bearer token, fetching a fresh one when
// missing or expired. It never establishes a session. Concurrent
// callers share one fetch.
func (m *Manager) Token(ctx context.Context) (*broker.Token, error) {
	if tok := m.cachedToken(); tok != nil {
		return tok, nil
	}

	result, err, _ := m.group.Do("token", func() (interface{}, error) {
		if tok := m.cachedToken(); tok != nil {
			return tok, nil
		}

		fresh, err := m.broker.Fetch(ctx)
		if err != nil {
			return nil, err
		}

		// A live session stays paired with the token it was built
		// with; the next rebuild fetches its own.
		m.mu.Lock()
		if m.session == nil {
			m.token = fresh
		}
		m.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*broker.Token), nil
}

// SessionID returns the identifier of the current live session, or ""
// when none exists.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.ID()
}

// Close shuts down the current session. The cached token survives and
// is reused by the next operation until it expires. Close is
// idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	logging.Debug(subsystem, "Closing session %s", sess.ID())
	return sess.Close()
}

// acquire returns a usable session, reusing the cached one when its
// token is still valid.
func (m *Manager) acquire(ctx context.Context) (*session.Session, error) {
	if sess, ok := m.current(); ok {
		return sess, nil
	}
	return m.create(ctx, nil)
}

// replace tears down a session that cause made unusable and builds its
// successor. At most one replacement per operation.
func (m *Manager) replace(ctx context.Context, stale *session.Session, cause error) (*session.Session, error) {
	logging.Debug(subsystem, "Session %s unusable, re-authenticating once: %v", stale.ID(), cause)
	return m.create(ctx, stale)
}

// current returns the live session when its token is still locally
// valid. The expiry check fails open for tokens without a readable exp
// claim; the server stays the enforcement point.
func (m *Manager) current() (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.token == nil {
		return nil, false
	}
	if m.session.State() != session.StateInitialized {
		return nil, false
	}
	if m.token.IsExpired() {
		logging.Debug(subsystem, "Cached token for session %s has expired, refresh required", m.session.ID())
		return nil, false
	}
	return m.session, true
}

// create builds a replacement session under a single flight, so
// concurrent callers share one attempt or one failure. stale marks a
// session whose token the server rejected: that token is discarded,
// and any current session other than stale is reused instead of
// building a new one. A failed build leaves no session behind.
func (m *Manager) create(ctx context.Context, stale *session.Session) (*session.Session, error) {
	result, err, _ := m.group.Do("session", func() (interface{}, error) {
		if sess, ok := m.current(); ok && sess != stale {
			return sess, nil
		}

		m.mu.Lock()
		old := m.session
		m.session = nil
		if stale != nil {
			// The server rejected this token. Never offer it again.
			m.token = nil
		}
		tok := m.token
		m.mu.Unlock()

		if old != nil {
			if err := old.Close(); err != nil {
				logging.Debug(subsystem, "Closing replaced session %s: %v", old.ID(), err)
			}
		}

		if tok == nil || tok.IsExpired() {
			fresh, err := m.broker.Fetch(ctx)
			if err != nil {
				return nil, err
			}
			tok = fresh
		}

		sess := session.New(m.endpoint, tok.Value, session.WithTimeout(m.timeout))
		if err := sess.Connect(ctx); err != nil {
			sess.Close()
			return nil, err
		}
		if err := sess.Initialize(ctx); err != nil {
			sess.Close()
			return nil, err
		}

		m.mu.Lock()
		m.session = sess
		m.token = tok
		m.mu.Unlock()

		logging.Debug(subsystem, "Session %s established against %s", sess.ID(), m.endpoint)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*session.Session), nil
}

// cachedToken returns the cached token while it is still locally valid.
func (m *Manager) cachedToken() *broker.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && !m.token.IsExpired() {
		return m.token
	}
	return nil
}

// shouldReplace reports whether a failed operation warrants rebuilding
// the session and retrying once: the server rejected the token, or a
// concurrent rebuild closed the session underneath the caller.
// Tool-level failures never trigger a rebuild.
func shouldReplace(err error) bool {
	var remoteErr *session.RemoteToolError
	if errors.As(err, &remoteErr) {
		return false
	}
	var stateErr *session.InvalidStateError
	if errors.As(err, &stateErr) {
		return stateErr.State == session.StateClosed
	}
	return session.IsAuthStatusError(err)
}
