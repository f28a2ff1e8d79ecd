package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"toolgate/pkg/logging"
)

// DefaultWatchInterval is the fallback polling interval used when
// fsnotify is not available.
const DefaultWatchInterval = 10 * time.Second

// debounceInterval is the time to wait after the last file change
// before reloading, so a single rotation does not trigger several
// reloads.
const debounceInterval = 500 * time.Millisecond

// FileStore resolves secrets from a flat YAML file mapping names to
// values. Lookups try the full qualified name first, then the bare
// last segment, so a file may list either form.
//
// Watch enables hot reload: rotated credentials on disk are picked up
// without restarting the process.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	watchInterval time.Duration
	lastModTime   time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewFileStore loads the YAML secrets file at path. The file must
// exist and parse; an unreadable secrets file is a configuration
// error, not a soft default.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:          path,
		watchInterval: DefaultWatchInterval,
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store. The decrypt flag is accepted for contract
// compatibility; file values are stored plaintext.
func (s *FileStore) Get(_ context.Context, name string, decrypt bool) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value, ok := s.values[name]; ok && value != "" {
		return value, nil
	}
	if value, ok := s.values[baseName(name)]; ok && value != "" {
		return value, nil
	}
	return "", &NotFoundError{Name: name}
}

// Watch starts monitoring the secrets file for changes. It prefers
// fsnotify and falls back to polling when the watcher cannot be set
// up. Safe to call once; use Close to stop.
func (s *FileStore) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("Secrets", "fsnotify not available, falling back to polling: %v", err)
		go s.pollForChanges()
		return nil
	}

	// Watch the containing directory. Editors and rotation tooling
	// replace files rather than writing in place, and a watch on the
	// file itself is lost on replace.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		logging.Warn("Secrets", "Failed to watch %s, falling back to polling: %v", filepath.Dir(s.path), err)
		watcher.Close()
		go s.pollForChanges()
		return nil
	}

	s.fsWatcher = watcher

	// Capture channels before releasing the lock to avoid racing Close.
	eventsCh := watcher.Events
	errorsCh := watcher.Errors
	go s.processEvents(eventsCh, errorsCh)

	logging.Info("Secrets", "Watching %s for secret changes", s.path)
	return nil
}

// Close stops the watcher if running. The store remains usable for
// lookups afterward.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	close(s.stopCh)
	s.running = false

	if s.fsWatcher != nil {
		err := s.fsWatcher.Close()
		s.fsWatcher = nil
		return err
	}
	return nil
}

func (s *FileStore) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-s.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logging.Debug("Secrets", "Secrets file changed: %s", event.Name)
			s.triggerReloadDebounced()

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Secrets", err, "fsnotify error")
		}
	}
}

// pollForChanges is the fallback when fsnotify is unavailable.
func (s *FileStore) pollForChanges() {
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			info, err := os.Stat(s.path)
			if err != nil {
				continue
			}
			s.mu.Lock()
			changed := info.ModTime().After(s.lastModTime)
			s.mu.Unlock()
			if changed {
				s.triggerReloadDebounced()
			}
		}
	}
}

func (s *FileStore) triggerReloadDebounced() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(debounceInterval, func() {
		if err := s.reload(); err != nil {
			logging.Error("Secrets", err, "Failed to reload secrets from %s, keeping previous values", s.path)
		}
	})
}

func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file %s: %w", s.path, err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse secrets file %s: %w", s.path, err)
	}

	info, statErr := os.Stat(s.path)

	s.mu.Lock()
	s.values = values
	if statErr == nil {
		s.lastModTime = info.ModTime()
	}
	s.mu.Unlock()

	logging.Debug("Secrets", "Loaded %d secrets from %s", len(values), s.path)
	return nil
}

// Compile-time interface compliance check.
var _ Store = (*FileStore)(nil)
