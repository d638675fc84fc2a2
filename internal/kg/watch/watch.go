// Package watch implements the debounced file-system watcher that drives
// incremental graph rebuilds (§4.8). Grounded on
// josephgoksu-TaskWing's internal/agents/watch/agent.go — the teacher's own
// indexer is pull/CLI-triggered, not watch-driven, so the fsnotify wiring,
// debounce-timer shape, and ignore-pattern categorization are adapted from
// TaskWing's WatchAgent/ChangeDebouncer instead, driving
// internal/kg/graphbuild's incremental build rather than an LLM agent
// dispatch.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kgraph-dev/kgengine/internal/kg/graphbuild"
)

// skipDirs is the fixed ignore-directory set (§4.8's SKIP_DIRS).
var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true, ".venv": true,
	"venv": true, ".tox": true, ".pytest_cache": true, ".mypy_cache": true,
	"dist": true, "build": true, ".next": true, ".nuxt": true,
	"coverage": true, ".claude": true,
}

// sourceExtensions is the SOURCE_EXTENSIONS allowlist (§4.8); any file whose
// extension isn't listed here is ignored even if its directory is watched.
var sourceExtensions = map[string]bool{
	".py": true, ".ts": true, ".js": true, ".tsx": true, ".jsx": true,
	".rs": true, ".go": true, ".java": true, ".rb": true, ".md": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".cfg": true, ".ini": true,
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && !strings.HasPrefix(name, ".env")
}

func ignoredDir(name string) bool {
	return skipDirs[name] || isHidden(name)
}

func ignoredFile(relPath string) bool {
	name := filepath.Base(relPath)
	if isHidden(name) {
		return true
	}
	return !sourceExtensions[strings.ToLower(filepath.Ext(name))]
}

// Stats reports a watcher's lifetime activity (§4.8).
type Stats struct {
	StartedAt       time.Time
	ChangesDetected int
	BuildsTriggered int
	LastBuildAt     time.Time
}

// changeKind tracks whether a pending relative path was written to or
// removed, since the two feed different graphbuild.Incremental arguments.
type changeKind int

const (
	changeModified changeKind = iota
	changeRemoved
)

// Watcher supervises a single project root's file-system notifications,
// coalescing rapid changes into debounced incremental rebuilds.
type Watcher struct {
	root     string
	builder  *graphbuild.Builder
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]changeKind
	timer   *time.Timer
	stats   Stats
	running bool
}

// New builds a Watcher rooted at root, driving builder's incremental mode
// on each debounce-timer expiry. debounce <= 0 defaults to 1s (§4.8).
func New(root string, builder *graphbuild.Builder, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = time.Second
	}
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:      root,
		builder:   builder,
		debounce:  debounce,
		fsWatcher: fsW,
		pending:   map[string]changeKind{},
	}, nil
}

// Start begins watching. Calling Start on an already-running watcher is a
// no-op (§4.8 idempotency).
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stats.StartedAt = time.Now()
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add watch paths: %w", err)
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop halts watching. Calling Stop on an already-stopped watcher is a
// no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.cancel()
	_ = w.fsWatcher.Close()
	w.wg.Wait()
}

// Status reports whether the watcher is active and its lifetime stats.
func (w *Watcher) Status() (running bool, stats Stats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running, w.stats
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && ignoredDir(name) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if event.Op&fsnotify.Create != 0 {
		// A newly created directory must itself be watched for its own
		// future events.
		_ = w.fsWatcher.Add(event.Name)
	}

	if ignoredFile(relPath) {
		return
	}

	kind := changeModified
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		kind = changeRemoved
	}

	w.mu.Lock()
	w.pending[relPath] = kind
	w.stats.ChangesDetected++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

// flush drains the pending set and hands it to the graph builder's
// incremental mode. A build already running when the timer fires simply
// fails with "already running"; the drained paths are dropped, and a path is
// retried on a later debounce cycle only when a subsequent event on it
// re-adds it to pending. If no
// further event arrives, the single flush attempt is the only rebuild for
// that change — acceptable because §5's writer-serialization note treats a
// build-in-progress collision as expected, not exceptional.
func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = map[string]changeKind{}
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var changed, removed []string
	for path, kind := range pending {
		if kind == changeRemoved {
			removed = append(removed, path)
		} else {
			changed = append(changed, path)
		}
	}

	if err := w.builder.Incremental(w.ctx, changed, removed); err != nil {
		return
	}

	w.mu.Lock()
	w.stats.BuildsTriggered++
	w.stats.LastBuildAt = time.Now()
	w.mu.Unlock()
}
