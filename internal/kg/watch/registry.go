package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/graphbuild"
)

// Registry holds at most one active watcher (§4.8). Each facade.Engine
// (internal/kg/facade) owns its own Registry, so one engine never runs two
// watchers; a process with engines for several project roots runs up to one
// watcher per engine.
type Registry struct {
	mu      sync.Mutex
	active  *Watcher
	root    string
	builder *graphbuild.Builder
	debounce time.Duration
}

// NewRegistry builds an empty registry; watchers are created lazily on the
// first Start call.
func NewRegistry() *Registry {
	return &Registry{}
}

// Start starts watching root with builder if no watcher is already active.
// Calling Start again while a watcher is running is a no-op (§4.8
// idempotency), even if root/builder differ from the active watcher's —
// the caller must Stop first to switch projects.
func (reg *Registry) Start(root string, builder *graphbuild.Builder, debounce time.Duration) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.active != nil {
		if running, _ := reg.active.Status(); running {
			return nil
		}
	}

	w, err := New(root, builder, debounce)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	reg.active = w
	reg.root = root
	reg.builder = builder
	reg.debounce = debounce
	return nil
}

// Stop stops the active watcher, if any. A no-op when none is running.
func (reg *Registry) Stop() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.active == nil {
		return
	}
	reg.active.Stop()
}

// Status reports whether a watcher is active and its stats. The zero value
// is returned when no watcher has ever been started.
func (reg *Registry) Status() (running bool, root string, stats Stats) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.active == nil {
		return false, "", Stats{}
	}
	running, stats = reg.active.Status()
	return running, reg.root, stats
}
