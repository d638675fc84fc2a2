// Package timeline implements point-in-time project snapshots and their
// comparison (§3.1, §3.4, §4.9). Grounded on
// original_source/.../core/timeline.py's TimelineManager, replacing its
// subprocess `git rev-parse`/`git status --porcelain` calls with the
// in-process chunker.SnapshotChunker (go-git), and its raw sqlite3 calls
// with internal/kg/store.
package timeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/chunker"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

// Manager captures, lists, and compares snapshots of a project's tracked
// file state.
type Manager struct {
	root    string
	store   *store.Store
	capture *chunker.SnapshotChunker
}

// New builds a Manager rooted at root, persisting through st.
func New(root string, st *store.Store) *Manager {
	return &Manager{root: root, store: st, capture: chunker.NewSnapshotChunker(root)}
}

// CreateSnapshot captures the current project state, persists it, mirrors it
// to a chunk, and chains it to the most recent snapshot via PRECEDED_BY
// (§4.9).
func (m *Manager) CreateSnapshot(ctx context.Context, name, description string, snapType model.SnapshotType, createdBy string, tags []string) (model.Snapshot, error) {
	prev, err := m.store.GetMostRecentSnapshot(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get most recent snapshot: %w", err)
	}
	var previousID *string
	if prev != nil {
		previousID = &prev.ID
	}

	id := snapshotID(name)
	snap, err := m.capture.BuildSnapshot(id, snapType, name, description, previousID, createdBy)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("build snapshot: %w", err)
	}
	snap.Tags = tags

	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	if err := m.store.SaveChunk(ctx, chunker.SnapshotChunk(snap)); err != nil {
		return model.Snapshot{}, fmt.Errorf("save snapshot chunk: %w", err)
	}
	if previousID != nil {
		edge := model.ChunkEdge{
			SourceID: "snapshot:" + snap.ID,
			TargetID: "snapshot:" + *previousID,
			EdgeType: model.EdgePrecededBy,
			Weight:   1.0,
		}
		if err := m.store.SaveEdge(ctx, edge); err != nil {
			return model.Snapshot{}, fmt.Errorf("save preceded_by edge: %w", err)
		}
	}

	return snap, nil
}

func snapshotID(name string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s", name, time.Now().Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])[:12]
}

// Get reads a snapshot by id.
func (m *Manager) Get(ctx context.Context, id string) (*model.Snapshot, error) {
	return m.store.GetSnapshot(ctx, id)
}

// List returns the most recent snapshots, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	return m.store.ListSnapshots(ctx, limit)
}

// Comparison is the pure set-difference result between two snapshots' file
// lists (§4.9 compare).
type Comparison struct {
	SnapshotAID     string
	SnapshotBID     string
	Added           []string
	Removed         []string
	Modified        []string
	UnchangedCount  int
	Summary         string
}

// Compare computes {added, removed, modified, unchanged_count} between two
// snapshots by their hash-keyed file lists — a pure function, no I/O beyond
// the two reads (§4.9).
func (m *Manager) Compare(ctx context.Context, aID, bID string) (Comparison, error) {
	a, err := m.store.GetSnapshot(ctx, aID)
	if err != nil {
		return Comparison{}, fmt.Errorf("get snapshot %s: %w", aID, err)
	}
	if a == nil {
		return Comparison{}, model.NewError(model.ErrNotFound, "snapshot %s not found", aID)
	}
	b, err := m.store.GetSnapshot(ctx, bID)
	if err != nil {
		return Comparison{}, fmt.Errorf("get snapshot %s: %w", bID, err)
	}
	if b == nil {
		return Comparison{}, model.NewError(model.ErrNotFound, "snapshot %s not found", bID)
	}

	filesA := make(map[string]model.FileState, len(a.Files))
	for _, f := range a.Files {
		filesA[f.Path] = f
	}
	filesB := make(map[string]model.FileState, len(b.Files))
	for _, f := range b.Files {
		filesB[f.Path] = f
	}

	allPaths := make(map[string]bool, len(filesA)+len(filesB))
	for p := range filesA {
		allPaths[p] = true
	}
	for p := range filesB {
		allPaths[p] = true
	}

	var result Comparison
	result.SnapshotAID, result.SnapshotBID = aID, bID
	for path := range allPaths {
		fa, inA := filesA[path]
		fb, inB := filesB[path]
		switch {
		case inA && !inB:
			result.Removed = append(result.Removed, path)
		case inB && !inA:
			result.Added = append(result.Added, path)
		case fa.ContentHash != fb.ContentHash:
			result.Modified = append(result.Modified, path)
		default:
			result.UnchangedCount++
		}
	}

	result.Summary = fmt.Sprintf("%d added, %d removed, %d modified, %d unchanged",
		len(result.Added), len(result.Removed), len(result.Modified), result.UnchangedCount)
	return result, nil
}

// RollbackPlan previews what rolling back to a target snapshot would change,
// without mutating any file (§4.9: rollback is preview-only by default; the
// engine performs no destructive file I/O). A caller wanting to actually
// restore files delegates to its own VCS/checkout integration using the
// plan's paths.
type RollbackPlan struct {
	TargetSnapshotID string
	ToRestore        []string // modified or removed relative to current state
	ToDelete         []string // present now, absent in target (would be removed)
	Unchanged        int
}

// PreviewRollback compares the current live file state against targetID and
// reports what a rollback would change. It never writes to disk.
func (m *Manager) PreviewRollback(ctx context.Context, targetID string) (RollbackPlan, error) {
	target, err := m.store.GetSnapshot(ctx, targetID)
	if err != nil {
		return RollbackPlan{}, fmt.Errorf("get snapshot %s: %w", targetID, err)
	}
	if target == nil {
		return RollbackPlan{}, model.NewError(model.ErrNotFound, "snapshot %s not found", targetID)
	}

	current, err := m.capture.Capture()
	if err != nil {
		return RollbackPlan{}, fmt.Errorf("capture current state: %w", err)
	}

	currentByPath := make(map[string]model.FileState, len(current))
	for _, f := range current {
		currentByPath[f.Path] = f
	}

	plan := RollbackPlan{TargetSnapshotID: targetID}
	targetPaths := make(map[string]bool, len(target.Files))
	for _, tf := range target.Files {
		targetPaths[tf.Path] = true
		cf, exists := currentByPath[tf.Path]
		if !exists || cf.ContentHash != tf.ContentHash {
			plan.ToRestore = append(plan.ToRestore, tf.Path)
		} else {
			plan.Unchanged++
		}
	}
	for path := range currentByPath {
		if !targetPaths[path] {
			plan.ToDelete = append(plan.ToDelete, path)
		}
	}

	return plan, nil
}
