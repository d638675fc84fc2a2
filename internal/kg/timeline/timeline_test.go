package timeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestCreateSnapshot_ChainsPrecededBy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := New(root, st)

	first, err := mgr.CreateSnapshot(context.Background(), "before", "initial state", model.SnapshotUser, "user", nil)
	require.NoError(t, err)
	assert.Nil(t, first.PreviousSnapshotID)

	writeFile(t, root, "b.go", "package a\n")
	second, err := mgr.CreateSnapshot(context.Background(), "after", "added b.go", model.SnapshotUser, "user", nil)
	require.NoError(t, err)
	require.NotNil(t, second.PreviousSnapshotID)
	assert.Equal(t, first.ID, *second.PreviousSnapshotID)

	edges, err := st.GetEdgesFrom(context.Background(), "snapshot:"+second.ID, []model.EdgeType{model.EdgePrecededBy})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "snapshot:"+first.ID, edges[0].TargetID)

	chunk, err := st.GetChunk(context.Background(), "snapshot:"+second.ID)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, model.ChunkSnapshotUser, chunk.ChunkType)
}

func TestCompare_ComputesAddedRemovedModified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package a\nfunc B() {}\n")

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := New(root, st)
	snapA, err := mgr.CreateSnapshot(context.Background(), "a", "", model.SnapshotUser, "user", nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	writeFile(t, root, "c.go", "package a\n")
	writeFile(t, root, "a.go", "package a\n// changed\n")

	snapB, err := mgr.CreateSnapshot(context.Background(), "b", "", model.SnapshotUser, "user", nil)
	require.NoError(t, err)

	cmp, err := mgr.Compare(context.Background(), snapA.ID, snapB.ID)
	require.NoError(t, err)
	assert.Contains(t, cmp.Added, "c.go")
	assert.Contains(t, cmp.Removed, "b.go")
	assert.Contains(t, cmp.Modified, "a.go")
}

func TestPreviewRollback_NoFileIOPerformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := New(root, st)
	snap, err := mgr.CreateSnapshot(context.Background(), "checkpoint", "", model.SnapshotUser, "user", nil)
	require.NoError(t, err)

	writeFile(t, root, "a.go", "package a\n// edited after snapshot\n")
	writeFile(t, root, "b.go", "package a\n")

	plan, err := mgr.PreviewRollback(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Contains(t, plan.ToRestore, "a.go")
	assert.Contains(t, plan.ToDelete, "b.go")

	// PreviewRollback must never touch the filesystem.
	data, err := os.ReadFile(filepath.Join(root, "a.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited after snapshot")
}

func TestCompare_UnknownSnapshotErrors(t *testing.T) {
	root := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := New(root, st)
	_, err = mgr.Compare(context.Background(), "missing-a", "missing-b")
	require.Error(t, err)
}
