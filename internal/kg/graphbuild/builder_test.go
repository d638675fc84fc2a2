package graphbuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

func newTestRegistry() *analyzer.Registry {
	reg := analyzer.NewRegistry()
	reg.Register(analyzer.NewGoAnalyzer())
	reg.Register(analyzer.NewPythonAnalyzer())
	reg.Register(analyzer.NewJavaScriptAnalyzer())
	reg.Register(analyzer.NewRustAnalyzer())
	return reg
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestFull_ChunksAndDerivesContainsAndCalls(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/features/auth/login.go": "" +
			"package auth\n\n" +
			"func validatePassword(pwd string) bool {\n" +
			"\treturn len(pwd) > 0\n" +
			"}\n\n" +
			"func authenticate(user, pwd string) bool {\n" +
			"\treturn validatePassword(pwd)\n" +
			"}\n",
	})

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(root, st, newTestRegistry())
	require.NoError(t, b.Full(context.Background()))

	status := b.Status()
	assert.False(t, status.IsBuilding)
	assert.Equal(t, "completed", status.Phase)
	assert.Greater(t, status.ChunksCreated, 0)

	fileChunks, err := st.GetChunksByFile(context.Background(), "src/features/auth/login.go")
	require.NoError(t, err)
	require.NotEmpty(t, fileChunks)

	var authID, validateID string
	for _, c := range fileChunks {
		if c.SymbolName != nil && *c.SymbolName == "authenticate" {
			authID = c.ID
		}
		if c.SymbolName != nil && *c.SymbolName == "validatePassword" {
			validateID = c.ID
		}
	}
	require.NotEmpty(t, authID)
	require.NotEmpty(t, validateID)

	callEdges, err := st.GetEdgesFrom(context.Background(), authID, []model.EdgeType{model.EdgeCalls})
	require.NoError(t, err)
	require.Len(t, callEdges, 1)
	assert.Equal(t, validateID, callEdges[0].TargetID)

	containsEdges, err := st.GetEdgesTo(context.Background(), authID, []model.EdgeType{model.EdgeContains})
	require.NoError(t, err)
	require.Len(t, containsEdges, 1)
	assert.Equal(t, "src/features/auth/login.go", containsEdges[0].SourceID)
}

func TestFull_RunningConcurrentlyFails(t *testing.T) {
	root := writeProject(t, map[string]string{"a.go": "package a\n"})
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(root, st, newTestRegistry())
	b.running = true

	err = b.Full(context.Background())
	require.Error(t, err)
}

func TestIncremental_RemovalCascadesAndRebuildsEdges(t *testing.T) {
	root := writeProject(t, map[string]string{
		"pkg/a.go": "package pkg\n\nfunc A() {\n\tB()\n}\n\nfunc B() {}\n",
	})

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(root, st, newTestRegistry())
	require.NoError(t, b.Full(context.Background()))

	require.NoError(t, os.Remove(filepath.Join(root, "pkg/a.go")))
	require.NoError(t, b.Incremental(context.Background(), nil, []string{"pkg/a.go"}))

	remaining, err := st.GetChunksByFile(context.Background(), "pkg/a.go")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// TestIncremental_RecreatesCallsEdgeAfterStorageRoundTrip is the S2-shaped
// regression for P6 (incremental ≡ full on the affected set): re-deriving
// edges inside Incremental reads the chunk set back from storage, where
// Extra fields have been through a JSON round-trip, not the concrete Go
// types a fresh chunker produces. The CALLS edge must still be rebuilt.
func TestIncremental_RecreatesCallsEdgeAfterStorageRoundTrip(t *testing.T) {
	root := writeProject(t, map[string]string{
		"pkg/a.go": "package pkg\n\nfunc A() {\n\tB()\n}\n\nfunc B() {}\n",
	})

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(root, st, newTestRegistry())
	ctx := context.Background()
	require.NoError(t, b.Full(ctx))

	// Touch the file so Incremental re-chunks it and re-derives edges from
	// the storage-loaded chunk set rather than the freshly chunked one.
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg/a.go"),
		[]byte("package pkg\n\nfunc A() {\n\tB()\n}\n\nfunc B() {}\n\nfunc C() {}\n"), 0o644))
	require.NoError(t, b.Incremental(ctx, []string{"pkg/a.go"}, nil))

	edgesFromA, err := st.GetEdgesFrom(ctx, "pkg/a.go:A", nil)
	require.NoError(t, err)
	var hasCalls bool
	for _, e := range edgesFromA {
		if e.EdgeType == model.EdgeCalls && e.TargetID == "pkg/a.go:B" {
			hasCalls = true
		}
	}
	assert.True(t, hasCalls, "expected CALLS edge A->B to survive an incremental rebuild")
}

func TestProposeRules_DoesNotResetConfirmedStatus(t *testing.T) {
	root := writeProject(t, map[string]string{
		"pkg/check.py": "def check(x):\n    if not x:\n        raise ValueError\n",
	})
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(root, st, newTestRegistry())
	require.NoError(t, b.Full(context.Background()))

	proposed, err := st.GetRulesByStatus(context.Background(), model.RuleProposed)
	require.NoError(t, err)
	require.NotEmpty(t, proposed)

	rule := proposed[0]
	rule.Status = model.RuleConfirmed
	require.NoError(t, st.SaveRule(context.Background(), rule))

	require.NoError(t, b.Full(context.Background()))

	reread, err := st.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, reread)
	assert.Equal(t, model.RuleConfirmed, reread.Status)
}
