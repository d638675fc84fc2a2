package graphbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestDerive_ContainsMethodVsFunction(t *testing.T) {
	file := model.KnowledgeChunk{
		ID: "a.go", ChunkType: model.ChunkSourceFile, FilePath: strp("a.go"),
	}
	cls := model.KnowledgeChunk{
		ID: "a.go:class:Foo", ChunkType: model.ChunkClass, FilePath: strp("a.go"),
		SymbolName: strp("Foo"), LineStart: intp(1), LineEnd: intp(10),
	}
	method := model.KnowledgeChunk{
		ID: "a.go:Foo.Bar", ChunkType: model.ChunkFunction, FilePath: strp("a.go"),
		SymbolName: strp("Bar"), LineStart: intp(3), LineEnd: intp(5),
		Extra: map[string]any{"calls": []string{}},
	}
	freeFn := model.KnowledgeChunk{
		ID: "a.go:Baz", ChunkType: model.ChunkFunction, FilePath: strp("a.go"),
		SymbolName: strp("Baz"), LineStart: intp(20), LineEnd: intp(22),
		Extra: map[string]any{"calls": []string{}},
	}

	edges := Derive([]model.KnowledgeChunk{file, cls, method, freeFn}, analyzer.NewRegistry())

	var methodEdge, fileEdge bool
	for _, e := range edges {
		if e.EdgeType != model.EdgeContains {
			continue
		}
		if e.SourceID == cls.ID && e.TargetID == method.ID {
			methodEdge = true
			assert.Equal(t, "method", e.Metadata["relationship"])
		}
		if e.SourceID == file.ID && e.TargetID == freeFn.ID {
			fileEdge = true
		}
	}
	assert.True(t, methodEdge, "expected CLASS->FUNCTION contains edge for enclosed method")
	assert.True(t, fileEdge, "expected SOURCE_FILE->FUNCTION contains edge for free function")
}

func TestDerive_CallsToAllSameNamedFunctions(t *testing.T) {
	caller := model.KnowledgeChunk{
		ID: "a.go:Caller", ChunkType: model.ChunkFunction, FilePath: strp("a.go"),
		SymbolName: strp("Caller"), Extra: map[string]any{"calls": []string{"Helper"}},
	}
	h1 := model.KnowledgeChunk{ID: "a.go:Helper", ChunkType: model.ChunkFunction, FilePath: strp("a.go"), SymbolName: strp("Helper")}
	h2 := model.KnowledgeChunk{ID: "b.go:Helper", ChunkType: model.ChunkFunction, FilePath: strp("b.go"), SymbolName: strp("Helper")}

	edges := Derive([]model.KnowledgeChunk{caller, h1, h2}, analyzer.NewRegistry())

	count := 0
	for _, e := range edges {
		if e.EdgeType == model.EdgeCalls && e.SourceID == caller.ID {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestDerive_InheritsStripsQualifiedBaseName(t *testing.T) {
	base := model.KnowledgeChunk{ID: "a.go:class:Base", ChunkType: model.ChunkClass, FilePath: strp("a.go"), SymbolName: strp("Base")}
	sub := model.KnowledgeChunk{
		ID: "b.go:class:Sub", ChunkType: model.ChunkClass, FilePath: strp("b.go"), SymbolName: strp("Sub"),
		Extra: map[string]any{"base_classes": []string{"models.Base"}},
	}

	edges := Derive([]model.KnowledgeChunk{base, sub}, analyzer.NewRegistry())

	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeInherits, edges[0].EdgeType)
	assert.Equal(t, sub.ID, edges[0].SourceID)
	assert.Equal(t, base.ID, edges[0].TargetID)
}

func TestDerive_TestedByNaming(t *testing.T) {
	source := model.KnowledgeChunk{ID: "src/login.py", ChunkType: model.ChunkSourceFile, FilePath: strp("src/login.py")}
	test := model.KnowledgeChunk{ID: "src/test_login.py", ChunkType: model.ChunkTest, FilePath: strp("src/test_login.py")}

	edges := Derive([]model.KnowledgeChunk{source, test}, analyzer.NewRegistry())

	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeTestedBy, edges[0].EdgeType)
	assert.Equal(t, source.ID, edges[0].SourceID)
	assert.Equal(t, test.ID, edges[0].TargetID)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestDerive_ModifiedInFromCommitFilesChanged(t *testing.T) {
	source := model.KnowledgeChunk{ID: "a.go", ChunkType: model.ChunkSourceFile, FilePath: strp("a.go")}
	commit := model.KnowledgeChunk{
		ID: "commit:abc", ChunkType: model.ChunkCommit,
		Extra: map[string]any{"files_changed": []map[string]any{{"type": "modified", "path": "a.go"}}},
	}

	edges := Derive([]model.KnowledgeChunk{source, commit}, analyzer.NewRegistry())

	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeModifiedIn, edges[0].EdgeType)
	assert.Equal(t, source.ID, edges[0].SourceID)
	assert.Equal(t, commit.ID, edges[0].TargetID)
}

func TestDerive_PrecededByChainsSnapshots(t *testing.T) {
	older := model.KnowledgeChunk{ID: "snapshot:s1", ChunkType: model.ChunkSnapshotUser}
	newer := model.KnowledgeChunk{
		ID: "snapshot:s2", ChunkType: model.ChunkSnapshotUser,
		Extra: map[string]any{"previous_snapshot_id": strp("s1")},
	}

	edges := Derive([]model.KnowledgeChunk{older, newer}, analyzer.NewRegistry())

	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgePrecededBy, edges[0].EdgeType)
	assert.Equal(t, newer.ID, edges[0].SourceID)
	assert.Equal(t, older.ID, edges[0].TargetID)
}

// TestDerive_HandlesJSONRoundTrippedExtraShapes reproduces what Incremental
// actually feeds Derive: chunks read back from storage via
// store.scanChunk -> json.Unmarshal, where every Extra array comes back as
// []interface{} (and map[string]any elements as map[string]interface{}),
// and every Extra pointer comes back as a plain value rather than a *string.
// Without the extraStrings/extraMaps/extraStringPtr decode helpers these
// type assertions fail silently and CALLS/INHERITS/MODIFIED_IN/PRECEDED_BY
// edges are never rebuilt on incremental builds (violating P6).
func TestDerive_HandlesJSONRoundTrippedExtraShapes(t *testing.T) {
	caller := model.KnowledgeChunk{
		ID: "a.go:Caller", ChunkType: model.ChunkFunction, FilePath: strp("a.go"),
		SymbolName: strp("Caller"),
		Extra:      map[string]any{"calls": []interface{}{"Helper"}},
	}
	helper := model.KnowledgeChunk{ID: "a.go:Helper", ChunkType: model.ChunkFunction, FilePath: strp("a.go"), SymbolName: strp("Helper")}

	base := model.KnowledgeChunk{ID: "a.go:class:Base", ChunkType: model.ChunkClass, FilePath: strp("a.go"), SymbolName: strp("Base")}
	sub := model.KnowledgeChunk{
		ID: "b.go:class:Sub", ChunkType: model.ChunkClass, FilePath: strp("b.go"), SymbolName: strp("Sub"),
		Extra: map[string]any{"base_classes": []interface{}{"models.Base"}},
	}

	source := model.KnowledgeChunk{ID: "c.go", ChunkType: model.ChunkSourceFile, FilePath: strp("c.go")}
	commit := model.KnowledgeChunk{
		ID: "commit:abc", ChunkType: model.ChunkCommit,
		Extra: map[string]any{"files_changed": []interface{}{
			map[string]interface{}{"type": "modified", "path": "c.go"},
		}},
	}

	older := model.KnowledgeChunk{ID: "snapshot:s1", ChunkType: model.ChunkSnapshotUser}
	newer := model.KnowledgeChunk{
		ID: "snapshot:s2", ChunkType: model.ChunkSnapshotUser,
		Extra: map[string]any{"previous_snapshot_id": "s1"},
	}

	edges := Derive([]model.KnowledgeChunk{caller, helper, base, sub, source, commit, older, newer}, analyzer.NewRegistry())

	var hasCalls, hasInherits, hasModifiedIn, hasPrecededBy bool
	for _, e := range edges {
		switch {
		case e.EdgeType == model.EdgeCalls && e.SourceID == caller.ID && e.TargetID == helper.ID:
			hasCalls = true
		case e.EdgeType == model.EdgeInherits && e.SourceID == sub.ID && e.TargetID == base.ID:
			hasInherits = true
		case e.EdgeType == model.EdgeModifiedIn && e.SourceID == source.ID && e.TargetID == commit.ID:
			hasModifiedIn = true
		case e.EdgeType == model.EdgePrecededBy && e.SourceID == newer.ID && e.TargetID == older.ID:
			hasPrecededBy = true
		}
	}
	assert.True(t, hasCalls, "expected CALLS edge despite []interface{} Extra shape")
	assert.True(t, hasInherits, "expected INHERITS edge despite []interface{} Extra shape")
	assert.True(t, hasModifiedIn, "expected MODIFIED_IN edge despite []interface{} of map[string]interface{} Extra shape")
	assert.True(t, hasPrecededBy, "expected PRECEDED_BY edge despite plain-string Extra shape")
}

func TestDerive_ImplementsMatchesByFeature(t *testing.T) {
	contract := model.KnowledgeChunk{ID: "contract:auth", ChunkType: model.ChunkContract, Feature: strp("auth")}
	code := model.KnowledgeChunk{ID: "src/features/auth/login.py", ChunkType: model.ChunkSourceFile, Feature: strp("auth")}
	other := model.KnowledgeChunk{ID: "src/features/billing/pay.py", ChunkType: model.ChunkSourceFile, Feature: strp("billing")}

	edges := Derive([]model.KnowledgeChunk{contract, code, other}, analyzer.NewRegistry())

	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeImplements, edges[0].EdgeType)
	assert.Equal(t, code.ID, edges[0].SourceID)
	assert.Equal(t, contract.ID, edges[0].TargetID)
}
