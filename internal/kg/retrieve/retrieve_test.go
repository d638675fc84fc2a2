package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strp(s string) *string { return &s }

func TestRetrieve_ZeroBudgetReturnsEmptyBundle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := New(s, nil)

	bundle, err := r.Retrieve(ctx, "anything", Options{TokenBudget: 0})
	require.NoError(t, err)
	assert.Empty(t, bundle.Chunks)
	assert.Equal(t, "Zero token budget - no chunks loaded.", bundle.OmissionSummary)
	assert.Equal(t, 0, bundle.TotalTokens)
}

func TestRetrieve_EntryPointViaExplicitSymbol(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
		ID:         "fn:authenticate",
		ChunkType:  model.ChunkFunction,
		Content:    "func authenticate(user string) bool { return true }",
		TokenCount: 20,
		FilePath:   strp("auth.go"),
		SymbolName: strp("authenticate"),
		Source:     model.SourceAuto,
		Confidence: 1.0,
	}))

	r := New(s, nil)
	bundle, err := r.Retrieve(ctx, "refactor login", Options{TokenBudget: 5000, Symbols: []string{"authenticate"}})
	require.NoError(t, err)
	require.Len(t, bundle.Chunks, 1)
	assert.Equal(t, "fn:authenticate", bundle.Chunks[0].ID)
	assert.Equal(t, "All relevant chunks were loaded.", bundle.OmissionSummary)
}

func TestRetrieve_BudgetPressureOmitsWithTokenBudgetReason(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var symbols []string
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		sym := "Widget" + id
		symbols = append(symbols, sym)
		require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
			ID:         "fn:" + id,
			ChunkType:  model.ChunkFunction,
			Content:    "widget content " + id,
			TokenCount: 400,
			FilePath:   strp(id + ".go"),
			SymbolName: strp(sym),
			Source:     model.SourceAuto,
			Confidence: 1.0,
		}))
	}

	r := New(s, nil)
	bundle, err := r.Retrieve(ctx, "widget", Options{
		TokenBudget:  1500,
		Symbols:      symbols,
		IncludeTypes: []model.ChunkType{model.ChunkFunction},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, bundle.TotalTokens, 1500)
	assert.Equal(t, len(bundle.Chunks)+len(bundle.OmittedChunks), 10)
	for _, o := range bundle.OmittedChunks {
		assert.Equal(t, model.ReasonTokenBudget, o.Reason)
	}
}

func TestRetrieve_GraphExpansionFollowsCallsEdge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
		ID: "fn:caller", ChunkType: model.ChunkFunction, Content: "func caller() { callee() }",
		TokenCount: 10, SymbolName: strp("caller"), Source: model.SourceAuto, Confidence: 1.0,
	}))
	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
		ID: "fn:callee", ChunkType: model.ChunkFunction, Content: "func callee() {}",
		TokenCount: 10, SymbolName: strp("callee"), Source: model.SourceAuto, Confidence: 1.0,
	}))
	require.NoError(t, s.SaveEdge(ctx, model.ChunkEdge{
		SourceID: "fn:caller", TargetID: "fn:callee", EdgeType: model.EdgeCalls, Weight: 1.0,
	}))

	r := New(s, nil)
	bundle, err := r.Retrieve(ctx, "investigate caller", Options{
		TokenBudget: 5000,
		Symbols:     []string{"caller"},
		MaxHops:     1,
	})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, c := range bundle.Chunks {
		ids[c.ID] = true
	}
	assert.True(t, ids["fn:caller"])
	assert.True(t, ids["fn:callee"])
	require.Len(t, bundle.Edges, 1)
	assert.Equal(t, model.EdgeCalls, bundle.Edges[0].EdgeType)
}

func TestExpand_DependenciesLoadsOutgoingEdgeTargets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
		ID: "fn:a", ChunkType: model.ChunkFunction, Content: "func a() { b() }", TokenCount: 5,
		Source: model.SourceAuto, Confidence: 1.0,
	}))
	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{
		ID: "fn:b", ChunkType: model.ChunkFunction, Content: "func b() {}", TokenCount: 5,
		Source: model.SourceAuto, Confidence: 1.0,
	}))
	require.NoError(t, s.SaveEdge(ctx, model.ChunkEdge{
		SourceID: "fn:a", TargetID: "fn:b", EdgeType: model.EdgeCalls, Weight: 1.0,
	}))

	r := New(s, nil)
	bundle, err := r.Expand(ctx, "fn:a", model.ExpandDependencies, 5000)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, c := range bundle.Chunks {
		ids[c.ID] = true
	}
	assert.True(t, ids["fn:a"])
	assert.True(t, ids["fn:b"])
	assert.Empty(t, bundle.OmittedChunks)
}

func TestExpand_UnknownChunkReturnsOmissionSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := New(s, nil)

	bundle, err := r.Expand(ctx, "fn:missing", model.ExpandAll, 5000)
	require.NoError(t, err)
	assert.Empty(t, bundle.Chunks)
	assert.Contains(t, bundle.OmissionSummary, "Chunk not found")
}
