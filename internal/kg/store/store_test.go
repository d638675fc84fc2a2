package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveChunk_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := "internal/foo/foo.go"
	sym := "DoThing"
	c := model.KnowledgeChunk{
		ID:         "chunk-1",
		ChunkType:  model.ChunkFunction,
		Content:    "func DoThing() error { return nil }",
		TokenCount: 12,
		FilePath:   &path,
		SymbolName: &sym,
		Source:     model.SourceAuto,
		Confidence: 1.0,
		Tags:       []string{"go", "internal"},
	}
	require.NoError(t, s.SaveChunk(ctx, c))

	got, err := s.GetChunk(ctx, "chunk-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, model.ChunkFunction, got.ChunkType)
	assert.Equal(t, []string{"go", "internal"}, got.Tags)
}

func TestSaveChunk_UpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := model.KnowledgeChunk{ID: "chunk-2", ChunkType: model.ChunkSourceFile, Content: "v1"}
	require.NoError(t, s.SaveChunk(ctx, c))
	first, err := s.GetChunk(ctx, "chunk-2")
	require.NoError(t, err)

	c.Content = "v2"
	require.NoError(t, s.SaveChunk(ctx, c))
	second, err := s.GetChunk(ctx, "chunk-2")
	require.NoError(t, err)

	assert.Equal(t, "v2", second.Content)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
}

func TestGetChunksByFile_OrderedByLineStart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	path := "a.go"

	l1, l2 := 40, 5
	require.NoError(t, s.SaveChunks(ctx, []model.KnowledgeChunk{
		{ID: "later", ChunkType: model.ChunkFunction, Content: "c1", FilePath: &path, LineStart: &l1},
		{ID: "earlier", ChunkType: model.ChunkFunction, Content: "c2", FilePath: &path, LineStart: &l2},
	}))

	chunks, err := s.GetChunksByFile(ctx, path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "earlier", chunks[0].ID)
	assert.Equal(t, "later", chunks[1].ID)
}

func TestDeleteChunksByFile_CascadesEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	path := "a.go"

	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{ID: "fn", ChunkType: model.ChunkFunction, Content: "c", FilePath: &path}))
	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{ID: "file", ChunkType: model.ChunkSourceFile, Content: "c"}))
	require.NoError(t, s.SaveEdge(ctx, model.ChunkEdge{SourceID: "file", TargetID: "fn", EdgeType: model.EdgeContains}))

	require.NoError(t, s.DeleteChunksByFile(ctx, path))

	got, err := s.GetChunk(ctx, "fn")
	require.NoError(t, err)
	assert.Nil(t, got)

	edges, err := s.GetEdgesTo(ctx, "fn", nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSearchContent_EmptyQueryShortCircuits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveChunk(ctx, model.KnowledgeChunk{ID: "c1", ChunkType: model.ChunkFunction, Content: "something"}))

	results, err := s.SearchContent(ctx, "   ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchContent_FindsMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveChunks(ctx, []model.KnowledgeChunk{
		{ID: "c1", ChunkType: model.ChunkFunction, Content: "func ValidateEmail parses an email address"},
		{ID: "c2", ChunkType: model.ChunkFunction, Content: "func ComputeTax does arithmetic"},
	}))

	results, err := s.SearchContent(ctx, "email", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestSearchContent_FiltersByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveChunks(ctx, []model.KnowledgeChunk{
		{ID: "c1", ChunkType: model.ChunkFunction, Content: "payment processing logic"},
		{ID: "c2", ChunkType: model.ChunkTest, Content: "payment processing test"},
	}))

	results, err := s.SearchContent(ctx, "payment", []model.ChunkType{model.ChunkTest}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].Chunk.ID)
}

func TestSaveEdge_UpsertUpdatesWeight(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEdge(ctx, model.ChunkEdge{SourceID: "a", TargetID: "b", EdgeType: model.EdgeCalls, Weight: 1.0}))
	require.NoError(t, s.SaveEdge(ctx, model.ChunkEdge{SourceID: "a", TargetID: "b", EdgeType: model.EdgeCalls, Weight: 2.5}))

	edges, err := s.GetEdgesFrom(ctx, "a", nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 2.5, edges[0].Weight)
}

func TestGetEdgesAmong_InducedSubgraph(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEdges(ctx, []model.ChunkEdge{
		{SourceID: "a", TargetID: "b", EdgeType: model.EdgeCalls},
		{SourceID: "b", TargetID: "c", EdgeType: model.EdgeCalls},
		{SourceID: "a", TargetID: "z", EdgeType: model.EdgeCalls},
	}))

	edges, err := s.GetEdgesAmong(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestBusinessRuleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rule := model.BusinessRule{
		ID:            "rule-1",
		Text:          "refunds must be approved within 30 days",
		Category:      model.CategoryBusinessLogic,
		Status:        model.RuleProposed,
		SourceChunkID: "fn-1",
		SourceFile:    "billing.go",
		Confidence:    0.6,
	}
	require.NoError(t, s.SaveRule(ctx, rule))

	// I6: a BUSINESS_RULE chunk must exist as soon as the rule is persisted,
	// regardless of status — not only on confirm/correct.
	mirrored, err := s.GetChunk(ctx, "rule:rule-1")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, model.ChunkBusinessRule, mirrored.ChunkType)

	proposed, err := s.GetRulesByStatus(ctx, model.RuleProposed)
	require.NoError(t, err)
	require.Len(t, proposed, 1)

	confirmedBy := "reviewer@example.com"
	rule.Status = model.RuleConfirmed
	rule.ConfirmedBy = &confirmedBy
	require.NoError(t, s.SaveRule(ctx, rule))

	confirmed, err := s.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	assert.Equal(t, model.RuleConfirmed, confirmed.Status)
	assert.Equal(t, &confirmedBy, confirmed.ConfirmedBy)
}

func TestSnapshotHistory_MostRecentAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveSnapshot(ctx, model.Snapshot{
		ID: "snap-1", Type: model.SnapshotAgent, Name: "before refactor",
		Files: []model.FileState{{Path: "a.go", Exists: true, ContentHash: "h1"}},
	}))
	require.NoError(t, s.SaveSnapshot(ctx, model.Snapshot{
		ID: "snap-2", Type: model.SnapshotAgent, Name: "after refactor",
		Files: []model.FileState{{Path: "a.go", Exists: true, ContentHash: "h2"}},
		PreviousSnapshotID: strPtrStore("snap-1"),
	}))

	recent, err := s.GetMostRecentSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, "snap-2", recent.ID)

	all, err := s.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "snap-2", all[0].ID)
}

func TestGetStats_CountsByTypeAndRebuildFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunks(ctx, []model.KnowledgeChunk{
		{ID: "c1", ChunkType: model.ChunkFunction, Content: "x"},
		{ID: "c2", ChunkType: model.ChunkFunction, Content: "y"},
		{ID: "c3", ChunkType: model.ChunkClass, Content: "z"},
	}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CountsByType[model.ChunkFunction])
	assert.Equal(t, 1, stats.CountsByType[model.ChunkClass])
	assert.False(t, stats.NeedsRebuild)

	require.NoError(t, s.SetMetadata(ctx, "last_build", "100"))
	require.NoError(t, s.SetMetadata(ctx, "last_file_change", "200"))
	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.NeedsRebuild)
}

func strPtrStore(s string) *string { return &s }
