package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

func strp(s string) *string { return &s }

func newTestRegistry() *analyzer.Registry {
	reg := analyzer.NewRegistry()
	reg.Register(analyzer.NewGoAnalyzer())
	return reg
}

func newTestEngine(t *testing.T, files map[string]string) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	eng, err := Open(root, ":memory:", newTestRegistry(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng, root
}

func TestBuild_FullPopulatesStatus(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"src/widget.go": "package src\n\nfunc DoWork() {}\n",
	})

	result := eng.Build(context.Background(), false, nil)
	require.True(t, result.Success)
	assert.Greater(t, result.ChunksCreated, 0)

	stats, err := eng.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.NeedsRebuild)
}

func TestSearch_FindsIndexedFunction(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"src/widget.go": "package src\n\nfunc DoWork() {}\n",
	})
	require.True(t, eng.Build(context.Background(), false, nil).Success)

	results, err := eng.Search(context.Background(), "DoWork", nil, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRelated_GroupsOutgoingAndIncomingEdges(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{})
	ctx := context.Background()

	a := model.KnowledgeChunk{ID: "a", ChunkType: model.ChunkFunction, Content: "func A() {}", FilePath: strp("a.go")}
	b := model.KnowledgeChunk{ID: "b", ChunkType: model.ChunkFunction, Content: "func B() {}", FilePath: strp("a.go")}
	require.NoError(t, eng.store.SaveChunk(ctx, a))
	require.NoError(t, eng.store.SaveChunk(ctx, b))
	require.NoError(t, eng.store.SaveEdge(ctx, model.ChunkEdge{SourceID: "a", TargetID: "b", EdgeType: model.EdgeCalls}))

	related, err := eng.Related(ctx, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, related.Outgoing[model.EdgeCalls])

	relatedB, err := eng.Related(ctx, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, relatedB.Incoming[model.EdgeCalls])
}

func TestConfirmRule_PersistsStatusAndValidatesEdge(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{})
	ctx := context.Background()

	rule := model.BusinessRule{
		ID:            "rule-1",
		Text:          "amount must be positive",
		Category:      model.CategoryValidation,
		Status:        model.RuleProposed,
		SourceChunkID: "chunk-1",
		SourceFile:    "a.go",
		Confidence:    0.8,
	}
	require.NoError(t, eng.store.SaveRule(ctx, rule))

	updated, err := eng.ConfirmRule(ctx, "rule-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RuleConfirmed, updated.Status)

	stored, err := eng.store.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, model.RuleConfirmed, stored.Status)

	edges, err := eng.store.GetEdgesTo(ctx, "chunk-1", []model.EdgeType{model.EdgeValidates})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestConfirmRule_UnknownIDReturnsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{})
	_, err := eng.ConfirmRule(context.Background(), "missing", "alice")
	require.Error(t, err)
	kgErr, ok := err.(*model.Error)
	require.True(t, ok)
	assert.Equal(t, model.ErrNotFound, kgErr.Kind)
}

func TestBlameAndDiff_NoGitRepoReturnEmptyNotError(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"a.go": "package a\n",
	})

	blame, err := eng.Blame(context.Background(), "a.go")
	require.NoError(t, err)
	assert.Empty(t, blame)

	diff, err := eng.Diff(context.Background(), "HEAD~1", "HEAD")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestWatch_StartStatusStop(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"a.go": "package a\n",
	})

	status, err := eng.Watch(WatchStart, 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, status.Running)

	status, err = eng.Watch(WatchStatus, 0)
	require.NoError(t, err)
	assert.True(t, status.Running)

	status, err = eng.Watch(WatchStop, 0)
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestFilterOmitted_FiltersByTypeAndSortsByTokens(t *testing.T) {
	reasonBudget := model.ReasonTokenBudget
	typeFunction := model.ChunkFunction

	omitted := []model.OmittedChunk{
		{ID: "a", ChunkType: model.ChunkFunction, Reason: model.ReasonTokenBudget, TokenCount: 50, RelevanceScore: 0.9},
		{ID: "b", ChunkType: model.ChunkClass, Reason: model.ReasonTokenBudget, TokenCount: 200, RelevanceScore: 0.4},
		{ID: "c", ChunkType: model.ChunkFunction, Reason: model.ReasonLowRelevance, TokenCount: 10, RelevanceScore: 0.1},
		{ID: "d", ChunkType: model.ChunkFunction, Reason: model.ReasonTokenBudget, TokenCount: 300, RelevanceScore: 0.5},
	}

	filtered, highValue := FilterOmitted(omitted, &reasonBudget, &typeFunction, "tokens")
	require.Len(t, filtered, 2)
	assert.Equal(t, "d", filtered[0].ID) // higher token count first
	assert.Equal(t, "a", filtered[1].ID)

	require.Len(t, highValue, 4)
	assert.Equal(t, "a", highValue[0].ID) // highest relevance score first
}

func TestWatch_UnknownActionReturnsMalformedInput(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{})
	_, err := eng.Watch(WatchAction("bogus"), 0)
	require.Error(t, err)
	kgErr, ok := err.(*model.Error)
	require.True(t, ok)
	assert.Equal(t, model.ErrMalformedInput, kgErr.Kind)
}
