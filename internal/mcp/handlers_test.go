package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestProject(t *testing.T, s *Server, root string) BuildResponse {
	t.Helper()
	args, err := json.Marshal(BuildRequest{Root: root})
	require.NoError(t, err)
	result, err := s.handleBuild(t.Context(), args)
	require.NoError(t, err)
	resp, ok := result.(BuildResponse)
	require.True(t, ok)
	require.True(t, resp.Success, resp.Error)
	return resp
}

func TestHandleBuildAndStatus(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })

	build := buildTestProject(t, s, root)
	assert.Greater(t, build.ChunksCreated, 0)

	statusArgs, err := json.Marshal(StatusRequest{Root: root})
	require.NoError(t, err)
	result, err := s.handleStatus(t.Context(), statusArgs)
	require.NoError(t, err)
	status, ok := result.(StatusResponse)
	require.True(t, ok)
	assert.NotEmpty(t, status.CountsByType)
}

func TestHandleBuildMissingRoot(t *testing.T) {
	s := newTestServer(t)
	args, err := json.Marshal(BuildRequest{})
	require.NoError(t, err)
	_, err = s.handleBuild(t.Context(), args)
	require.Error(t, err)
}

func TestHandleRetrieveAndGet(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	retrieveArgs, err := json.Marshal(RetrieveRequest{Root: root, Task: "how does Add work"})
	require.NoError(t, err)
	result, err := s.handleRetrieve(t.Context(), retrieveArgs)
	require.NoError(t, err)
	bundle, ok := result.(ContextBundleResponse)
	require.True(t, ok)
	assert.NotEmpty(t, bundle.Markdown)

	if len(bundle.ChunkIDs) > 0 {
		getArgs, err := json.Marshal(GetRequest{Root: root, ChunkIDs: bundle.ChunkIDs[:1]})
		require.NoError(t, err)
		result, err := s.handleGet(t.Context(), getArgs)
		require.NoError(t, err)
		getResp, ok := result.(GetResponse)
		require.True(t, ok)
		assert.Len(t, getResp.Chunks, 1)
	}
}

func TestHandleRetrieveMissingTask(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	args, err := json.Marshal(RetrieveRequest{Root: root})
	require.NoError(t, err)
	_, err = s.handleRetrieve(t.Context(), args)
	require.Error(t, err)
}

func TestHandleSearch(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	args, err := json.Marshal(SearchRequest{Root: root, Query: "Add"})
	require.NoError(t, err)
	result, err := s.handleSearch(t.Context(), args)
	require.NoError(t, err)
	resp, ok := result.(SearchResponse)
	require.True(t, ok)
	assert.NotNil(t, resp.Results)
}

func TestHandleRelated(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	searchArgs, err := json.Marshal(SearchRequest{Root: root, Query: "Add", Limit: 1})
	require.NoError(t, err)
	result, err := s.handleSearch(t.Context(), searchArgs)
	require.NoError(t, err)
	search := result.(SearchResponse)
	require.NotEmpty(t, search.Results)

	relatedArgs, err := json.Marshal(RelatedRequest{Root: root, ChunkID: search.Results[0].Chunk.ID})
	require.NoError(t, err)
	result, err = s.handleRelated(t.Context(), relatedArgs)
	require.NoError(t, err)
	related, ok := result.(RelatedResponse)
	require.True(t, ok)
	assert.NotNil(t, related.Outgoing)
	assert.NotNil(t, related.Incoming)
}

func TestHandleOmittedIsPureView(t *testing.T) {
	s := newTestServer(t)

	args, err := json.Marshal(OmittedRequest{
		Omitted: []OmittedChunkItem{
			{ID: "a", ChunkType: "function", Reason: "token_budget", TokenCount: 10, RelevanceScore: 0.9},
			{ID: "b", ChunkType: "test", Reason: "low_relevance", TokenCount: 5, RelevanceScore: 0.1},
		},
		SortBy: "tokens",
	})
	require.NoError(t, err)
	result, err := s.handleOmitted(t.Context(), args)
	require.NoError(t, err)
	resp, ok := result.(OmittedResponse)
	require.True(t, ok)
	require.Len(t, resp.Filtered, 2)
	assert.Equal(t, "a", resp.Filtered[0].ID) // higher token count sorts first
}

func TestHandleHistoryBlameWithoutGit(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	histArgs, err := json.Marshal(HistoryRequest{Root: root, FilePath: "math.go"})
	require.NoError(t, err)
	result, err := s.handleHistory(t.Context(), histArgs)
	require.NoError(t, err)
	hist, ok := result.(HistoryResponse)
	require.True(t, ok)
	assert.Empty(t, hist.Commits) // temp dir is not a git repo (§7 VCS unavailable)

	blameArgs, err := json.Marshal(BlameRequest{Root: root, FilePath: "math.go"})
	require.NoError(t, err)
	result, err = s.handleBlame(t.Context(), blameArgs)
	require.NoError(t, err)
	blame := result.(BlameResponse)
	assert.Empty(t, blame.Blame)
}

func TestHandleWatchStartStopStatus(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	startArgs, err := json.Marshal(WatchRequest{Root: root, Action: "start"})
	require.NoError(t, err)
	result, err := s.handleWatch(t.Context(), startArgs)
	require.NoError(t, err)
	watch, ok := result.(WatchResponse)
	require.True(t, ok)
	assert.True(t, watch.Running)

	stopArgs, err := json.Marshal(WatchRequest{Root: root, Action: "stop"})
	require.NoError(t, err)
	result, err = s.handleWatch(t.Context(), stopArgs)
	require.NoError(t, err)
	watch = result.(WatchResponse)
	assert.False(t, watch.Running)
}

func TestHandleRuleActionNotFound(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	args, err := json.Marshal(RuleActionRequest{Root: root, RuleID: "does-not-exist"})
	require.NoError(t, err)
	_, err = s.handleRuleAction(t.Context(), ToolConfirmRule, args)
	require.Error(t, err)
}

func TestHandleSnapshotLifecycle(t *testing.T) {
	s := newTestServer(t)
	root := newTestProject(t)
	t.Cleanup(func() { s.Close() })
	buildTestProject(t, s, root)

	createArgs, err := json.Marshal(SnapshotCreateRequest{Root: root, Name: "before-refactor"})
	require.NoError(t, err)
	result, err := s.handleSnapshotCreate(t.Context(), createArgs)
	require.NoError(t, err)
	snapA, ok := result.(SnapshotResponse)
	require.True(t, ok)
	assert.NotEmpty(t, snapA.ID)

	createArgs2, err := json.Marshal(SnapshotCreateRequest{Root: root, Name: "after-refactor"})
	require.NoError(t, err)
	result, err = s.handleSnapshotCreate(t.Context(), createArgs2)
	require.NoError(t, err)
	snapB := result.(SnapshotResponse)

	compareArgs, err := json.Marshal(SnapshotCompareRequest{Root: root, A: snapA.ID, B: snapB.ID})
	require.NoError(t, err)
	result, err = s.handleSnapshotCompare(t.Context(), compareArgs)
	require.NoError(t, err)
	cmp, ok := result.(SnapshotCompareResponse)
	require.True(t, ok)
	assert.NotEmpty(t, cmp.Summary)

	rollbackArgs, err := json.Marshal(SnapshotRollbackRequest{Root: root, TargetID: snapA.ID})
	require.NoError(t, err)
	result, err = s.handleSnapshotRollback(t.Context(), rollbackArgs)
	require.NoError(t, err)
	_, ok = result.(SnapshotRollbackResponse)
	require.True(t, ok)
}

func TestParseChunkURI(t *testing.T) {
	root, id, err := parseChunkURI("engine://chunks/bXlyb290/chunk-123") // "myroot", base64url
	require.NoError(t, err)
	assert.Equal(t, "myroot", root)
	assert.Equal(t, "chunk-123", id)

	_, _, err = parseChunkURI("not-a-valid-uri")
	require.Error(t, err)
}
