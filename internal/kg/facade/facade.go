// Package facade exposes the stable retrieval surface (§6.2):
// build/status/retrieve/expand/get/search/related/omitted/history/blame/
// diff/watch. It is a thin orchestrator over internal/kg/store,
// internal/kg/graphbuild, internal/kg/retrieve, internal/kg/timeline, and
// internal/kg/watch — grounded on the teacher's
// internal/mcp/handlers.go request/response shape (success flag,
// descriptive error strings, defaulted optional fields) generalized from
// one JSON-RPC handler per operation to one Go method per operation.
package facade

import (
	"context"
	"sort"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/chunker"
	"github.com/kgraph-dev/kgengine/internal/kg/graphbuild"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/retrieve"
	"github.com/kgraph-dev/kgengine/internal/kg/rules"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
	"github.com/kgraph-dev/kgengine/internal/kg/timeline"
	"github.com/kgraph-dev/kgengine/internal/kg/watch"
)

// Engine is the facade over one project's knowledge graph (§6.1: one
// SQLite database per project root).
type Engine struct {
	root     string
	store    *store.Store
	builder  *graphbuild.Builder
	retrieve *retrieve.Retriever
	timeline *timeline.Manager
	git      *chunker.GitChunker // nil when root is not a git repository
	watchers *watch.Registry
}

// Open opens (creating if absent) the project's knowledge_graph.db and
// wires every component over it (§6.1).
func Open(root, dbPath string, registry *analyzer.Registry, cache *retrieve.ResultCache) (*Engine, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, model.NewError(model.ErrStorageIO, "open storage: %v", err)
	}
	git, _ := chunker.OpenGitChunker(root) // nil when not a git repo; never fatal (§6.3)

	return &Engine{
		root:     root,
		store:    st,
		builder:  graphbuild.New(root, st, registry),
		retrieve: retrieve.New(st, cache),
		timeline: timeline.New(root, st),
		git:      git,
		watchers: watch.NewRegistry(),
	}, nil
}

// Close releases the underlying storage connection.
func (e *Engine) Close() error {
	e.watchers.Stop()
	return e.store.Close()
}

// BuildResult reports counts and timing for a build call.
type BuildResult struct {
	Success        bool
	FilesProcessed int
	ChunksCreated  int
	EdgesCreated   int
	RulesProposed  int
	DurationMS     int64
	Warnings       []string
	Error          string
}

// Build runs a full or incremental graph build (kg.build, §6.2).
func (e *Engine) Build(ctx context.Context, incremental bool, changedFiles []string) BuildResult {
	start := time.Now()
	var err error
	if incremental {
		err = e.builder.Incremental(ctx, changedFiles, nil)
	} else {
		err = e.builder.Full(ctx)
	}
	status := e.builder.Status()
	result := BuildResult{
		Success:        err == nil,
		FilesProcessed: status.FilesProcessed,
		ChunksCreated:  status.ChunksCreated,
		EdgesCreated:   status.EdgesCreated,
		RulesProposed:  status.RulesProposed,
		DurationMS:     time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Status reports graph stats and whether a rebuild is due (kg.status, §6.2).
func (e *Engine) Status(ctx context.Context) (store.Stats, error) {
	return e.store.GetStats(ctx)
}

// Retrieve runs the seven-phase context retriever (kg.retrieve, §6.2, §4.7).
func (e *Engine) Retrieve(ctx context.Context, task string, opts retrieve.Options) (model.ContextBundle, error) {
	return e.retrieve.Retrieve(ctx, task, opts)
}

// Expand loads a chunk and its related context (kg.expand, §6.2, §4.7).
func (e *Engine) Expand(ctx context.Context, chunkID string, expansionType model.ExpansionType, tokenBudget int) (model.ContextBundle, error) {
	return e.retrieve.Expand(ctx, chunkID, expansionType, tokenBudget)
}

// FilterOmitted re-views a prior retrieval's omission list (kg.omitted,
// §6.2): filtered is the subset matching filterReason/filterType (either
// may be nil to mean "no filter"), optionally re-ordered by sortBy
// ("relevance" default, or "tokens"); highValue is the top 5 by relevance
// score, mirroring the markdown renderer's own omission-report cutoff
// (original_source's retriever.py picks the same top-5-by-relevance slice
// for its report). This is a pure view over caller-supplied data — it
// takes no Engine, since kg.omitted's input is the omission list itself,
// not a project.
func FilterOmitted(omitted []model.OmittedChunk, filterReason *model.OmissionReason, filterType *model.ChunkType, sortBy string) (filtered, highValue []model.OmittedChunk) {
	for _, o := range omitted {
		if filterReason != nil && o.Reason != *filterReason {
			continue
		}
		if filterType != nil && o.ChunkType != *filterType {
			continue
		}
		filtered = append(filtered, o)
	}

	sorted := make([]model.OmittedChunk, len(filtered))
	copy(sorted, filtered)
	switch sortBy {
	case "tokens":
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].TokenCount > sorted[j].TokenCount })
	default:
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelevanceScore > sorted[j].RelevanceScore })
	}
	filtered = sorted

	highValueSrc := make([]model.OmittedChunk, len(omitted))
	copy(highValueSrc, omitted)
	sort.Slice(highValueSrc, func(i, j int) bool { return highValueSrc[i].RelevanceScore > highValueSrc[j].RelevanceScore })
	if len(highValueSrc) > 5 {
		highValueSrc = highValueSrc[:5]
	}
	return filtered, highValueSrc
}

// Get loads chunks by id, in full (kg.get, §6.2).
func (e *Engine) Get(ctx context.Context, chunkIDs []string) ([]model.KnowledgeChunk, error) {
	return e.store.GetChunks(ctx, chunkIDs)
}

// SearchResult is one ranked preview row (kg.search, §6.2).
type SearchResult struct {
	Chunk model.KnowledgeChunk
	Score float64
}

// Search runs a bare BM25 query without graph expansion or budget
// allocation (kg.search, §6.2) — a thin pass-through to storage, unlike
// Retrieve's multi-phase pipeline.
func (e *Engine) Search(ctx context.Context, query string, chunkTypes []model.ChunkType, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := e.store.SearchContent(ctx, query, chunkTypes, limit)
	if err != nil {
		return nil, model.NewError(model.ErrStorageIO, "search content: %v", err)
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{Chunk: r.Chunk, Score: r.Score}
	}
	return out, nil
}

// RelatedGroup buckets neighbor ids by edge type (kg.related, §6.2).
type RelatedGroup struct {
	Outgoing map[model.EdgeType][]string
	Incoming map[model.EdgeType][]string
}

// Related reports a chunk's graph neighbors, grouped by edge type and
// direction, optionally filtered to relationTypes (kg.related, §6.2).
func (e *Engine) Related(ctx context.Context, chunkID string, relationTypes []model.EdgeType) (RelatedGroup, error) {
	out, err := e.store.GetEdgesFrom(ctx, chunkID, relationTypes)
	if err != nil {
		return RelatedGroup{}, model.NewError(model.ErrStorageIO, "get edges from: %v", err)
	}
	in, err := e.store.GetEdgesTo(ctx, chunkID, relationTypes)
	if err != nil {
		return RelatedGroup{}, model.NewError(model.ErrStorageIO, "get edges to: %v", err)
	}

	group := RelatedGroup{Outgoing: map[model.EdgeType][]string{}, Incoming: map[model.EdgeType][]string{}}
	for _, edge := range out {
		group.Outgoing[edge.EdgeType] = append(group.Outgoing[edge.EdgeType], edge.TargetID)
	}
	for _, edge := range in {
		group.Incoming[edge.EdgeType] = append(group.Incoming[edge.EdgeType], edge.SourceID)
	}
	return group, nil
}

// ConfirmRule, CorrectRule, RejectRule, DeprecateRule implement the
// business-rule lifecycle transitions (§4.9) over a previously proposed
// rule, persisting the new status and (on confirm/correct) the VALIDATES
// edge.
func (e *Engine) ConfirmRule(ctx context.Context, ruleID, confirmedBy string) (model.BusinessRule, error) {
	rule, err := e.mustGetRule(ctx, ruleID)
	if err != nil {
		return model.BusinessRule{}, err
	}
	updated, edge := rules.Confirm(*rule, confirmedBy, time.Now())
	return updated, e.saveRuleTransition(ctx, updated, &edge)
}

func (e *Engine) CorrectRule(ctx context.Context, ruleID, correctedText, correctedBy string) (model.BusinessRule, error) {
	rule, err := e.mustGetRule(ctx, ruleID)
	if err != nil {
		return model.BusinessRule{}, err
	}
	updated, edge := rules.Correct(*rule, correctedText, correctedBy, time.Now())
	return updated, e.saveRuleTransition(ctx, updated, &edge)
}

func (e *Engine) RejectRule(ctx context.Context, ruleID, reason, rejectedBy string) (model.BusinessRule, error) {
	rule, err := e.mustGetRule(ctx, ruleID)
	if err != nil {
		return model.BusinessRule{}, err
	}
	updated := rules.Reject(*rule, reason, rejectedBy, time.Now())
	return updated, e.saveRuleTransition(ctx, updated, nil)
}

func (e *Engine) DeprecateRule(ctx context.Context, ruleID string) (model.BusinessRule, error) {
	rule, err := e.mustGetRule(ctx, ruleID)
	if err != nil {
		return model.BusinessRule{}, err
	}
	updated := rules.Deprecate(*rule, time.Now())
	return updated, e.saveRuleTransition(ctx, updated, nil)
}

func (e *Engine) mustGetRule(ctx context.Context, ruleID string) (*model.BusinessRule, error) {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, model.NewError(model.ErrStorageIO, "get rule %s: %v", ruleID, err)
	}
	if rule == nil {
		return nil, model.NewError(model.ErrNotFound, "rule %s not found", ruleID)
	}
	return rule, nil
}

func (e *Engine) saveRuleTransition(ctx context.Context, rule model.BusinessRule, edge *model.ChunkEdge) error {
	// SaveRule mirrors the BUSINESS_RULE chunk itself (I6); only the
	// VALIDATES edge, which applies solely to CONFIRMED/CORRECTED, is this
	// caller's responsibility.
	if err := e.store.SaveRule(ctx, rule); err != nil {
		return model.NewError(model.ErrStorageIO, "save rule: %v", err)
	}
	if edge != nil {
		if err := e.store.SaveEdge(ctx, *edge); err != nil {
			return model.NewError(model.ErrStorageIO, "save validates edge: %v", err)
		}
	}
	return nil
}

// CreateSnapshot, CompareSnapshots, and PreviewRollback expose
// internal/kg/timeline (§4.9, §6.2).
func (e *Engine) CreateSnapshot(ctx context.Context, name, description string, snapType model.SnapshotType, createdBy string, tags []string) (model.Snapshot, error) {
	snap, err := e.timeline.CreateSnapshot(ctx, name, description, snapType, createdBy, tags)
	if err != nil {
		return model.Snapshot{}, model.NewError(model.ErrStorageIO, "create snapshot: %v", err)
	}
	return snap, nil
}

func (e *Engine) CompareSnapshots(ctx context.Context, aID, bID string) (timeline.Comparison, error) {
	return e.timeline.Compare(ctx, aID, bID)
}

func (e *Engine) PreviewRollback(ctx context.Context, targetID string) (timeline.RollbackPlan, error) {
	return e.timeline.PreviewRollback(ctx, targetID)
}

// History returns commits that touched filePath, most-recent first
// (kg.history, §6.2). A missing or unavailable git repository yields an
// empty, non-error result (§7 VCS unavailable) rather than an error —
// commit chunks carry the files they touched in Tags (see
// chunker.GitChunker#commitChunk), and ChunkCommits walks the log newest
// commit first, so no extra sort is needed here.
func (e *Engine) History(ctx context.Context, filePath string, limit int) ([]model.KnowledgeChunk, error) {
	if e.git == nil {
		return nil, nil
	}
	commits, err := e.store.GetChunksByType(ctx, model.ChunkCommit)
	if err != nil {
		return nil, model.NewError(model.ErrStorageIO, "get commit chunks: %v", err)
	}

	var matched []model.KnowledgeChunk
	for _, c := range commits {
		for _, tag := range c.Tags {
			if tag == filePath {
				matched = append(matched, c)
				break
			}
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Blame returns raw blame output for filePath at HEAD (kg.blame, §6.2). A
// missing git repository yields an empty string, never an error.
func (e *Engine) Blame(ctx context.Context, filePath string) (string, error) {
	if e.git == nil {
		return "", nil
	}
	out, err := e.git.Blame(filePath)
	if err != nil {
		return "", nil // VCS failures never raise (§7)
	}
	return out, nil
}

// Diff returns the unified diff between two commit-ish refs (kg.diff,
// §6.2), truncated to ~50KB per the markdown-rendering contract.
func (e *Engine) Diff(ctx context.Context, fromHash, toHash string) (string, error) {
	if e.git == nil {
		return "", nil
	}
	out, err := e.git.Diff(fromHash, toHash)
	if err != nil {
		return "", nil
	}
	const maxDiffBytes = 50 * 1024
	if len(out) > maxDiffBytes {
		out = out[:maxDiffBytes] + "\n... (truncated)\n"
	}
	return out, nil
}

// WatchAction selects the control verb for kg.watch (§6.2).
type WatchAction string

const (
	WatchStart  WatchAction = "start"
	WatchStop   WatchAction = "stop"
	WatchStatus WatchAction = "status"
)

// WatchStatusResult reports the single watcher registry's current state.
type WatchStatusResult struct {
	Running bool
	Root    string
	Stats   watch.Stats
}

// Watch controls the project's single watcher instance (kg.watch, §6.2).
func (e *Engine) Watch(action WatchAction, debounce time.Duration) (WatchStatusResult, error) {
	switch action {
	case WatchStart:
		if err := e.watchers.Start(e.root, e.builder, debounce); err != nil {
			return WatchStatusResult{}, model.NewError(model.ErrWatcherUnavailable, "start watcher: %v", err)
		}
	case WatchStop:
		e.watchers.Stop()
	case WatchStatus:
		// fallthrough to status read below
	default:
		return WatchStatusResult{}, model.NewError(model.ErrMalformedInput, "unknown watch action %q", action)
	}

	running, root, stats := e.watchers.Status()
	return WatchStatusResult{Running: running, Root: root, Stats: stats}, nil
}
