// Package retrieve implements the seven-phase context retriever (§4.7):
// entry-point resolution, BM25 search, graph expansion, budget allocation
// with omission tracking, induced-subgraph construction, expansion-option
// suggestions, and related-id collection. Orchestration shape (request
// defaulting, cache-then-compute) is grounded on the teacher's
// internal/mcp/handlers.go#handleContextSearch; the phases themselves have
// no teacher analogue and are ported from
// original_source/.../core/retriever.py's ContextRetriever.
package retrieve

import (
	"context"
	"fmt"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

// defaultIncludeTypes is the chunk-type filter applied when the caller
// doesn't supply one (§4.7 "Default include types").
var defaultIncludeTypes = []model.ChunkType{
	model.ChunkFunction, model.ChunkClass, model.ChunkSourceFile,
	model.ChunkContract, model.ChunkConfig, model.ChunkMetadata,
}

// Options configures a single Retrieve call. A nil IncludeTypes and a
// MaxHops of zero take the defaults documented at §4.7; a TokenBudget of
// zero or less is not defaulted and yields an empty bundle.
type Options struct {
	TokenBudget    int
	IncludeTypes   []model.ChunkType // nil = defaultIncludeTypes (+ tests/history)
	ExcludeTypes   []model.ChunkType
	IncludeTests   bool
	IncludeHistory bool
	Compression    model.CompressionLevel
	MaxHops        int
	Symbols        []string
	Files          []string
}

func (o Options) resolveIncludeTypes() []model.ChunkType {
	types := o.IncludeTypes
	if types == nil {
		types = append([]model.ChunkType(nil), defaultIncludeTypes...)
		if o.IncludeTests {
			types = append(types, model.ChunkTest)
		}
		if o.IncludeHistory {
			types = append(types, model.ChunkCommit)
		}
	}
	if len(o.ExcludeTypes) == 0 {
		return types
	}
	excluded := make(map[model.ChunkType]bool, len(o.ExcludeTypes))
	for _, t := range o.ExcludeTypes {
		excluded[t] = true
	}
	var filtered []model.ChunkType
	for _, t := range types {
		if !excluded[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func (o Options) resolveMaxHops() int {
	if o.MaxHops <= 0 {
		return 2
	}
	return o.MaxHops
}

// Retriever answers Retrieve and Expand queries over a single project's
// store.
type Retriever struct {
	store *store.Store
	cache *ResultCache
}

// New builds a Retriever over st. cache may be nil (no caching).
func New(st *store.Store, cache *ResultCache) *Retriever {
	return &Retriever{store: st, cache: cache}
}

// Retrieve runs the full seven-phase pipeline for task, returning a bundle
// that never exceeds opts.TokenBudget (P1, property P1) and tracks every
// considered-but-excluded chunk with exactly one omission reason (I7).
func (r *Retriever) Retrieve(ctx context.Context, task string, opts Options) (model.ContextBundle, error) {
	start := time.Now()

	if opts.TokenBudget <= 0 {
		return model.ContextBundle{
			Task:            task,
			TokenBudget:     opts.TokenBudget,
			CompressionLevel: opts.Compression,
			OmissionSummary: "Zero token budget - no chunks loaded.",
			RetrievalTimeMS: time.Since(start).Milliseconds(),
		}, nil
	}

	cacheKey := ""
	if r.cache != nil {
		cacheKey = Key(task, opts)
		if cached, ok := r.cache.Get(ctx, cacheKey); ok {
			cached.RetrievalTimeMS = time.Since(start).Milliseconds()
			return cached, nil
		}
	}

	includeTypes := opts.resolveIncludeTypes()
	maxHops := opts.resolveMaxHops()

	entryPoints, err := r.findEntryPoints(ctx, task, opts.Symbols, opts.Files)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("find entry points: %w", err)
	}

	bm25Results, err := r.bm25Search(ctx, task, includeTypes, 50)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("bm25 search: %w", err)
	}

	scored, err := r.expandAndScore(ctx, entryPoints, bm25Results, maxHops, includeTypes)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("expand and score: %w", err)
	}

	bundle := r.allocateBudget(scored, opts.TokenBudget, opts.Compression)

	edges, err := r.inducedSubgraph(ctx, bundle.Chunks)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("induced subgraph: %w", err)
	}
	bundle.Edges = edges

	options, err := r.buildExpansionOptions(ctx, bundle.Chunks, bundle.OmittedChunks)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("build expansion options: %w", err)
	}
	bundle.AvailableExpansions = options

	tests, commits, rules, err := r.findRelatedIDs(ctx, bundle.Chunks)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("find related ids: %w", err)
	}
	bundle.RelatedTests = tests
	bundle.RelatedCommits = commits
	bundle.RelatedBusinessRules = rules

	bundle.Task = task
	bundle.RetrievalTimeMS = time.Since(start).Milliseconds()

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, bundle)
	}

	return bundle, nil
}

// Expand implements the separate expand(chunk_id, expansion_type,
// token_budget) entry point (§4.7): load the start chunk unconditionally,
// then greedily add chunks related via the requested traversal.
func (r *Retriever) Expand(ctx context.Context, chunkID string, expansionType model.ExpansionType, tokenBudget int) (model.ContextBundle, error) {
	var bundle model.ContextBundle
	bundle.Task = fmt.Sprintf("expand:%s:%s", chunkID, expansionType)
	bundle.TokenBudget = tokenBudget

	start, err := r.store.GetChunk(ctx, chunkID)
	if err != nil {
		return model.ContextBundle{}, fmt.Errorf("get chunk %s: %w", chunkID, err)
	}
	if start == nil {
		bundle.OmissionSummary = fmt.Sprintf("Chunk not found: %s", chunkID)
		return bundle, nil
	}

	bundle.Chunks = append(bundle.Chunks, *start)
	used := start.TokenCount

	// relatedIDs preserves edge-discovery order (dependencies, then
	// dependents, then tests) instead of a bare map, so the greedy budget
	// walk below is reproducible rather than ranging over random map order.
	seen := map[string]bool{}
	var relatedIDs []string
	addEdgeTargets := func(edges []model.ChunkEdge, pickOther func(model.ChunkEdge) string) {
		for _, e := range edges {
			id := pickOther(e)
			if !seen[id] {
				seen[id] = true
				relatedIDs = append(relatedIDs, id)
			}
		}
	}

	if expansionType == model.ExpandDependencies || expansionType == model.ExpandAll {
		edges, err := r.store.GetEdgesFrom(ctx, chunkID, nil)
		if err != nil {
			return model.ContextBundle{}, fmt.Errorf("get edges from %s: %w", chunkID, err)
		}
		addEdgeTargets(edges, func(e model.ChunkEdge) string { return e.TargetID })
	}

	if expansionType == model.ExpandDependents || expansionType == model.ExpandAll {
		edges, err := r.store.GetEdgesTo(ctx, chunkID, nil)
		if err != nil {
			return model.ContextBundle{}, fmt.Errorf("get edges to %s: %w", chunkID, err)
		}
		addEdgeTargets(edges, func(e model.ChunkEdge) string { return e.SourceID })
	}

	if expansionType == model.ExpandTests || expansionType == model.ExpandAll {
		edges, err := r.store.GetEdgesTo(ctx, chunkID, []model.EdgeType{model.EdgeTestedBy})
		if err != nil {
			return model.ContextBundle{}, fmt.Errorf("get tested_by edges for %s: %w", chunkID, err)
		}
		addEdgeTargets(edges, func(e model.ChunkEdge) string { return e.SourceID })
	}

	for i, id := range relatedIDs {
		if id == chunkID {
			relatedIDs = append(relatedIDs[:i], relatedIDs[i+1:]...)
			break
		}
	}

	for _, id := range relatedIDs {
		related, err := r.store.GetChunk(ctx, id)
		if err != nil {
			return model.ContextBundle{}, fmt.Errorf("get chunk %s: %w", id, err)
		}
		if related == nil {
			continue
		}
		if used+related.TokenCount <= tokenBudget {
			bundle.Chunks = append(bundle.Chunks, *related)
			used += related.TokenCount
			continue
		}
		bundle.OmittedChunks = append(bundle.OmittedChunks, model.OmittedChunk{
			ID:         related.ID,
			ChunkType:  related.ChunkType,
			Reason:     model.ReasonTokenBudget,
			TokenCount: related.TokenCount,
			CanExpand:  true,
			FilePath:   related.FilePath,
			SymbolName: related.SymbolName,
		})
	}

	bundle.TotalTokens = used
	bundle.OmissionSummary = omissionSummary(bundle.OmittedChunks, omissionReasonCounts(bundle.OmittedChunks))
	return bundle, nil
}

func omissionReasonCounts(omitted []model.OmittedChunk) map[model.OmissionReason]int {
	counts := map[model.OmissionReason]int{}
	for _, o := range omitted {
		counts[o.Reason]++
	}
	return counts
}
