package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// hopDecay is the per-hop relevance decay table (§4.7 P3); any hop beyond
// those listed falls back to the default entry.
var hopDecay = map[int]float64{1: 0.9, 2: 0.7, 3: 0.5}

func decayFor(hop int) float64 {
	if d, ok := hopDecay[hop]; ok {
		return d
	}
	return 0.3
}

// dependentWeight further discounts scores propagated along incoming edges
// (dependents), so a chunk's dependents never outrank its dependencies at
// the same hop.
const dependentWeight = 0.5

// bm25Search runs P2: a full-text search over chunk content/symbol names,
// scoped to the caller's include-type filter.
func (r *Retriever) bm25Search(ctx context.Context, task string, includeTypes []model.ChunkType, limit int) ([]scoredChunk, error) {
	results, err := r.store.SearchContent(ctx, task, includeTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	out := make([]scoredChunk, len(results))
	for i, res := range results {
		out[i] = scoredChunk{chunk: res.Chunk, score: res.Score, source: sourceBM25}
	}
	return out, nil
}

func includesType(types []model.ChunkType, t model.ChunkType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// expandAndScore implements P3: seed an id-keyed score map from the entry
// points and BM25 results, then walk outgoing and incoming edges up to
// maxHops, applying the decay table and each edge's own weight.
func (r *Retriever) expandAndScore(ctx context.Context, entryPoints, bm25Results []scoredChunk, maxHops int, includeTypes []model.ChunkType) ([]scoredChunk, error) {
	allScored := map[string]*scoredChunk{}
	upsert := func(sc scoredChunk) {
		if existing, ok := allScored[sc.chunk.ID]; !ok || sc.score > existing.score {
			cp := sc
			allScored[sc.chunk.ID] = &cp
		}
	}
	for _, sc := range entryPoints {
		upsert(sc)
	}
	for _, sc := range bm25Results {
		upsert(sc)
	}

	frontier := make([]*scoredChunk, 0, len(allScored))
	for _, sc := range allScored {
		frontier = append(frontier, sc)
	}

	for hop := 1; hop <= maxHops; hop++ {
		decay := decayFor(hop)
		var next []*scoredChunk

		for _, sc := range frontier {
			outEdges, err := r.store.GetEdgesFrom(ctx, sc.chunk.ID, nil)
			if err != nil {
				return nil, fmt.Errorf("get edges from %s: %w", sc.chunk.ID, err)
			}
			for _, edge := range outEdges {
				target, err := r.store.GetChunk(ctx, edge.TargetID)
				if err != nil {
					return nil, fmt.Errorf("get chunk %s: %w", edge.TargetID, err)
				}
				if target == nil || !includesType(includeTypes, target.ChunkType) {
					continue
				}
				newScore := sc.score * decay * edge.Weight
				if existing, ok := allScored[target.ID]; !ok {
					created := scoredChunk{chunk: *target, score: newScore, source: fmt.Sprintf("graph_hop_%d", hop)}
					allScored[target.ID] = &created
					next = append(next, &created)
				} else if newScore > existing.score {
					existing.score = newScore
					existing.source = fmt.Sprintf("graph_hop_%d", hop)
				}
			}

			inEdges, err := r.store.GetEdgesTo(ctx, sc.chunk.ID, nil)
			if err != nil {
				return nil, fmt.Errorf("get edges to %s: %w", sc.chunk.ID, err)
			}
			for _, edge := range inEdges {
				source, err := r.store.GetChunk(ctx, edge.SourceID)
				if err != nil {
					return nil, fmt.Errorf("get chunk %s: %w", edge.SourceID, err)
				}
				if source == nil || !includesType(includeTypes, source.ChunkType) {
					continue
				}
				newScore := sc.score * decay * dependentWeight * edge.Weight
				if _, ok := allScored[source.ID]; !ok {
					created := scoredChunk{chunk: *source, score: newScore, source: fmt.Sprintf("graph_hop_%d_dependent", hop)}
					allScored[source.ID] = &created
					next = append(next, &created)
				}
				// Unlike the outgoing branch, original_source never raises an
				// already-known dependent's score on a later, lower-weighted hop.
			}
		}

		frontier = next
	}

	out := make([]scoredChunk, 0, len(allScored))
	for _, sc := range allScored {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out, nil
}
