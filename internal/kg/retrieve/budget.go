package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/kgraph-dev/kgengine/internal/kg/compress"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// lowRelevanceThreshold is the score below which an unfit chunk is reported
// as LOW_RELEVANCE rather than TOKEN_BUDGET (§4.7 P4).
const lowRelevanceThreshold = 0.5

// allocateBudget implements P4: greedily include chunks in score order while
// they fit the remaining budget, tracking every omission with exactly one
// reason (I7).
func (r *Retriever) allocateBudget(scored []scoredChunk, tokenBudget int, level model.CompressionLevel) model.ContextBundle {
	var bundle model.ContextBundle
	bundle.OmissionByType = map[model.ChunkType]int{}
	bundle.OmissionByReason = map[model.OmissionReason]int{}

	used := 0
	for _, sc := range scored {
		chunk := sc.chunk
		cost := compress.Cost(chunk, level)

		if used+cost <= tokenBudget {
			bundle.Chunks = append(bundle.Chunks, chunk)
			used += cost
			continue
		}

		reason := model.ReasonTokenBudget
		if sc.score < lowRelevanceThreshold {
			reason = model.ReasonLowRelevance
		}
		bundle.OmittedChunks = append(bundle.OmittedChunks, model.OmittedChunk{
			ID:             chunk.ID,
			ChunkType:      chunk.ChunkType,
			Reason:         reason,
			TokenCount:     cost,
			RelevanceScore: sc.score,
			CanExpand:      true,
			FilePath:       chunk.FilePath,
			SymbolName:     chunk.SymbolName,
		})
		bundle.OmissionByType[chunk.ChunkType]++
		bundle.OmissionByReason[reason]++
	}

	bundle.TotalTokens = used
	bundle.TokenBudget = tokenBudget
	bundle.CompressionLevel = level
	bundle.OmissionSummary = omissionSummary(bundle.OmittedChunks, bundle.OmissionByReason)
	return bundle
}

func omissionSummary(omitted []model.OmittedChunk, byReason map[model.OmissionReason]int) string {
	if len(omitted) == 0 {
		return "All relevant chunks were loaded."
	}
	totalTokens := 0
	for _, o := range omitted {
		totalTokens += o.TokenCount
	}
	primary := model.OmissionReason("none")
	best := -1
	for reason, count := range byReason {
		if count > best {
			best, primary = count, reason
		}
	}
	return fmt.Sprintf("%d chunks omitted (%d tokens). Primary reason: %s. Use kg.expand to load specific chunks.",
		len(omitted), totalTokens, primary)
}

// inducedSubgraph implements P5: every persisted edge whose endpoints are
// both among the included chunks.
func (r *Retriever) inducedSubgraph(ctx context.Context, chunks []model.KnowledgeChunk) ([]model.ChunkEdge, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	edges, err := r.store.GetEdgesAmong(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get edges among: %w", err)
	}
	return edges, nil
}

// buildExpansionOptions implements P6: up to 20 suggested follow-up
// retrievals, highest priority first.
func (r *Retriever) buildExpansionOptions(ctx context.Context, included []model.KnowledgeChunk, omitted []model.OmittedChunk) ([]model.ExpansionOption, error) {
	includedIDs := make(map[string]bool, len(included))
	for _, c := range included {
		includedIDs[c.ID] = true
	}

	var options []model.ExpansionOption

	highValue := append([]model.OmittedChunk(nil), omitted...)
	sort.Slice(highValue, func(i, j int) bool { return highValue[i].RelevanceScore > highValue[j].RelevanceScore })
	if len(highValue) > 5 {
		highValue = highValue[:5]
	}
	for _, o := range highValue {
		options = append(options, model.ExpansionOption{
			ChunkID:       o.ID,
			ExpansionType: model.ExpandOmitted,
			Description:   fmt.Sprintf("High relevance chunk (%.2f)", o.RelevanceScore),
			TokenCost:     o.TokenCount,
			Priority:      1,
		})
	}

	depSource := included
	if len(depSource) > 10 {
		depSource = depSource[:10]
	}
	for _, chunk := range depSource {
		edges, err := r.store.GetEdgesFrom(ctx, chunk.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("get edges from %s: %w", chunk.ID, err)
		}
		for _, edge := range edges {
			if includedIDs[edge.TargetID] {
				continue
			}
			target, err := r.store.GetChunk(ctx, edge.TargetID)
			if err != nil {
				return nil, fmt.Errorf("get chunk %s: %w", edge.TargetID, err)
			}
			if target == nil {
				continue
			}
			label := chunk.ID
			if chunk.SymbolName != nil {
				label = *chunk.SymbolName
			}
			options = append(options, model.ExpansionOption{
				ChunkID:       edge.TargetID,
				ExpansionType: model.ExpandDependencies,
				Description:   fmt.Sprintf("%s from %s", edge.EdgeType, label),
				TokenCost:     target.TokenCount,
				Priority:      2,
			})
		}
	}

	testSource := included
	if len(testSource) > 5 {
		testSource = testSource[:5]
	}
	for _, chunk := range testSource {
		edges, err := r.store.GetEdgesTo(ctx, chunk.ID, []model.EdgeType{model.EdgeTestedBy})
		if err != nil {
			return nil, fmt.Errorf("get tested_by edges for %s: %w", chunk.ID, err)
		}
		for _, edge := range edges {
			if includedIDs[edge.SourceID] {
				continue
			}
			test, err := r.store.GetChunk(ctx, edge.SourceID)
			if err != nil {
				return nil, fmt.Errorf("get chunk %s: %w", edge.SourceID, err)
			}
			if test == nil {
				continue
			}
			label := chunk.ID
			if chunk.SymbolName != nil {
				label = *chunk.SymbolName
			}
			options = append(options, model.ExpansionOption{
				ChunkID:       edge.SourceID,
				ExpansionType: model.ExpandTests,
				Description:   fmt.Sprintf("Test for %s", label),
				TokenCost:     test.TokenCount,
				Priority:      2,
			})
		}
	}

	if len(options) > 20 {
		options = options[:20]
	}
	return options, nil
}

// findRelatedIDs implements P7: ids only (never content) of tests,
// commits, and business rules connected to the included chunks.
func (r *Retriever) findRelatedIDs(ctx context.Context, chunks []model.KnowledgeChunk) (tests, commits, rules []string, err error) {
	testSet := map[string]bool{}
	commitSet := map[string]bool{}
	ruleSet := map[string]bool{}

	for _, chunk := range chunks {
		testEdges, err := r.store.GetEdgesTo(ctx, chunk.ID, []model.EdgeType{model.EdgeTestedBy})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get tested_by edges for %s: %w", chunk.ID, err)
		}
		for _, e := range testEdges {
			testSet[e.SourceID] = true
		}

		commitEdges, err := r.store.GetEdgesFrom(ctx, chunk.ID, []model.EdgeType{model.EdgeModifiedIn})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get modified_in edges for %s: %w", chunk.ID, err)
		}
		for _, e := range commitEdges {
			commitSet[e.TargetID] = true
		}

		ruleEdges, err := r.store.GetEdgesTo(ctx, chunk.ID, []model.EdgeType{model.EdgeValidates})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get validates edges for %s: %w", chunk.ID, err)
		}
		for _, e := range ruleEdges {
			ruleSet[e.SourceID] = true
		}
	}

	return setToSlice(testSet), setToSlice(commitSet), setToSlice(ruleSet), nil
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
