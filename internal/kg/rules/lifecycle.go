package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// Confirm transitions a PROPOSED rule to CONFIRMED as-is. The caller is
// responsible for persisting the rule and the resulting VALIDATES edge via
// internal/kg/store.
func Confirm(rule model.BusinessRule, confirmedBy string, now time.Time) (model.BusinessRule, model.ChunkEdge) {
	rule.Status = model.RuleConfirmed
	rule.ConfirmedBy = &confirmedBy
	rule.ConfirmedAt = &now
	rule.UpdatedAt = now
	return rule, validatesEdge(rule)
}

// Correct transitions a PROPOSED or CONFIRMED rule to CORRECTED, replacing
// its text with the operator's correction and retaining the original text
// under HumanCorrection for display.
func Correct(rule model.BusinessRule, correctedText, correctedBy string, now time.Time) (model.BusinessRule, model.ChunkEdge) {
	original := rule.Text
	rule.HumanCorrection = &original
	rule.Text = correctedText
	rule.Status = model.RuleCorrected
	rule.ConfirmedBy = &correctedBy
	rule.ConfirmedAt = &now
	rule.UpdatedAt = now
	return rule, validatesEdge(rule)
}

// Reject transitions a PROPOSED rule to REJECTED. No VALIDATES edge is
// created; the rule stays in the store as a rejected record, not deleted.
func Reject(rule model.BusinessRule, reason, rejectedBy string, now time.Time) model.BusinessRule {
	rule.Status = model.RuleRejected
	rule.RejectionReason = &reason
	rule.ConfirmedBy = &rejectedBy
	rule.UpdatedAt = now
	return rule
}

// Deprecate marks a previously confirmed/corrected rule as no longer active,
// e.g. after its source chunk was deleted by re-derivation.
func Deprecate(rule model.BusinessRule, now time.Time) model.BusinessRule {
	rule.Status = model.RuleDeprecated
	rule.UpdatedAt = now
	return rule
}

// validatesEdge builds the VALIDATES edge from a confirmed/corrected rule
// back to the code chunk it was interpreted from, weighted by confidence
// (§4.5).
func validatesEdge(rule model.BusinessRule) model.ChunkEdge {
	return model.ChunkEdge{
		SourceID: "rule:" + rule.ID,
		TargetID: rule.SourceChunkID,
		EdgeType: model.EdgeValidates,
		Weight:   rule.Confidence,
	}
}

// ToChunk renders a BusinessRule as its markdown KnowledgeChunk form,
// mirroring original_source's BusinessRule.to_chunk() (§4.3): Category,
// Status, Confidence, Rule, Source, and Interpretation Context sections,
// plus a conditional Original (Corrected) or Rejection Reason section.
func ToChunk(rule model.BusinessRule) model.KnowledgeChunk {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Business Rule\n\n")
	fmt.Fprintf(&sb, "- **Category**: %s\n", rule.Category)
	fmt.Fprintf(&sb, "- **Status**: %s\n", rule.Status)
	fmt.Fprintf(&sb, "- **Confidence**: %.2f\n\n", rule.Confidence)
	fmt.Fprintf(&sb, "### Rule\n\n%s\n\n", rule.Text)

	source := rule.SourceFile
	if rule.SourceLineStart != nil {
		source = fmt.Sprintf("%s:%d", source, *rule.SourceLineStart)
	}
	if rule.SourceSymbol != nil {
		source = fmt.Sprintf("%s (%s)", source, *rule.SourceSymbol)
	}
	fmt.Fprintf(&sb, "### Source\n\n%s\n\n", source)

	if rule.InterpretationContext != "" {
		fmt.Fprintf(&sb, "### Interpretation Context\n\n```\n%s\n```\n\n", rule.InterpretationContext)
	}

	switch {
	case rule.Status == model.RuleCorrected && rule.HumanCorrection != nil:
		fmt.Fprintf(&sb, "### Original (Corrected)\n\n%s\n\n", *rule.HumanCorrection)
	case rule.Status == model.RuleRejected && rule.RejectionReason != nil:
		fmt.Fprintf(&sb, "### Rejection Reason\n\n%s\n\n", *rule.RejectionReason)
	}

	content := strings.TrimRight(sb.String(), "\n") + "\n"
	compressed := fmt.Sprintf("[%s] %s", rule.Category, truncate(rule.Text, 100))

	path := rule.SourceFile
	return model.KnowledgeChunk{
		ID:                   "rule:" + rule.ID,
		ChunkType:             model.ChunkBusinessRule,
		Content:               content,
		ContentCompressed:     &compressed,
		TokenCount:            tokenestimate.Estimate(content),
		TokenCountCompressed:  tokenestimate.Estimate(compressed),
		FilePath:              &path,
		LineStart:             rule.SourceLineStart,
		LineEnd:               rule.SourceLineEnd,
		SymbolName:            rule.SourceSymbol,
		Source:                model.SourceAuto,
		Confidence:            rule.Confidence,
		Tags:                  append([]string{"business_rule"}, rule.Tags...),
		Extra: map[string]any{
			"rule_id":         rule.ID,
			"category":        rule.Category,
			"status":          rule.Status,
			"source_chunk_id": rule.SourceChunkID,
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
