package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

func TestInterpret_FindsValidationAndConstraint(t *testing.T) {
	code := "" +
		"func process(x int) error {\n" +
		"    if len(name) < 3 {\n" +
		"        raise_ValueError\n" +
		"    }\n" +
		"    if x > 100 {\n" +
		"        return fmt.Errorf(\"too big\")\n" +
		"    }\n" +
		"    return nil\n" +
		"}\n"

	proposals := Interpret(code, "pkg/process.go", nil, "chunk:1")
	require.NotEmpty(t, proposals)

	var sawValidation, sawConstraint bool
	for _, p := range proposals {
		if p.Category == model.CategoryValidation {
			sawValidation = true
		}
		if p.Category == model.CategoryConstraint {
			sawConstraint = true
		}
		assert.Equal(t, 0.6, p.Confidence)
		assert.Len(t, p.ID, 12)
	}
	assert.True(t, sawValidation)
	assert.True(t, sawConstraint)
}

func TestInterpret_StableID(t *testing.T) {
	code := "if len(x) < 3 {\n"
	a := Interpret(code, "f.go", nil, "c1")
	b := Interpret(code, "f.go", nil, "c1")
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestInterpret_NoMatches(t *testing.T) {
	proposals := Interpret("x := 1\ny := 2\n", "f.go", nil, "c1")
	assert.Empty(t, proposals)
}

func TestConfirm_SetsStatusAndEdge(t *testing.T) {
	rule := model.BusinessRule{
		ID:            "abc123",
		Status:        model.RuleProposed,
		Confidence:    0.6,
		SourceChunkID: "chunk:1",
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	confirmed, edge := Confirm(rule, "operator@example.com", now)
	assert.Equal(t, model.RuleConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "operator@example.com", *confirmed.ConfirmedBy)
	assert.Equal(t, model.EdgeValidates, edge.EdgeType)
	assert.Equal(t, "rule:abc123", edge.SourceID)
	assert.Equal(t, "chunk:1", edge.TargetID)
	assert.Equal(t, 0.6, edge.Weight)
}

func TestCorrect_PreservesOriginalText(t *testing.T) {
	rule := model.BusinessRule{
		ID:     "abc123",
		Status: model.RuleProposed,
		Text:   "Required field check",
	}
	now := time.Now()

	corrected, edge := Correct(rule, "Actual rule: names must be unique", "operator@example.com", now)
	assert.Equal(t, model.RuleCorrected, corrected.Status)
	assert.Equal(t, "Actual rule: names must be unique", corrected.Text)
	require.NotNil(t, corrected.HumanCorrection)
	assert.Equal(t, "Required field check", *corrected.HumanCorrection)
	assert.Equal(t, model.EdgeValidates, edge.EdgeType)
}

func TestReject_SetsReasonNoEdge(t *testing.T) {
	rule := model.BusinessRule{ID: "abc123", Status: model.RuleProposed}
	rejected := Reject(rule, "not a real rule", "operator@example.com", time.Now())
	assert.Equal(t, model.RuleRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "not a real rule", *rejected.RejectionReason)
}

func TestToChunk_IncludesSections(t *testing.T) {
	line := 42
	rule := model.BusinessRule{
		ID:                    "abc123",
		Text:                  "Names must be non-empty",
		Category:              model.CategoryValidation,
		Status:                model.RuleConfirmed,
		SourceFile:            "pkg/validate.go",
		SourceLineStart:       &line,
		InterpretationContext: "if name == \"\" {\n    return err\n}",
		Confidence:            0.6,
	}

	chunk := ToChunk(rule)
	assert.Equal(t, model.ChunkBusinessRule, chunk.ChunkType)
	assert.Contains(t, chunk.Content, "### Rule")
	assert.Contains(t, chunk.Content, "Names must be non-empty")
	assert.Contains(t, chunk.Content, "pkg/validate.go:42")
	assert.Contains(t, chunk.Content, "### Interpretation Context")
	require.NotNil(t, chunk.ContentCompressed)
	assert.Contains(t, *chunk.ContentCompressed, "[validation]")
}

func TestToChunk_RejectedIncludesReason(t *testing.T) {
	reason := "false positive"
	rule := model.BusinessRule{
		ID:              "abc123",
		Text:            "some rule",
		Category:        model.CategoryConstraint,
		Status:          model.RuleRejected,
		SourceFile:      "f.go",
		RejectionReason: &reason,
	}
	chunk := ToChunk(rule)
	assert.Contains(t, chunk.Content, "### Rejection Reason")
	assert.Contains(t, chunk.Content, "false positive")
}
