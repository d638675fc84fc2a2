// Package rules implements the business-rule proposer and lifecycle store
// (spec §3.1, §4.3, §4.9): heuristic pattern matching over code interprets
// candidate rules, which only become CONFIRMED/CORRECTED/REJECTED through
// explicit operator action. Grounded on original_source's business_rules.py
// (interpret_rules_from_code, BusinessRuleStore), adapted onto
// internal/kg/model and internal/kg/store.
package rules

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

type pattern struct {
	re          *regexp.Regexp
	description string
}

// catalogue is the fixed (regex, category, description) triple set used to
// interpret candidate business rules from code (§4.3).
var catalogue = map[model.RuleCategory][]pattern{
	model.CategoryValidation: {
		{regexp.MustCompile(`(?i)if\s+.*(?:len|length)(?:\([^)]*\))?\s*[<>=]`), "Length validation"},
		{regexp.MustCompile(`(?i)if\s+not\s+\w+:`), "Required field check"},
		{regexp.MustCompile(`(?i)raise\s+(?:ValueError|ValidationError)`), "Validation error"},
		{regexp.MustCompile(`(?i)assert\s+`), "Assertion/invariant"},
		{regexp.MustCompile(`(?i)\.(?:is_valid|validate)\(`), "Validation method call"},
	},
	model.CategoryAuthorization: {
		{regexp.MustCompile(`(?i)if\s+.*(?:is_admin|has_permission|can_|allowed)`), "Permission check"},
		{regexp.MustCompile(`(?i)@(?:login_required|permission_required|auth)`), "Auth decorator"},
		{regexp.MustCompile(`(?i)(?:role|permission)\s*[=!]=`), "Role/permission comparison"},
	},
	model.CategoryBusinessLogic: {
		{regexp.MustCompile(`(?i)if\s+.*(?:status|state)\s*==`), "State check"},
		{regexp.MustCompile(`(?i)(?:price|cost|amount|total)\s*[*+/-]=?`), "Financial calculation"},
		{regexp.MustCompile(`(?i)(?:max|min|limit|threshold)`), "Limit/threshold"},
	},
	model.CategoryConstraint: {
		{regexp.MustCompile(`(?i)(?:MAX|MIN|LIMIT)_\w+\s*=`), "Constant constraint"},
		{regexp.MustCompile(`(?i)if\s+.*>\s*\d+`), "Numeric constraint"},
		{regexp.MustCompile(`(?i)\.(?:startswith|endswith|match)`), "Format constraint"},
	},
}

// categoryOrder fixes iteration order so proposals are deterministic when a
// line matches more than one category.
var categoryOrder = []model.RuleCategory{
	model.CategoryValidation, model.CategoryAuthorization,
	model.CategoryBusinessLogic, model.CategoryConstraint,
}

// Proposal is a candidate rule interpreted from one line of code, not yet
// persisted.
type Proposal struct {
	ID            string
	Category      model.RuleCategory
	Description   string
	Line          int
	CodeSnippet   string
	Context       string
	FilePath      string
	SymbolName    *string
	SourceChunkID string
	Confidence    float64
}

// Interpret scans codeContent line by line against the fixed pattern
// catalogue (§4.3), applying at most one match per category per line, and
// returns every proposed rule with a stable id.
func Interpret(codeContent, filePath string, symbolName *string, chunkID string) []Proposal {
	lines := strings.Split(codeContent, "\n")
	var proposals []Proposal

	for i, line := range lines {
		for _, category := range categoryOrder {
			for _, p := range catalogue[category] {
				if !p.re.MatchString(line) {
					continue
				}
				lineNum := i + 1
				start := i - 2
				if start < 0 {
					start = 0
				}
				end := i + 3
				if end > len(lines) {
					end = len(lines)
				}
				context := strings.Join(lines[start:end], "\n")

				proposals = append(proposals, Proposal{
					ID:            stableID(filePath, lineNum, p.description),
					Category:      category,
					Description:   p.description,
					Line:          lineNum,
					CodeSnippet:   strings.TrimSpace(line),
					Context:       context,
					FilePath:      filePath,
					SymbolName:    symbolName,
					SourceChunkID: chunkID,
					Confidence:    0.6,
				})
				break // one match per line per category
			}
		}
	}

	return proposals
}

// stableID derives a rule's id as the first 12 hex characters of
// md5(file:line:description) (§4.3).
func stableID(filePath string, line int, description string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", filePath, line, description)))
	return hex.EncodeToString(sum[:])[:12]
}

// ToBusinessRule converts a proposal into a PROPOSED BusinessRule, ready for
// persistence.
func (p Proposal) ToBusinessRule() model.BusinessRule {
	return model.BusinessRule{
		ID:                    p.ID,
		Text:                  fmt.Sprintf("%s: %s", p.Description, p.CodeSnippet),
		Category:              p.Category,
		Status:                model.RuleProposed,
		SourceChunkID:         p.SourceChunkID,
		SourceFile:            p.FilePath,
		SourceSymbol:          p.SymbolName,
		SourceLineStart:       &p.Line,
		InterpretationContext: p.Context,
		Confidence:            p.Confidence,
		Tags:                  []string{string(p.Category)},
	}
}
