// Package render converts a ContextBundle into the markdown contract
// defined by §6.2, ported line-for-line in structure from
// original_source's KnowledgeGraphBundle.to_markdown: header block,
// optional omission report, content grouped by TypeOrder, and a trailing
// available-expansions section.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/compress"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// Markdown renders bundle per §6.2's contract.
func Markdown(bundle model.ContextBundle) string {
	var b strings.Builder

	writeHeader(&b, bundle)

	if len(bundle.OmittedChunks) > 0 {
		writeOmissionReport(&b, bundle)
	}

	b.WriteString("---\n## Content\n\n")
	writeContentByType(&b, bundle)

	if len(bundle.AvailableExpansions) > 0 {
		writeExpansions(&b, bundle)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, bundle model.ContextBundle) {
	fmt.Fprintf(b, "# Context Bundle\n")
	fmt.Fprintf(b, "**Task**: %s\n", bundle.Task)
	fmt.Fprintf(b, "**Tokens Used**: %d / %d\n", bundle.TotalTokens, bundle.TokenBudget)
	fmt.Fprintf(b, "**Chunks Loaded**: %d\n", len(bundle.Chunks))
	fmt.Fprintf(b, "**Chunks Omitted**: %d\n\n", len(bundle.OmittedChunks))
}

func writeOmissionReport(b *strings.Builder, bundle model.ContextBundle) {
	b.WriteString("## Omission Report\n")
	fmt.Fprintf(b, "*%s*\n\n", bundle.OmissionSummary)

	if len(bundle.OmissionByType) > 0 {
		b.WriteString("**By Type:**\n")
		types := make([]string, 0, len(bundle.OmissionByType))
		for t := range bundle.OmissionByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(b, "- %s: %d\n", t, bundle.OmissionByType[model.ChunkType(t)])
		}
		b.WriteString("\n")
	}

	if len(bundle.OmissionByReason) > 0 {
		b.WriteString("**By Reason:**\n")
		reasons := make([]string, 0, len(bundle.OmissionByReason))
		for r := range bundle.OmissionByReason {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(b, "- %s: %d\n", r, bundle.OmissionByReason[model.OmissionReason(r)])
		}
		b.WriteString("\n")
	}

	var expandable []model.OmittedChunk
	for _, o := range bundle.OmittedChunks {
		if o.CanExpand {
			expandable = append(expandable, o)
		}
		if len(expandable) == 5 {
			break
		}
	}
	if len(expandable) > 0 {
		b.WriteString("**Available for Expansion** (use `kg.expand`):\n")
		for _, o := range expandable {
			fmt.Fprintf(b, "- `%s` (%d tokens, %s)\n", o.ID, o.TokenCount, o.Reason)
		}
		b.WriteString("\n")
	}
}

func writeContentByType(b *strings.Builder, bundle model.ContextBundle) {
	byType := map[model.ChunkType][]model.KnowledgeChunk{}
	for _, c := range bundle.Chunks {
		byType[c.ChunkType] = append(byType[c.ChunkType], c)
	}

	for _, t := range model.TypeOrder {
		chunks := byType[t]
		if len(chunks) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s (%d)\n\n", strings.ToUpper(string(t)), len(chunks))
		for _, c := range chunks {
			writeChunk(b, c, bundle.CompressionLevel)
		}
	}
}

func writeChunk(b *strings.Builder, c model.KnowledgeChunk, level model.CompressionLevel) {
	header := fmt.Sprintf("#### `%s`", c.ID)
	if c.SymbolName != nil && *c.SymbolName != "" {
		header += fmt.Sprintf(" - %s", *c.SymbolName)
	}
	b.WriteString(header)
	b.WriteString("\n")

	if c.FilePath != nil && *c.FilePath != "" && c.LineStart != nil {
		lineEnd := 0
		if c.LineEnd != nil {
			lineEnd = *c.LineEnd
		}
		fmt.Fprintf(b, "*%s:%d-%d*\n", *c.FilePath, *c.LineStart, lineEnd)
	}

	b.WriteString("\n```\n")
	b.WriteString(compress.Content(c, level))
	b.WriteString("\n```\n\n")
}

func writeExpansions(b *strings.Builder, bundle model.ContextBundle) {
	b.WriteString("---\n## Available Expansions\n\n")
	sorted := make([]model.ExpansionOption, len(bundle.AvailableExpansions))
	copy(sorted, bundle.AvailableExpansions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	for _, exp := range sorted {
		fmt.Fprintf(b, "- **%s** for `%s`: %s (+%d tokens)\n",
			exp.ExpansionType, exp.ChunkID, exp.Description, exp.TokenCost)
	}
	b.WriteString("\n")
}
