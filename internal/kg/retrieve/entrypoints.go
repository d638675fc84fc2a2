package retrieve

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// identifierPatterns are the four heuristics used to lift candidate symbol
// names out of a free-text task description (§4.7 P1c), ported from
// original_source's ContextRetriever._extract_symbols_from_task.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-Z][a-z]+[A-Z][a-zA-Z]*)\b`), // PascalCase
	regexp.MustCompile(`\b([a-z]+_[a-z_]+)\b`),            // snake_case
	regexp.MustCompile(`\b([a-z]+[A-Z][a-zA-Z]*)\b`),      // camelCase
	regexp.MustCompile("`([^`]+)`"),                       // backtick-quoted
}

// commonWords filters generic English words the identifier patterns would
// otherwise mistake for symbols (e.g. snake_case matches "for_each" as well
// as plain connective phrasing).
var commonWords = map[string]bool{
	"the": true, "and": true, "for": true, "this": true,
	"that": true, "with": true, "from": true,
}

// filePatterns lift candidate file paths out of a task description (§4.7 P1d).
var filePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([a-zA-Z0-9_/.-]+\.(?:py|ts|js|tsx|jsx|rs|go|java|rb))\b`),
	regexp.MustCompile("`([^`]+\\.[a-zA-Z0-9]+)`"),
}

func extractSymbolsFromTask(task string) []string {
	seen := map[string]bool{}
	var out []string
	for _, re := range identifierPatterns {
		for _, m := range re.FindAllStringSubmatch(task, -1) {
			s := m[1]
			if commonWords[strings.ToLower(s)] || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func extractFilesFromTask(task string) []string {
	seen := map[string]bool{}
	var out []string
	for _, re := range filePatterns {
		for _, m := range re.FindAllStringSubmatch(task, -1) {
			f := m[1]
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// entryPointSources, in the order they are scored (§4.7 P1): explicit
// symbols and files score highest (caller-supplied, exact), inferred
// symbols and files score lower (heuristically lifted from free text).
const (
	sourceDirectSymbol   = "direct_symbol"
	sourceDirectFile     = "direct_file"
	sourceInferredSymbol = "inferred_symbol"
	sourceInferredFile   = "inferred_file"
	sourceBM25           = "bm25"
)

// findEntryPoints implements P1: explicit symbols/files supplied by the
// caller, plus symbols/files heuristically inferred from the task string.
func (r *Retriever) findEntryPoints(ctx context.Context, task string, symbols, files []string) ([]scoredChunk, error) {
	var out []scoredChunk

	for _, symbol := range symbols {
		chunks, err := r.store.SearchSymbol(ctx, symbol, true)
		if err != nil {
			return nil, fmt.Errorf("search symbol %s: %w", symbol, err)
		}
		for _, c := range chunks {
			out = append(out, scoredChunk{chunk: c, score: 10.0, source: sourceDirectSymbol})
		}
	}

	for _, file := range files {
		chunks, err := r.store.GetChunksByFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("get chunks by file %s: %w", file, err)
		}
		for _, c := range chunks {
			out = append(out, scoredChunk{chunk: c, score: 10.0, source: sourceDirectFile})
		}
	}

	for _, symbol := range extractSymbolsFromTask(task) {
		chunks, err := r.store.SearchSymbol(ctx, symbol, false)
		if err != nil {
			return nil, fmt.Errorf("search inferred symbol %s: %w", symbol, err)
		}
		if len(chunks) > 3 {
			chunks = chunks[:3]
		}
		for _, c := range chunks {
			out = append(out, scoredChunk{chunk: c, score: 5.0, source: sourceInferredSymbol})
		}
	}

	for _, file := range extractFilesFromTask(task) {
		chunks, err := r.store.GetChunksByFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("get chunks by inferred file %s: %w", file, err)
		}
		for _, c := range chunks {
			out = append(out, scoredChunk{chunk: c, score: 5.0, source: sourceInferredFile})
		}
	}

	return out, nil
}

// scoredChunk pairs a chunk with its current relevance score and the phase
// that produced (or last raised) it, mirroring original_source's
// ScoredChunk dataclass.
type scoredChunk struct {
	chunk  model.KnowledgeChunk
	score  float64
	source string
}
