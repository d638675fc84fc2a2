// Package graphbuild implements the graph builder (§4.5): full and
// incremental build modes, and the pure edge-derivation pass run over an
// in-memory chunk set. Grounded on the teacher's internal/indexer/controller.go
// for build orchestration shape (status tracking, serialized start/stop);
// edge derivation itself has no teacher analogue and is written directly
// from the spec's derivation-rule table and original_source's graph builder.
package graphbuild

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// testNameRe maps a test file's relative path to the source path it is
// inferred to cover (§4.5 TESTED_BY by naming).
var testNameRe = []struct {
	re       *regexp.Regexp
	sourceOf func(match []string, dir string) string
}{
	{
		re: regexp.MustCompile(`^(.*/)?test_([^/]+)\.py$`),
		sourceOf: func(m []string, dir string) string {
			return joinDir(m[1], m[2]+".py")
		},
	},
	{
		re: regexp.MustCompile(`^(.*/)?([^/]+)_test\.py$`),
		sourceOf: func(m []string, dir string) string {
			return joinDir(m[1], m[2]+".py")
		},
	},
	{
		re: regexp.MustCompile(`^(.*/)?([^/]+)\.(test|spec)\.(ts|tsx|js|jsx)$`),
		sourceOf: func(m []string, dir string) string {
			return joinDir(m[1], m[2]+"."+m[4])
		},
	},
}

func joinDir(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + file
}

// extraStrings reads a []string-shaped Extra field. A freshly chunked chunk
// carries the concrete []string set by the chunker; a chunk read back from
// storage has gone through a JSON round-trip and carries []interface{} of
// strings instead, so both shapes must be accepted.
func extraStrings(extra map[string]any, key string) []string {
	switch v := extra[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// extraMaps reads a []map[string]any-shaped Extra field, same round-trip
// concern as extraStrings: storage-loaded chunks carry []interface{} of
// map[string]interface{} rather than the concrete slice the chunker built.
func extraMaps(extra map[string]any, key string) []map[string]any {
	switch v := extra[key].(type) {
	case []map[string]any:
		return v
	case []interface{}:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// extraStringPtr reads a *string-shaped Extra field. The chunker sets the
// concrete *string; after a storage round-trip json.Unmarshal decodes it as
// a plain string instead.
func extraStringPtr(extra map[string]any, key string) *string {
	switch v := extra[key].(type) {
	case *string:
		return v
	case string:
		return &v
	default:
		return nil
	}
}

// Derive runs every edge-derivation rule in §4.5's table over chunks,
// returning the full edge set. Both full and incremental builds call this
// over the complete chunk list; incremental build then filters the result to
// edges touching a changed id.
func Derive(chunks []model.KnowledgeChunk, registry *analyzer.Registry) []model.ChunkEdge {
	var edges []model.ChunkEdge

	byID := make(map[string]model.KnowledgeChunk, len(chunks))
	byFile := make(map[string][]model.KnowledgeChunk)
	funcsByFile := make(map[string][]model.KnowledgeChunk)
	classesByFile := make(map[string][]model.KnowledgeChunk)
	funcsByName := make(map[string][]model.KnowledgeChunk)
	classesByName := make(map[string][]model.KnowledgeChunk)
	var contracts []model.KnowledgeChunk
	var commits []model.KnowledgeChunk
	var snapshots []model.KnowledgeChunk
	sourceFileByPath := make(map[string]model.KnowledgeChunk)

	for _, c := range chunks {
		byID[c.ID] = c
		if c.FilePath != nil {
			byFile[*c.FilePath] = append(byFile[*c.FilePath], c)
		}
		switch c.ChunkType {
		case model.ChunkFunction:
			if c.FilePath != nil {
				funcsByFile[*c.FilePath] = append(funcsByFile[*c.FilePath], c)
			}
			if c.SymbolName != nil {
				funcsByName[*c.SymbolName] = append(funcsByName[*c.SymbolName], c)
			}
		case model.ChunkClass:
			if c.FilePath != nil {
				classesByFile[*c.FilePath] = append(classesByFile[*c.FilePath], c)
			}
			if c.SymbolName != nil {
				classesByName[*c.SymbolName] = append(classesByName[*c.SymbolName], c)
			}
		case model.ChunkContract:
			contracts = append(contracts, c)
		case model.ChunkCommit:
			commits = append(commits, c)
		case model.ChunkSnapshotUser, model.ChunkSnapshotAgent:
			snapshots = append(snapshots, c)
		case model.ChunkSourceFile, model.ChunkTest, model.ChunkConfig, model.ChunkMetadata:
			if c.FilePath != nil {
				sourceFileByPath[*c.FilePath] = c
			}
		}
	}

	edges = append(edges, deriveContains(byFile, funcsByFile, classesByFile)...)
	edges = append(edges, deriveCalls(funcsByFile, funcsByName)...)
	edges = append(edges, deriveImports(sourceFileByPath, registry)...)
	edges = append(edges, deriveTestedByNaming(sourceFileByPath)...)
	edges = append(edges, deriveTestedByImport(sourceFileByPath, registry)...)
	edges = append(edges, deriveImplements(contracts, chunks)...)
	edges = append(edges, deriveInherits(classesByFile, classesByName)...)
	edges = append(edges, deriveModifiedIn(commits, sourceFileByPath)...)
	edges = append(edges, derivePrecededBy(snapshots)...)

	return edges
}

func enclosedByClass(fn, cls model.KnowledgeChunk) bool {
	if fn.LineStart == nil || fn.LineEnd == nil || cls.LineStart == nil || cls.LineEnd == nil {
		return false
	}
	return *fn.LineStart >= *cls.LineStart && *fn.LineEnd <= *cls.LineEnd
}

func deriveContains(byFile, funcsByFile, classesByFile map[string][]model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for file, chunks := range byFile {
		var fileChunk *model.KnowledgeChunk
		for i := range chunks {
			if chunks[i].ChunkType == model.ChunkSourceFile || chunks[i].ChunkType == model.ChunkTest {
				fc := chunks[i]
				fileChunk = &fc
				break
			}
		}
		if fileChunk == nil {
			continue
		}

		classes := classesByFile[file]
		for _, cls := range classes {
			edges = append(edges, model.ChunkEdge{
				SourceID: fileChunk.ID, TargetID: cls.ID, EdgeType: model.EdgeContains, Weight: 1.0,
			})
		}

		for _, fn := range funcsByFile[file] {
			enclosed := false
			var owner model.KnowledgeChunk
			for _, cls := range classes {
				if enclosedByClass(fn, cls) {
					enclosed = true
					owner = cls
					break
				}
			}
			if enclosed {
				edges = append(edges, model.ChunkEdge{
					SourceID: owner.ID, TargetID: fn.ID, EdgeType: model.EdgeContains, Weight: 1.0,
					Metadata: map[string]any{"relationship": "method"},
				})
			} else {
				line := 0
				if fn.LineStart != nil {
					line = *fn.LineStart
				}
				edges = append(edges, model.ChunkEdge{
					SourceID: fileChunk.ID, TargetID: fn.ID, EdgeType: model.EdgeContains, Weight: 1.0,
					Metadata: map[string]any{"line": line},
				})
			}
		}
	}
	return edges
}

func deriveCalls(funcsByFile, funcsByName map[string][]model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for _, fns := range funcsByFile {
		for _, fn := range fns {
			calls := extraStrings(fn.Extra, "calls")
			for _, name := range calls {
				for _, target := range funcsByName[name] {
					if target.ID == fn.ID {
						continue
					}
					edges = append(edges, model.ChunkEdge{
						SourceID: fn.ID, TargetID: target.ID, EdgeType: model.EdgeCalls, Weight: 1.0,
					})
				}
			}
		}
	}
	return edges
}

func deriveImports(sourceFileByPath map[string]model.KnowledgeChunk, registry *analyzer.Registry) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for path, chunk := range sourceFileByPath {
		if chunk.ChunkType != model.ChunkSourceFile && chunk.ChunkType != model.ChunkTest {
			continue
		}
		analysis, err := registry.Analyze(path, chunk.Content)
		if err != nil {
			continue
		}
		for _, imp := range analysis.Imports {
			target := resolveImportPath(path, imp.Path, sourceFileByPath)
			if target == "" || target == path {
				continue
			}
			if targetChunk, ok := sourceFileByPath[target]; ok {
				edges = append(edges, model.ChunkEdge{
					SourceID: chunk.ID, TargetID: targetChunk.ID, EdgeType: model.EdgeImports, Weight: 1.0,
					Metadata: map[string]any{"imported": imp.Path},
				})
			}
		}
	}
	return edges
}

// resolveImportPath normalizes a raw import/require specifier against known
// file paths, trying relative-to-importer resolution with common source
// extensions.
func resolveImportPath(fromPath, importPath string, known map[string]model.KnowledgeChunk) string {
	if !strings.HasPrefix(importPath, ".") {
		return ""
	}
	dir := filepath.Dir(fromPath)
	candidate := filepath.ToSlash(filepath.Join(dir, importPath))

	if _, ok := known[candidate]; ok {
		return candidate
	}
	for _, ext := range []string{".py", ".go", ".ts", ".tsx", ".js", ".jsx", ".rs", ".java"} {
		if _, ok := known[candidate+ext]; ok {
			return candidate + ext
		}
	}
	return ""
}

func deriveTestedByNaming(sourceFileByPath map[string]model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for path, chunk := range sourceFileByPath {
		if chunk.ChunkType != model.ChunkTest {
			continue
		}
		candidates := inferredSourcePaths(path)
		for _, candidate := range candidates {
			if src, ok := sourceFileByPath[candidate]; ok && src.ChunkType != model.ChunkTest {
				edges = append(edges, model.ChunkEdge{
					SourceID: src.ID, TargetID: chunk.ID, EdgeType: model.EdgeTestedBy, Weight: 1.0,
				})
				break
			}
		}
	}
	return edges
}

func inferredSourcePaths(testPath string) []string {
	for _, pat := range testNameRe {
		m := pat.re.FindStringSubmatch(testPath)
		if m != nil {
			return []string{pat.sourceOf(m, filepath.Dir(testPath))}
		}
	}

	if strings.Contains(testPath, "__tests__/") {
		base := filepath.Base(testPath)
		parentDir := filepath.Dir(filepath.Dir(testPath))
		var out []string
		if parentDir != "." {
			out = append(out, filepath.ToSlash(filepath.Join(parentDir, base)))
		}
		return out
	}
	return nil
}

func deriveTestedByImport(sourceFileByPath map[string]model.KnowledgeChunk, registry *analyzer.Registry) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for path, chunk := range sourceFileByPath {
		if chunk.ChunkType != model.ChunkTest {
			continue
		}
		analysis, err := registry.Analyze(path, chunk.Content)
		if err != nil {
			continue
		}
		for _, imp := range analysis.Imports {
			target := resolveImportPath(path, imp.Path, sourceFileByPath)
			if target == "" {
				continue
			}
			src, ok := sourceFileByPath[target]
			if !ok || src.ChunkType == model.ChunkTest {
				continue
			}
			edges = append(edges, model.ChunkEdge{
				SourceID: src.ID, TargetID: chunk.ID, EdgeType: model.EdgeTestedBy, Weight: 0.8,
			})
		}
	}
	return edges
}

func deriveImplements(contracts []model.KnowledgeChunk, chunks []model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for _, contract := range contracts {
		if contract.Feature == nil {
			continue
		}
		for _, c := range chunks {
			if c.ID == contract.ID || c.Feature == nil || *c.Feature != *contract.Feature {
				continue
			}
			switch c.ChunkType {
			case model.ChunkSourceFile, model.ChunkFunction, model.ChunkClass:
				edges = append(edges, model.ChunkEdge{
					SourceID: c.ID, TargetID: contract.ID, EdgeType: model.EdgeImplements, Weight: 1.0,
				})
			}
		}
	}
	return edges
}

func deriveInherits(classesByFile, classesByName map[string][]model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for _, classes := range classesByFile {
		for _, cls := range classes {
			bases := extraStrings(cls.Extra, "base_classes")
			for _, base := range bases {
				name := base
				if idx := strings.LastIndex(base, "."); idx >= 0 {
					name = base[idx+1:]
				}
				for _, target := range classesByName[name] {
					if target.ID == cls.ID {
						continue
					}
					edges = append(edges, model.ChunkEdge{
						SourceID: cls.ID, TargetID: target.ID, EdgeType: model.EdgeInherits, Weight: 1.0,
					})
				}
			}
		}
	}
	return edges
}

func deriveModifiedIn(commits []model.KnowledgeChunk, sourceFileByPath map[string]model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for _, commit := range commits {
		changes := extraMaps(commit.Extra, "files_changed")
		for _, ch := range changes {
			path, _ := ch["path"].(string)
			if path == "" {
				continue
			}
			if src, ok := sourceFileByPath[path]; ok {
				edges = append(edges, model.ChunkEdge{
					SourceID: src.ID, TargetID: commit.ID, EdgeType: model.EdgeModifiedIn, Weight: 1.0,
				})
			}
		}
	}
	return edges
}

func derivePrecededBy(snapshots []model.KnowledgeChunk) []model.ChunkEdge {
	var edges []model.ChunkEdge
	for _, snap := range snapshots {
		prevID := extraStringPtr(snap.Extra, "previous_snapshot_id")
		if prevID == nil || *prevID == "" {
			continue
		}
		edges = append(edges, model.ChunkEdge{
			SourceID: snap.ID, TargetID: "snapshot:" + *prevID, EdgeType: model.EdgePrecededBy, Weight: 1.0,
		})
	}
	return edges
}
