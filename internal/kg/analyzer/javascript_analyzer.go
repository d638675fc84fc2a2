package analyzer

import (
	"regexp"
	"strings"
)

// JavaScriptAnalyzer covers JS/JSX/TS/TSX via brace-counting regex scanning,
// grounded on the teacher's chunkJavaScriptCode
// (internal/indexer/chunker.go).
type JavaScriptAnalyzer struct{}

func NewJavaScriptAnalyzer() *JavaScriptAnalyzer { return &JavaScriptAnalyzer{} }

func (j *JavaScriptAnalyzer) Language() string { return "javascript" }
func (j *JavaScriptAnalyzer) Extensions() []string {
	return []string{".js", ".jsx", ".ts", ".tsx"}
}

var (
	jsFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)\s*\(|^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\([^)]*\)\s*(?::\s*[\w<>\[\],\s]+)?\s*=>`)
	jsClassRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+(\w+)(?:\s+extends\s+(\w+))?`)
	jsImportRe = regexp.MustCompile(`^\s*import\s+.*from\s+['"]([^'"]+)['"]|^\s*(?:const|let|var)\s+.*=\s*require\(['"]([^'"]+)['"]\)`)
)

func (j *JavaScriptAnalyzer) AnalyzeFile(path, content string) (FileAnalysis, error) {
	lines := strings.Split(content, "\n")
	var analysis FileAnalysis

	braceDepth := 0
	type openBlock struct {
		kind       string
		name       string
		extends    string
		start      int
		closeDepth int
	}
	var stack []openBlock

	for i, line := range lines {
		lineNum := i + 1

		if m := jsImportRe.FindStringSubmatch(line); m != nil {
			p := m[1]
			if p == "" {
				p = m[2]
			}
			analysis.Imports = append(analysis.Imports, ImportInfo{Path: p, Line: lineNum})
		}

		opened := 0
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			stack = append(stack, openBlock{kind: "function", name: name, start: lineNum, closeDepth: braceDepth})
			if strings.ToLower(name) == "handler" || strings.Contains(strings.ToLower(name), "handler") || isEntryPointName(name) {
				analysis.EntryPoints = append(analysis.EntryPoints, name)
			}
		} else if m := jsClassRe.FindStringSubmatch(line); m != nil {
			stack = append(stack, openBlock{kind: "class", name: m[1], extends: m[2], start: lineNum, closeDepth: braceDepth})
		}

		opened += strings.Count(line, "{")
		closed := strings.Count(line, "}")
		braceDepth += opened - closed

		for len(stack) > 0 && braceDepth <= stack[len(stack)-1].closeDepth && lineNum > stack[len(stack)-1].start {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if b.kind == "function" {
				analysis.Functions = append(analysis.Functions, FunctionInfo{
					Name: b.name, LineStart: b.start, LineEnd: lineNum,
				})
			} else {
				var bases []string
				if b.extends != "" {
					bases = []string{b.extends}
				}
				analysis.Classes = append(analysis.Classes, ClassInfo{
					Name: b.name, LineStart: b.start, LineEnd: lineNum, Bases: bases,
				})
			}
		}
	}

	// Any still-open blocks run to EOF.
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b.kind == "function" {
			analysis.Functions = append(analysis.Functions, FunctionInfo{Name: b.name, LineStart: b.start, LineEnd: len(lines)})
		} else {
			analysis.Classes = append(analysis.Classes, ClassInfo{Name: b.name, LineStart: b.start, LineEnd: len(lines)})
		}
	}

	return analysis, nil
}
