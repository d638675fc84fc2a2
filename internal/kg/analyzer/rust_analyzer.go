package analyzer

import (
	"regexp"
	"strings"
)

// RustAnalyzer covers .rs files. Per spec §4.2: symbol `main` and any symbol
// whose lowercased name contains "handler" are entry points.
type RustAnalyzer struct{}

func NewRustAnalyzer() *RustAnalyzer { return &RustAnalyzer{} }

func (r *RustAnalyzer) Language() string     { return "rust" }
func (r *RustAnalyzer) Extensions() []string { return []string{".rs"} }

var (
	rsFuncRe   = regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)\s*(?:<[^>]*>)?\s*\(`)
	rsStructRe = regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)`)
	rsTraitRe  = regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+(\w+)`)
	rsImplRe   = regexp.MustCompile(`^\s*impl\s*(?:<[^>]*>)?\s*(?:(\w+)\s+for\s+)?(\w+)`)
	rsUseRe    = regexp.MustCompile(`^\s*use\s+([\w:]+)`)
)

func (r *RustAnalyzer) AnalyzeFile(path, content string) (FileAnalysis, error) {
	lines := strings.Split(content, "\n")
	var analysis FileAnalysis

	depth := 0
	type openBlock struct {
		kind       string
		name       string
		base       string
		start      int
		closeDepth int
	}
	var stack []openBlock

	for i, line := range lines {
		lineNum := i + 1

		if m := rsUseRe.FindStringSubmatch(line); m != nil {
			analysis.Imports = append(analysis.Imports, ImportInfo{Path: m[1], Line: lineNum})
		}

		switch {
		case rsFuncRe.MatchString(line):
			m := rsFuncRe.FindStringSubmatch(line)
			stack = append(stack, openBlock{kind: "function", name: m[1], start: lineNum, closeDepth: depth})
		case rsStructRe.MatchString(line):
			m := rsStructRe.FindStringSubmatch(line)
			stack = append(stack, openBlock{kind: "class", name: m[1], start: lineNum, closeDepth: depth})
		case rsTraitRe.MatchString(line):
			m := rsTraitRe.FindStringSubmatch(line)
			stack = append(stack, openBlock{kind: "class", name: m[1], start: lineNum, closeDepth: depth})
		case rsImplRe.MatchString(line):
			m := rsImplRe.FindStringSubmatch(line)
			base, target := m[1], m[2]
			stack = append(stack, openBlock{kind: "class", name: target, base: base, start: lineNum, closeDepth: depth})
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")

		for len(stack) > 0 && depth <= stack[len(stack)-1].closeDepth && lineNum > stack[len(stack)-1].start {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if b.kind == "function" {
				name := b.name
				analysis.Functions = append(analysis.Functions, FunctionInfo{Name: name, LineStart: b.start, LineEnd: lineNum})
				if name == "main" || strings.Contains(strings.ToLower(name), "handler") {
					analysis.EntryPoints = append(analysis.EntryPoints, name)
				}
			} else {
				var bases []string
				if b.base != "" {
					bases = []string{b.base}
				}
				analysis.Classes = append(analysis.Classes, ClassInfo{Name: b.name, LineStart: b.start, LineEnd: lineNum, Bases: bases})
			}
		}
	}
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
