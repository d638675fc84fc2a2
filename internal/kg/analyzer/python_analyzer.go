package analyzer

import (
	"regexp"
	"strings"
)

// PythonAnalyzer extracts functions, classes, and imports with indentation-
// aware regex scanning, grounded on the teacher's chunkPythonCode
// (internal/indexer/chunker.go).
type PythonAnalyzer struct{}

func NewPythonAnalyzer() *PythonAnalyzer { return &PythonAnalyzer{} }

func (p *PythonAnalyzer) Language() string     { return "python" }
func (p *PythonAnalyzer) Extensions() []string { return []string{".py"} }

var (
	pyFuncRe    = regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(([^)]*)\)`)
	pyClassRe   = regexp.MustCompile(`^(\s*)class\s+(\w+)\s*(?:\(([^)]*)\))?`)
	pyImportRe  = regexp.MustCompile(`^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
)

func (p *PythonAnalyzer) AnalyzeFile(path, content string) (FileAnalysis, error) {
	lines := strings.Split(content, "\n")
	var analysis FileAnalysis

	type openBlock struct {
		kind   string // "function" or "class"
		name   string
		indent int
		start  int
		bases  []string
	}
	var stack []openBlock

	closeBlocksDeeperThan := func(indent, endLine int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if b.kind == "function" {
				analysis.Functions = append(analysis.Functions, FunctionInfo{
					Name: b.name, LineStart: b.start, LineEnd: endLine,
					Signature: b.name + "(...)",
				})
				if isEntryPointName(b.name) {
					analysis.EntryPoints = append(analysis.EntryPoints, b.name)
				}
			} else {
				analysis.Classes = append(analysis.Classes, ClassInfo{
					Name: b.name, LineStart: b.start, LineEnd: endLine,
					Bases: b.bases,
				})
			}
		}
	}

	for i, line := range lines {
		lineNum := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := indentWidth(line)

		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			mod := m[1]
			if mod == "" {
				mod = m[2]
			}
			analysis.Imports = append(analysis.Imports, ImportInfo{Path: mod, Line: lineNum})
			continue
		}

		if m := pyFuncRe.FindStringSubmatch(line); m != nil {
			closeBlocksDeeperThan(indent, lineNum-1)
			stack = append(stack, openBlock{kind: "function", name: m[2], indent: indent, start: lineNum})
			continue
		}
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			closeBlocksDeeperThan(indent, lineNum-1)
			var bases []string
			for _, base := range strings.Split(m[3], ",") {
				if base = strings.TrimSpace(base); base != "" {
					bases = append(bases, base)
				}
			}
			// recorded once the class block closes
			stack = append(stack, openBlock{kind: "class", name: m[2], indent: indent, start: lineNum, bases: bases})
			continue
		}
		closeBlocksDeeperThan(indent, lineNum-1)
	}
	closeBlocksDeeperThan(0, len(lines))

	return analysis, nil
}

func indentWidth(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}
