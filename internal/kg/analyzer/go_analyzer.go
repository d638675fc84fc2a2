package analyzer

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// GoAnalyzer extracts functions, types, and imports from Go source using the
// standard library AST toolkit, the same approach the teacher applies in its
// own code chunker (internal/indexer/chunker.go#chunkGoCode).
type GoAnalyzer struct{}

func NewGoAnalyzer() *GoAnalyzer { return &GoAnalyzer{} }

func (g *GoAnalyzer) Language() string     { return "go" }
func (g *GoAnalyzer) Extensions() []string { return []string{".go"} }

func (g *GoAnalyzer) AnalyzeFile(path, content string) (FileAnalysis, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return FileAnalysis{Errors: []string{err.Error()}}, nil
	}

	var analysis FileAnalysis
	lines := strings.Split(content, "\n")

	for _, imp := range file.Imports {
		p := strings.Trim(imp.Path.Value, `"`)
		analysis.Imports = append(analysis.Imports, ImportInfo{
			Path: p,
			Line: fset.Position(imp.Pos()).Line,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			fn := functionInfoFromDecl(d, fset, lines)
			analysis.Functions = append(analysis.Functions, fn)
			if fn.Receiver == "" && (isEntryPointName(fn.Name) || hasGuardedMain(d)) {
				analysis.EntryPoints = append(analysis.EntryPoints, fn.Name)
			}
			if fn.Receiver == "" && ast.IsExported(fn.Name) {
				analysis.Exports = append(analysis.Exports, fn.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				analysis.TypeNames = append(analysis.TypeNames, ts.Name.Name)
				if _, ok := ts.Type.(*ast.StructType); ok {
					analysis.Classes = append(analysis.Classes, classInfoFromTypeSpec(ts, d, fset, lines))
				}
				if ast.IsExported(ts.Name.Name) {
					analysis.Exports = append(analysis.Exports, ts.Name.Name)
				}
			}
		}
	}

	// Attach methods to their receiver struct, matching §3.1's "classes
	// carry methods" extension.
	methodsByReceiver := map[string][]string{}
	for _, fn := range analysis.Functions {
		if fn.Receiver != "" {
			methodsByReceiver[fn.Receiver] = append(methodsByReceiver[fn.Receiver], fn.Name)
		}
	}
	for i := range analysis.Classes {
		analysis.Classes[i].Methods = methodsByReceiver[analysis.Classes[i].Name]
	}

	return analysis, nil
}

func functionInfoFromDecl(fn *ast.FuncDecl, fset *token.FileSet, lines []string) FunctionInfo {
	start := fset.Position(fn.Pos())
	end := fset.Position(fn.End())

	receiver := ""
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		receiver = receiverTypeName(fn.Recv.List[0].Type)
	}

	var params []string
	if fn.Type.Params != nil {
		for _, p := range fn.Type.Params.List {
			for _, n := range p.Names {
				params = append(params, n.Name)
			}
		}
	}

	signature := signatureLine(fn, start.Line, lines)
	doc := ""
	if fn.Doc != nil {
		doc = strings.TrimSpace(fn.Doc.Text())
	}

	return FunctionInfo{
		Name:      fn.Name.Name,
		Receiver:  receiver,
		LineStart: start.Line,
		LineEnd:   end.Line,
		Signature: signature,
		Docstring: doc,
		Calls:     collectCalls(fn),
		Params:    params,
	}
}

func classInfoFromTypeSpec(ts *ast.TypeSpec, d *ast.GenDecl, fset *token.FileSet, lines []string) ClassInfo {
	start := fset.Position(ts.Pos())
	end := fset.Position(ts.End())
	doc := ""
	if d.Doc != nil {
		doc = strings.TrimSpace(d.Doc.Text())
	} else if ts.Doc != nil {
		doc = strings.TrimSpace(ts.Doc.Text())
	}
	var bases []string
	if st, ok := ts.Type.(*ast.StructType); ok {
		for _, f := range st.Fields.List {
			if len(f.Names) == 0 { // embedded field -> Go's analogue of inheritance
				bases = append(bases, receiverTypeName(f.Type))
			}
		}
	}
	return ClassInfo{
		Name:      ts.Name.Name,
		LineStart: start.Line,
		LineEnd:   end.Line,
		Bases:     bases,
		Docstring: doc,
	}
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return t.Sel.Name
	default:
		return ""
	}
}

func signatureLine(fn *ast.FuncDecl, startLine int, lines []string) string {
	if startLine-1 < 0 || startLine-1 >= len(lines) {
		return fn.Name.Name
	}
	line := lines[startLine-1]
	if idx := strings.Index(line, "{"); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return strings.TrimSpace(line)
}

func collectCalls(fn *ast.FuncDecl) []string {
	var calls []string
	seen := map[string]bool{}
	ast.Inspect(fn, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		name := ""
		switch fexpr := call.Fun.(type) {
		case *ast.Ident:
			name = fexpr.Name
		case *ast.SelectorExpr:
			name = fexpr.Sel.Name
		}
		if name != "" && !seen[name] {
			seen[name] = true
			calls = append(calls, name)
		}
		return true
	})
	return calls
}

// hasGuardedMain reports whether fn looks like a guarded program entry
// point: a top-level func named "main" that has a body.
func hasGuardedMain(fn *ast.FuncDecl) bool {
	return fn.Recv == nil && fn.Name.Name == "main" && fn.Body != nil
}
