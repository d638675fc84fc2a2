// Package analyzer implements the language analyzer registry (spec §4.2): a
// polymorphic capability set over {functions, classes, imports, exports,
// types, entry points} keyed by source file extension.
package analyzer

import (
	"path/filepath"
	"strings"
)

// FunctionInfo describes one discovered function or method.
type FunctionInfo struct {
	Name       string
	Receiver   string // non-empty for methods
	LineStart  int
	LineEnd    int
	Signature  string
	Docstring  string
	Calls      []string
	Params     []string
	ReturnType string
}

// ClassInfo describes one discovered class, struct, or interface.
type ClassInfo struct {
	Name      string
	LineStart int
	LineEnd   int
	Bases     []string
	Methods   []string
	Docstring string
}

// ImportInfo describes one import/require/use statement.
type ImportInfo struct {
	Path string
	Line int
}

// FileAnalysis is the result of analyzing one source file (§4.2).
type FileAnalysis struct {
	Functions   []FunctionInfo
	Classes     []ClassInfo
	Imports     []ImportInfo
	Exports     []string
	TypeNames   []string
	EntryPoints []string
	Errors      []string // non-fatal parse diagnostics
}

// commonEntryPointNames are symbol names that, when present at top level,
// mark a file as an entry point candidate (§4.2).
var commonEntryPointNames = map[string]bool{
	"main": true, "run": true, "start": true, "handler": true,
	"app": true, "cli": true, "server": true, "default": true,
}

// Analyzer is the capability set a language plug-in exposes to the registry.
type Analyzer interface {
	Language() string
	Extensions() []string
	AnalyzeFile(path string, content string) (FileAnalysis, error)
}

// Registry selects an Analyzer by file extension.
type Registry struct {
	byExt map[string]Analyzer
}

// NewRegistry builds a registry pre-populated with the bundled analyzers.
func NewRegistry() *Registry {
	r := &Registry{byExt: map[string]Analyzer{}}
	r.Register(NewGoAnalyzer())
	r.Register(NewPythonAnalyzer())
	r.Register(NewJavaScriptAnalyzer())
	r.Register(NewRustAnalyzer())
	return r
}

// Register adds (or replaces) an analyzer for all of its extensions.
func (r *Registry) Register(a Analyzer) {
	for _, ext := range a.Extensions() {
		r.byExt[strings.ToLower(ext)] = a
	}
}

// For returns the analyzer registered for path's extension, if any. Files
// without a registered analyzer still yield a SOURCE_FILE chunk but no
// FUNCTION/CLASS chunks, per §4.2.
func (r *Registry) For(path string) (Analyzer, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	a, ok := r.byExt[ext]
	return a, ok
}

// Analyze resolves the analyzer for path and runs it; the zero value and a
// nil error are returned when no analyzer recognizes path's extension.
func (r *Registry) Analyze(path, content string) (FileAnalysis, error) {
	a, ok := r.For(path)
	if !ok {
		return FileAnalysis{}, nil
	}
	return a.AnalyzeFile(path, content)
}

func isEntryPointName(name string) bool {
	return commonEntryPointNames[strings.ToLower(name)]
}
