package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoAnalyzer_FunctionsAndCalls(t *testing.T) {
	src := `package login

func validatePassword(pwd string) bool {
	return len(pwd) > 8
}

func Authenticate(user, pwd string) bool {
	return validatePassword(pwd)
}
`
	a := NewGoAnalyzer()
	res, err := a.AnalyzeFile("login.go", src)
	require.NoError(t, err)
	require.Len(t, res.Functions, 2)
	assert.Equal(t, "validatePassword", res.Functions[0].Name)
	assert.Equal(t, "Authenticate", res.Functions[1].Name)
	assert.Contains(t, res.Functions[1].Calls, "validatePassword")
	assert.Contains(t, res.Exports, "Authenticate")
}

func TestGoAnalyzer_EntryPoint(t *testing.T) {
	src := `package main

func main() {
	run()
}

func run() {}
`
	a := NewGoAnalyzer()
	res, err := a.AnalyzeFile("main.go", src)
	require.NoError(t, err)
	assert.Contains(t, res.EntryPoints, "main")
}

func TestGoAnalyzer_StructEmbeddingAsBases(t *testing.T) {
	src := `package x

type Base struct{}

type Derived struct {
	Base
	Name string
}

func (d *Derived) Greet() string { return d.Name }
`
	a := NewGoAnalyzer()
	res, err := a.AnalyzeFile("x.go", src)
	require.NoError(t, err)
	require.Len(t, res.Classes, 2)
	derived := res.Classes[1]
	assert.Equal(t, "Derived", derived.Name)
	assert.Contains(t, derived.Bases, "Base")
	assert.Contains(t, derived.Methods, "Greet")
}

func TestPythonAnalyzer_FunctionAndClass(t *testing.T) {
	src := "import os\n" +
		"def authenticate(user, pwd):\n" +
		"    return validate_password(pwd)\n" +
		"\n" +
		"class Account:\n" +
		"    def deposit(self, amount):\n" +
		"        pass\n"
	a := NewPythonAnalyzer()
	res, err := a.AnalyzeFile("login.py", src)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Functions)
	assert.NotEmpty(t, res.Imports)
	assert.Equal(t, "os", res.Imports[0].Path)
}

func TestJavaScriptAnalyzer_ArrowFunctionAndClass(t *testing.T) {
	src := `import { z } from './z';

export const handler = (event) => {
  return z(event);
};

class Widget extends Base {
  render() {}
}
`
	a := NewJavaScriptAnalyzer()
	res, err := a.AnalyzeFile("widget.ts", src)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Functions)
	assert.NotEmpty(t, res.Classes)
	assert.Contains(t, res.EntryPoints, "handler")
	assert.Equal(t, "./z", res.Imports[0].Path)
}

func TestRegistry_SelectsByExtension(t *testing.T) {
	r := NewRegistry()
	a, ok := r.For("pkg/foo.go")
	require.True(t, ok)
	assert.Equal(t, "go", a.Language())

	_, ok = r.For("pkg/unknown.xyz")
	assert.False(t, ok)
}
