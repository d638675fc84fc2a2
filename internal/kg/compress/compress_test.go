package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

func strPtr(s string) *string { return &s }

func TestCost_Monotonicity(t *testing.T) {
	chunk := model.KnowledgeChunk{
		Content:              "some content of meaningful length here",
		TokenCount:           100,
		TokenCountCompressed: 10,
	}

	full := Cost(chunk, model.Full)
	noComments := Cost(chunk, model.NoComments)
	sigDoc := Cost(chunk, model.SignatureDocstring)
	sigOnly := Cost(chunk, model.SignatureOnly)

	assert.GreaterOrEqual(t, full, noComments)
	assert.GreaterOrEqual(t, noComments, sigDoc)
	assert.GreaterOrEqual(t, sigDoc, sigOnly)
	assert.GreaterOrEqual(t, sigOnly, 0)
}

func TestContent_FullReturnsOriginal(t *testing.T) {
	chunk := model.KnowledgeChunk{Content: "line one\nline two"}
	assert.Equal(t, "line one\nline two", Content(chunk, model.Full))
}

func TestContent_SignatureOnlyUsesSignatureField(t *testing.T) {
	chunk := model.KnowledgeChunk{
		Content:   "func Foo() {\n  return\n}",
		Signature: strPtr("func Foo()"),
	}
	got := Content(chunk, model.SignatureOnly)
	assert.Contains(t, got, "func Foo()")
	assert.Contains(t, got, "...")
}

func TestStripComments_PythonPreservesDocstring(t *testing.T) {
	src := "def f():\n    \"\"\"doc\"\"\"\n    # not kept\n    return 1\n"
	out := StripComments(src, "python")
	assert.Contains(t, out, `"""doc"""`)
	assert.NotContains(t, out, "# not kept")
}

func TestStripComments_JSKeepsJSDocStripsBlock(t *testing.T) {
	src := "/** keep me */\nfunction f() {\n  /* drop me */\n  return 1; // also drop\n}\n"
	out := StripComments(src, "javascript")
	assert.Contains(t, out, "/** keep me */")
	assert.NotContains(t, out, "drop me")
	assert.NotContains(t, out, "also drop")
}

func TestLanguage_DetectsFromExtension(t *testing.T) {
	path := "a/b.rs"
	chunk := model.KnowledgeChunk{FilePath: &path}
	assert.Equal(t, "rust", Language(chunk))
}

func TestLanguage_FallsBackToTag(t *testing.T) {
	chunk := model.KnowledgeChunk{Tags: []string{"rust"}}
	assert.Equal(t, "rust", Language(chunk))
}

func TestLanguage_UnknownWhenNoHint(t *testing.T) {
	chunk := model.KnowledgeChunk{}
	assert.Equal(t, "unknown", Language(chunk))
}
