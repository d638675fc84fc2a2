// Package compress implements progressive disclosure over chunk content
// (spec §4.6): FULL, NO_COMMENTS, SIGNATURE_DOCSTRING, SIGNATURE_ONLY.
package compress

import (
	"path/filepath"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// Content renders chunk's content at the requested compression level.
func Content(chunk model.KnowledgeChunk, level model.CompressionLevel) string {
	switch level {
	case model.Full:
		return chunk.Content
	case model.NoComments:
		return StripComments(chunk.Content, Language(chunk))
	case model.SignatureDocstring:
		if chunk.Signature != nil {
			result := *chunk.Signature
			if chunk.Docstring != nil && *chunk.Docstring != "" {
				result += "\n    \"\"\"" + *chunk.Docstring + "\"\"\"\n    ..."
			} else {
				result += "\n    ..."
			}
			return result
		}
		if chunk.ContentCompressed != nil {
			return *chunk.ContentCompressed
		}
		return extractSignatureDocstring(chunk.Content, Language(chunk))
	case model.SignatureOnly:
		if chunk.Signature != nil {
			return *chunk.Signature + "\n    ..."
		}
		return extractSignature(chunk.Content, Language(chunk))
	default:
		return chunk.Content
	}
}

// Cost estimates the token cost of chunk at level, per the monotone table in
// §4.6: FULL >= NO_COMMENTS >= SIGNATURE_DOCSTRING >= SIGNATURE_ONLY.
func Cost(chunk model.KnowledgeChunk, level model.CompressionLevel) int {
	switch level {
	case model.Full:
		return chunk.TokenCount
	case model.NoComments:
		return tokenestimate.Ratio(chunk.TokenCount, 0.8)
	case model.SignatureDocstring:
		if chunk.TokenCountCompressed > 0 {
			return chunk.TokenCountCompressed
		}
		return tokenestimate.Ratio(chunk.TokenCount, 0.3)
	case model.SignatureOnly:
		return tokenestimate.Ratio(chunk.TokenCount, 0.1)
	default:
		return chunk.TokenCount
	}
}

// Language detects a chunk's source language by file extension first,
// falling back to a language-valued tag, then "unknown" (§4.6).
func Language(chunk model.KnowledgeChunk) string {
	if chunk.FilePath != nil && *chunk.FilePath != "" {
		ext := strings.TrimPrefix(filepath.Ext(*chunk.FilePath), ".")
		if lang, ok := extToLang[strings.ToLower(ext)]; ok {
			return lang
		}
	}
	for _, tag := range chunk.Tags {
		switch tag {
		case "python", "javascript", "typescript", "rust", "go", "java", "ruby":
			return tag
		}
	}
	return "unknown"
}

var extToLang = map[string]string{
	"py":  "python",
	"js":  "javascript",
	"jsx": "javascript",
	"ts":  "typescript",
	"tsx": "typescript",
	"rs":  "rust",
	"go":  "go",
	"java": "java",
	"rb":  "ruby",
}
