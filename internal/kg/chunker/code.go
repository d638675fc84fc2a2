package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// CodeChunker walks a project tree and emits SOURCE_FILE/CONFIG/METADATA/TEST
// chunks, plus FUNCTION and CLASS chunks for source files the registry can
// analyze (§4.3). Grounded on the teacher's indexer.CodeChunker, reworked
// from embedding-oriented text chunks onto the typed knowledge-chunk model.
type CodeChunker struct {
	registry *analyzer.Registry
}

// NewCodeChunker builds a CodeChunker backed by registry.
func NewCodeChunker(registry *analyzer.Registry) *CodeChunker {
	return &CodeChunker{registry: registry}
}

// ChunkProject walks root and returns every chunk derivable from its files.
func (c *CodeChunker) ChunkProject(ctx context.Context, root string) ([]model.KnowledgeChunk, error) {
	var chunks []model.KnowledgeChunk
	err := WalkSourceFiles(ctx, root, func(relPath string) error {
		fileChunks, err := c.ChunkFile(root, relPath)
		if err != nil {
			return nil // unreadable file: skip, don't fail the whole walk
		}
		chunks = append(chunks, fileChunks...)
		return nil
	})
	return chunks, err
}

// ChunkFile extracts all chunks from a single project-relative file.
func (c *CodeChunker) ChunkFile(root, relPath string) ([]model.KnowledgeChunk, error) {
	content, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	text := string(content)

	chunkType := ClassifyFile(relPath)
	feature := InferFeature(relPath)

	chunks := []model.KnowledgeChunk{c.sourceFileChunk(relPath, text, chunkType, feature)}

	if chunkType == model.ChunkSourceFile {
		analysis, err := c.registry.Analyze(relPath, text)
		if err == nil {
			lines := strings.Split(text, "\n")
			for _, fn := range analysis.Functions {
				chunks = append(chunks, c.functionChunk(relPath, lines, fn, feature))
			}
			for _, cls := range analysis.Classes {
				chunks = append(chunks, c.classChunk(relPath, lines, cls, feature))
			}
		}
	}

	return chunks, nil
}

func (c *CodeChunker) sourceFileChunk(relPath, content string, chunkType model.ChunkType, feature *string) model.KnowledgeChunk {
	lines := strings.Split(content, "\n")
	lineCount := len(lines)

	compressed := content
	if lineCount > 50 {
		compressed = strings.Join(lines[:50], "\n") + "\n# ... (truncated)"
	}

	var tags []string
	switch chunkType {
	case model.ChunkTest:
		tags = append(tags, "test")
	case model.ChunkConfig:
		tags = append(tags, "config")
	case model.ChunkMetadata:
		tags = append(tags, "metadata")
	}
	if a, ok := c.registry.For(relPath); ok {
		tags = append(tags, a.Language())
	}

	lineStart, lineEnd := 1, lineCount
	compressedStr := compressed
	path := relPath
	return model.KnowledgeChunk{
		ID:                   relPath,
		ChunkType:            chunkType,
		Content:              content,
		ContentCompressed:    &compressedStr,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(compressed),
		FilePath:             &path,
		LineStart:            &lineStart,
		LineEnd:              &lineEnd,
		Feature:              feature,
		Source:               model.SourceAuto,
		Confidence:           1.0,
		Tags:                 tags,
	}
}

func (c *CodeChunker) functionChunk(relPath string, lines []string, fn analyzer.FunctionInfo, feature *string) model.KnowledgeChunk {
	content := sliceLines(lines, fn.LineStart, fn.LineEnd)

	compressed := fn.Signature
	if fn.Docstring != "" {
		compressed += fmt.Sprintf("\n    \"\"\"%s\"\"\"", fn.Docstring)
	}
	compressed += "\n    ..."

	tags := []string{"function"}
	id := fmt.Sprintf("%s:%s", relPath, fn.Name)
	if fn.Receiver != "" {
		id = fmt.Sprintf("%s:%s.%s", relPath, fn.Receiver, fn.Name)
		tags = append(tags, "method")
	}

	path := relPath
	sig := fn.Signature
	doc := fn.Docstring
	sym := fn.Name
	lineStart, lineEnd := fn.LineStart, fn.LineEnd

	extra := map[string]any{
		"calls":       fn.Calls,
		"parameters":  fn.Params,
		"return_type": fn.ReturnType,
		"receiver":    fn.Receiver,
	}

	chunk := model.KnowledgeChunk{
		ID:                   id,
		ChunkType:            model.ChunkFunction,
		Content:              content,
		ContentCompressed:    &compressed,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(compressed),
		FilePath:             &path,
		LineStart:            &lineStart,
		LineEnd:              &lineEnd,
		SymbolName:           &sym,
		Signature:            &sig,
		Feature:              feature,
		Source:               model.SourceAuto,
		Confidence:           1.0,
		Tags:                 tags,
		Extra:                extra,
	}
	if doc != "" {
		chunk.Docstring = &doc
	}
	return chunk
}

func (c *CodeChunker) classChunk(relPath string, lines []string, cls analyzer.ClassInfo, feature *string) model.KnowledgeChunk {
	content := sliceLines(lines, cls.LineStart, cls.LineEnd)

	sigLine := content
	if idx := strings.Index(content, "\n"); idx >= 0 {
		sigLine = content[:idx]
	}

	compressed := sigLine
	if cls.Docstring != "" {
		compressed += fmt.Sprintf("\n    \"\"\"%s\"\"\"", cls.Docstring)
	}
	if len(cls.Methods) > 0 {
		shown := cls.Methods
		suffix := ""
		if len(shown) > 10 {
			suffix = fmt.Sprintf(", ... (+%d more)", len(shown)-10)
			shown = shown[:10]
		}
		compressed += fmt.Sprintf("\n    # Methods: %s%s", strings.Join(shown, ", "), suffix)
	}
	compressed += "\n    ..."

	tags := []string{"class"}
	if len(cls.Bases) > 0 {
		tags = append(tags, "extends")
	}

	path := relPath
	sig := sigLine
	doc := cls.Docstring
	sym := cls.Name
	lineStart, lineEnd := cls.LineStart, cls.LineEnd

	chunk := model.KnowledgeChunk{
		ID:                   fmt.Sprintf("%s:class:%s", relPath, cls.Name),
		ChunkType:            model.ChunkClass,
		Content:              content,
		ContentCompressed:    &compressed,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(compressed),
		FilePath:             &path,
		LineStart:            &lineStart,
		LineEnd:              &lineEnd,
		SymbolName:           &sym,
		Signature:            &sig,
		Feature:              feature,
		Source:               model.SourceAuto,
		Confidence:           1.0,
		Tags:                 tags,
		Extra: map[string]any{
			"base_classes": cls.Bases,
			"methods":      cls.Methods,
		},
	}
	if doc != "" {
		chunk.Docstring = &doc
	}
	return chunk
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
