package chunker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// ConfigChunker extracts CONFIG/METADATA chunks for files the code chunker
// already classified as such, producing a compact compressed summary
// instead of a 50-line truncation (§4.3).
type ConfigChunker struct{}

// NewConfigChunker builds a ConfigChunker.
func NewConfigChunker() *ConfigChunker { return &ConfigChunker{} }

// ChunkConfig reads relPath under root and builds a CONFIG or METADATA
// chunk for it with the given classification.
func (c *ConfigChunker) ChunkConfig(root, relPath string, chunkType model.ChunkType) (model.KnowledgeChunk, error) {
	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return model.KnowledgeChunk{}, fmt.Errorf("read %s: %w", relPath, err)
	}
	content := string(data)
	name := filepath.Base(relPath)
	compressed := configSummary(content, name)

	path := relPath
	sym := name
	lineCount := len(strings.Split(content, "\n"))
	lineStart, lineEnd := 1, lineCount

	tag := "metadata"
	if chunkType == model.ChunkConfig {
		tag = "config"
	}

	return model.KnowledgeChunk{
		ID:                   "config:" + relPath,
		ChunkType:            chunkType,
		Content:              content,
		ContentCompressed:    &compressed,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(compressed),
		FilePath:             &path,
		LineStart:            &lineStart,
		LineEnd:              &lineEnd,
		SymbolName:           &sym,
		Source:               model.SourceAuto,
		Confidence:           1.0,
		Tags:                 []string{tag},
	}, nil
}

// configSummary builds the compressed form: for package.json a JSON summary
// of {name, version, first 10 dependency/devDependency names in sorted
// order}; otherwise the
// file's first 20 lines (§4.3).
func configSummary(content, fileName string) string {
	if fileName == "package.json" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(content), &raw); err == nil {
			summary := map[string]any{
				"name":            raw["name"],
				"version":         raw["version"],
				"dependencies":    topKeys(raw["dependencies"], 10),
				"devDependencies": topKeys(raw["devDependencies"], 10),
			}
			if out, err := json.MarshalIndent(summary, "", "  "); err == nil {
				return string(out)
			}
		}
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	return strings.Join(lines, "\n")
}

func topKeys(v any, n int) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
