package chunker

import (
	"path/filepath"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

var metadataNames = map[string]bool{
	"package.json": true, "pyproject.toml": true, "cargo.toml": true, "go.mod": true,
	"requirements.txt": true, "setup.py": true, "setup.cfg": true, "pom.xml": true,
	"build.gradle": true, "gemfile": true, "composer.json": true,
}

var configPatterns = []string{
	".env*", "*.config.js", "*.config.ts", "*.config.mjs",
	"config.py", "settings.py", "config/*.py", "config/*.json",
	"*.yaml", "*.yml", "*.toml", "*.ini",
}

var testPatterns = []string{
	"test_*.py", "*_test.py", "tests/*.py",
	"*.test.ts", "*.test.js", "*.spec.ts", "*.spec.js",
	"__tests__/*", "test/*", "tests/*",
}

// ClassifyFile applies the precedence order METADATA > CONFIG > TEST >
// SOURCE_FILE (§4.3) to a project-relative path.
func ClassifyFile(relPath string) model.ChunkType {
	name := strings.ToLower(filepath.Base(relPath))

	if metadataNames[name] {
		return model.ChunkMetadata
	}
	for _, p := range configPatterns {
		if matchPattern(relPath, p) || matchPattern(name, p) {
			return model.ChunkConfig
		}
	}
	for _, p := range testPatterns {
		if matchPattern(relPath, p) || matchPattern(name, p) {
			return model.ChunkTest
		}
	}
	return model.ChunkSourceFile
}

func matchPattern(path, pattern string) bool {
	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}
	matched, _ = filepath.Match(pattern, filepath.Base(path))
	return matched
}

// InferFeature derives the feature bucket a file belongs to, following the
// layout conventions in the original project: src/features/X/... -> X,
// src/{core,shared,utils}/... -> that name, impl/X(.ext|/...) -> X,
// contracts/X.contract.md -> X.
func InferFeature(relPath string) *string {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) < 2 {
		return nil
	}

	switch parts[0] {
	case "src":
		if len(parts) >= 3 {
			switch parts[1] {
			case "features":
				return &parts[2]
			case "core", "shared", "utils":
				return &parts[1]
			}
		}
	case "impl":
		if len(parts) == 2 {
			stem := strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
			return &stem
		}
		return &parts[1]
	case "contracts":
		stem := strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
		stem = strings.TrimSuffix(stem, ".contract")
		return &stem
	}
	return nil
}
