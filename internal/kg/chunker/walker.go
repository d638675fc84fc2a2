// Package chunker extracts KnowledgeChunks from a project tree: source
// files, contracts, config/metadata, git history, and point-in-time
// snapshots (spec §4.3). Grounded on the teacher's internal/indexer
// (walker.go, chunker.go) generalized from a document/embedding pipeline to
// the typed chunk model of this package.
package chunker

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/validation"
)

// skipDirs is the fixed ignore-directory set (§4.3); any hidden directory
// (dotfile-style name) is skipped in addition to these.
var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true, ".venv": true,
	"venv": true, ".tox": true, ".pytest_cache": true, ".mypy_cache": true,
	"dist": true, "build": true, ".next": true, ".nuxt": true,
	"coverage": true, ".claude": true,
}

// skipExtensions are binary/non-text extensions the walker never reads
// content for (§4.3).
var skipExtensions = map[string]bool{
	".pyc": true, ".pyo": true, ".so": true, ".dll": true, ".exe": true, ".bin": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".svg": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
}

// WalkSourceFiles visits every non-ignored, non-binary file under root and
// invokes fn with its path relative to root (forward-slash normalized).
func WalkSourceFiles(ctx context.Context, root string, fn func(relPath string) error) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if skipExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if err := validation.IsPathSafe(relPath); err != nil {
			return nil // unsafe paths are silently skipped, not fatal to the walk
		}

		return fn(relPath)
	})
}
