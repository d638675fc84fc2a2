package chunker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// snapshotExtensions is the default glob set snapshots are captured over
// (§3.4): **/*.{py,ts,js,tsx,jsx,rs,go,java,md,json,yaml,yml,toml,cfg,ini}.
var snapshotExtensions = map[string]bool{
	".py": true, ".ts": true, ".js": true, ".tsx": true, ".jsx": true,
	".rs": true, ".go": true, ".java": true, ".md": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".cfg": true, ".ini": true,
}

// SnapshotChunker captures the current repository's tracked-file state as a
// point-in-time Snapshot, mirrored as a chunk (§3.1, §3.4, §4.3).
type SnapshotChunker struct {
	root string
	repo *git.Repository // nil when root is not a git repository
}

// NewSnapshotChunker builds a SnapshotChunker rooted at root. It is not an
// error for root to be outside a git repository; GitStatus is simply
// GitStatusNone for every file in that case.
func NewSnapshotChunker(root string) *SnapshotChunker {
	repo, _ := git.PlainOpen(root)
	return &SnapshotChunker{root: root, repo: repo}
}

// Capture enumerates files, hashes their contents, and attaches each one's
// porcelain VCS status.
func (s *SnapshotChunker) Capture() ([]model.FileState, error) {
	statuses := s.gitStatuses()

	var files []model.FileState
	err := WalkSourceFiles(context.Background(), s.root, func(relPath string) error {
		if !snapshotExtensions[strings.ToLower(filepath.Ext(relPath))] {
			return nil
		}
		info, err := os.Stat(filepath.Join(s.root, relPath))
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(s.root, relPath))
		if err != nil {
			return nil
		}
		sum := sha1.Sum(data)

		files = append(files, model.FileState{
			Path:        relPath,
			Exists:      true,
			Size:        info.Size(),
			ModifiedAt:  info.ModTime(),
			ContentHash: hex.EncodeToString(sum[:]),
			GitStatus:   statuses[relPath],
		})
		return nil
	})
	return files, err
}

func (s *SnapshotChunker) gitStatuses() map[string]model.GitStatus {
	statuses := map[string]model.GitStatus{}
	if s.repo == nil {
		return statuses
	}
	wt, err := s.repo.Worktree()
	if err != nil {
		return statuses
	}
	st, err := wt.Status()
	if err != nil {
		return statuses
	}
	for path, fileStatus := range st {
		statuses[filepath.ToSlash(path)] = porcelainStatus(fileStatus.Worktree)
	}
	return statuses
}

func porcelainStatus(code git.StatusCode) model.GitStatus {
	switch code {
	case git.Added:
		return model.GitAdded
	case git.Modified:
		return model.GitModified
	case git.Deleted:
		return model.GitDeleted
	case git.Renamed:
		return model.GitRenamed
	case git.Untracked:
		return model.GitUntracked
	default:
		return model.GitStatusNone
	}
}

// BuildSnapshot captures the current file state and assembles a full
// Snapshot record, chaining it to previousID via PRECEDED_BY (the caller
// persists the edge once the chunk and snapshot are both saved).
func (s *SnapshotChunker) BuildSnapshot(id string, snapType model.SnapshotType, name, description string, previousID *string, createdBy string) (model.Snapshot, error) {
	files, err := s.Capture()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("capture file state: %w", err)
	}

	snap := model.Snapshot{
		ID:                 id,
		Type:               snapType,
		Name:               name,
		Description:        description,
		Files:              files,
		CreatedAt:          time.Now(),
		CreatedBy:          createdBy,
		PreviousSnapshotID: previousID,
	}

	if s.repo != nil {
		if head, err := s.repo.Head(); err == nil {
			snap.GitCommit = head.Hash().String()
			snap.GitBranch = head.Name().Short()
		}
		if wt, err := s.repo.Worktree(); err == nil {
			if st, err := wt.Status(); err == nil {
				snap.GitDirty = !st.IsClean()
			}
		}
	}

	return snap, nil
}

// SnapshotChunk mirrors a Snapshot as a SNAPSHOT_USER/SNAPSHOT_AGENT chunk,
// in the markdown form of original_source's Snapshot.to_chunk() (§4.3):
// a header, description, git-state section, and a files-tracked section
// capped at the first 20 entries.
func SnapshotChunk(snap model.Snapshot) model.KnowledgeChunk {
	chunkType := model.ChunkSnapshotAgent
	if snap.Type == model.SnapshotUser {
		chunkType = model.ChunkSnapshotUser
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Snapshot: %s\n", snap.Name)
	fmt.Fprintf(&sb, "**Type**: %s\n", snap.Type)
	fmt.Fprintf(&sb, "**Created**: %s\n", snap.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**By**: %s\n\n", snap.CreatedBy)
	fmt.Fprintf(&sb, "## Description\n\n%s\n\n", snap.Description)

	if snap.GitCommit != "" {
		short := snap.GitCommit
		if len(short) > 8 {
			short = short[:8]
		}
		fmt.Fprintf(&sb, "## Git State\n\n- Branch: %s\n- Commit: %s\n- Dirty: %t\n\n", snap.GitBranch, short, snap.GitDirty)
	}

	fmt.Fprintf(&sb, "## Files (%d tracked)\n", len(snap.Files))
	shown := snap.Files
	if len(shown) > 20 {
		shown = shown[:20]
	}
	for _, f := range shown {
		status := string(f.GitStatus)
		if status == "" {
			status = "?"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", status, f.Path)
	}
	if len(snap.Files) > 20 {
		fmt.Fprintf(&sb, "- ... and %d more\n", len(snap.Files)-20)
	}

	content := sb.String()
	shortCommit := "no-git"
	if snap.GitCommit != "" {
		shortCommit = snap.GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
	}
	compressed := fmt.Sprintf("[%s] %s: %d files @ %s", snap.Type, snap.Name, len(snap.Files), shortCommit)

	return model.KnowledgeChunk{
		ID:                   "snapshot:" + snap.ID,
		ChunkType:            chunkType,
		Content:              content,
		ContentCompressed:    &compressed,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(compressed),
		SymbolName:           &snap.Name,
		Source:               model.SourceSystem,
		Confidence:           1.0,
		Tags:                 append(append([]string{}, snap.Tags...), string(snap.Type)),
		Extra: map[string]any{
			"snapshot_id":          snap.ID,
			"previous_snapshot_id": snap.PreviousSnapshotID,
		},
	}
}
