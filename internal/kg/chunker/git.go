package chunker

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// FileChange describes one path touched by a commit.
type FileChange struct {
	Type     string // added, modified, deleted, renamed
	Path     string
	OldPath  string
}

// GitChunker emits COMMIT chunks from a repository's history, and exposes
// blame/diff as unpersisted auxiliary queries (§4.3). Grounded on the
// teacher's internal/mcp/git_helper.go, which already walks go-git commit
// history and per-commit file changes; generalized here from ticket search
// into full-history chunk emission.
type GitChunker struct {
	repo *git.Repository
}

// OpenGitChunker opens the repository rooted at path.
func OpenGitChunker(path string) (*GitChunker, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return &GitChunker{repo: repo}, nil
}

// ChunkCommits emits one COMMIT chunk per commit reachable from HEAD, up to
// maxCommits (0 = unbounded).
func (g *GitChunker) ChunkCommits(maxCommits int) ([]model.KnowledgeChunk, error) {
	iter, err := g.repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("get commit log: %w", err)
	}

	var chunks []model.KnowledgeChunk
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCommits > 0 && count >= maxCommits {
			return fmt.Errorf("reached max commits")
		}
		count++
		chunks = append(chunks, g.commitChunk(c))
		return nil
	})
	if err != nil && !strings.Contains(err.Error(), "reached max commits") {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return chunks, nil
}

func (g *GitChunker) commitChunk(c *object.Commit) model.KnowledgeChunk {
	changes := g.fileChanges(c)

	var paths []string
	var changeMaps []map[string]any
	for _, ch := range changes {
		if ch.Path != "" {
			paths = append(paths, ch.Path)
		}
		entry := map[string]any{"type": ch.Type, "path": ch.Path}
		if ch.OldPath != "" {
			entry["old_path"] = ch.OldPath
		}
		changeMaps = append(changeMaps, entry)
	}

	subject, body := splitCommitMessage(c.Message)
	content := fmt.Sprintf("%s\n\n%s\nauthor: %s <%s>\ndate: %s",
		subject, body, c.Author.Name, c.Author.Email, c.Author.When.Format("2006-01-02T15:04:05Z07:00"))

	hash := c.Hash.String()
	shortHash := hash
	if len(shortHash) > 7 {
		shortHash = shortHash[:7]
	}

	return model.KnowledgeChunk{
		ID:         "commit:" + hash,
		ChunkType:  model.ChunkCommit,
		Content:    content,
		TokenCount: tokenestimate.Estimate(content),
		Source:     model.SourceGit,
		Confidence: 1.0,
		Tags:       paths,
		Extra: map[string]any{
			"hash":          hash,
			"short_hash":    shortHash,
			"subject":       subject,
			"body":          body,
			"author_name":   c.Author.Name,
			"author_email":  c.Author.Email,
			"files_changed": changeMaps,
		},
	}
}

func (g *GitChunker) fileChanges(c *object.Commit) []FileChange {
	var changes []FileChange

	if c.NumParents() == 0 {
		tree, err := c.Tree()
		if err != nil {
			return changes
		}
		_ = tree.Files().ForEach(func(f *object.File) error {
			changes = append(changes, FileChange{Type: "added", Path: f.Name})
			return nil
		})
		return changes
	}

	parent, err := c.Parent(0)
	if err != nil {
		return changes
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return changes
	}
	tree, err := c.Tree()
	if err != nil {
		return changes
	}

	diff, err := parentTree.Diff(tree)
	if err != nil {
		return changes
	}
	for _, d := range diff {
		action, err := d.Action()
		if err != nil {
			continue
		}
		from, to := d.From, d.To
		switch action.String() {
		case "Insert":
			changes = append(changes, FileChange{Type: "added", Path: to.Name})
		case "Delete":
			changes = append(changes, FileChange{Type: "deleted", Path: from.Name})
		default:
			if from.Name != "" && to.Name != "" && from.Name != to.Name {
				changes = append(changes, FileChange{Type: "renamed", Path: to.Name, OldPath: from.Name})
			} else {
				changes = append(changes, FileChange{Type: "modified", Path: to.Name})
			}
		}
	}
	return changes
}

func splitCommitMessage(msg string) (subject, body string) {
	msg = strings.TrimRight(msg, "\n")
	parts := strings.SplitN(msg, "\n", 2)
	subject = parts[0]
	if len(parts) > 1 {
		body = strings.TrimSpace(parts[1])
	}
	return subject, body
}

// Blame returns raw blame output for a file at HEAD; not persisted (§4.3).
func (g *GitChunker) Blame(path string) (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	commit, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("resolve head commit: %w", err)
	}
	result, err := git.Blame(commit, path)
	if err != nil {
		return "", fmt.Errorf("blame %s: %w", path, err)
	}

	var sb strings.Builder
	for i, line := range result.Lines {
		fmt.Fprintf(&sb, "%s %d) %s\n", line.Hash.String()[:7], i+1, line.Text)
	}
	return sb.String(), nil
}

// Diff returns the raw unified diff between two commit-ish refs; not
// persisted (§4.3).
func (g *GitChunker) Diff(fromHash, toHash string) (string, error) {
	fromRev, err := g.repo.ResolveRevision(plumbing.Revision(fromHash))
	if err != nil {
		return "", fmt.Errorf("resolve from: %w", err)
	}
	fromCommit, err := g.repo.CommitObject(*fromRev)
	if err != nil {
		return "", fmt.Errorf("resolve from: %w", err)
	}
	toRev, err := g.repo.ResolveRevision(plumbing.Revision(toHash))
	if err != nil {
		return "", fmt.Errorf("resolve to: %w", err)
	}
	toCommit, err := g.repo.CommitObject(*toRev)
	if err != nil {
		return "", fmt.Errorf("resolve to: %w", err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return "", err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return "", err
	}
	patch, err := fromTree.Patch(toTree)
	if err != nil {
		return "", fmt.Errorf("diff: %w", err)
	}
	return patch.String(), nil
}
