package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

const snapshotColumns = `snapshot_id, snapshot_type, name, description, files, git_commit,
	git_branch, git_dirty, task_id, task_goal, created_at, created_by, tags, previous_snapshot_id`

// SaveSnapshot persists an immutable point-in-time snapshot (§3.1, §3.4).
// Snapshots are write-once in practice; this upserts for idempotent retries
// of the same snapshot id.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	filesJSON, err := json.Marshal(snap.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	tagsJSON, err := json.Marshal(snap.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, project_path, snapshot_type, name, description, files,
			git_commit, git_branch, git_dirty, task_id, task_goal, created_at,
			created_by, tags, previous_snapshot_id
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(snapshot_id) DO UPDATE SET
			name=excluded.name, description=excluded.description, files=excluded.files,
			git_commit=excluded.git_commit, git_branch=excluded.git_branch,
			git_dirty=excluded.git_dirty, task_id=excluded.task_id, task_goal=excluded.task_goal,
			tags=excluded.tags
	`,
		snap.ID, "", string(snap.Type), snap.Name, snap.Description, string(filesJSON),
		snap.GitCommit, snap.GitBranch, snap.GitDirty, snap.TaskID, snap.TaskGoal,
		createdAt.Unix(), snap.CreatedBy, string(tagsJSON), snap.PreviousSnapshotID,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row interface{ Scan(dest ...any) error }) (model.Snapshot, error) {
	var snap model.Snapshot
	var snapType, filesJSON, tagsJSON string
	var gitDirty int
	var createdAt int64
	err := row.Scan(
		&snap.ID, &snapType, &snap.Name, &snap.Description, &filesJSON, &snap.GitCommit,
		&snap.GitBranch, &gitDirty, &snap.TaskID, &snap.TaskGoal, &createdAt, &snap.CreatedBy,
		&tagsJSON, &snap.PreviousSnapshotID,
	)
	if err != nil {
		return snap, err
	}
	snap.Type = model.SnapshotType(snapType)
	snap.GitDirty = gitDirty != 0
	snap.CreatedAt = time.Unix(createdAt, 0).UTC()
	if filesJSON != "" {
		_ = json.Unmarshal([]byte(filesJSON), &snap.Files)
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &snap.Tags)
	}
	return snap, nil
}

// GetSnapshot reads a single snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE snapshot_id = ?`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns snapshots newest-first, optionally capped at limit
// (0 = unbounded), per the timeline's history browsing operation (§3.4).
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetMostRecentSnapshot returns the latest snapshot, used to chain
// PRECEDED_BY edges when a new snapshot is created (§3.4, §4.5).
func (s *Store) GetMostRecentSnapshot(ctx context.Context) (*model.Snapshot, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// DeleteSnapshot removes a single snapshot record. Rollback previews never
// call this; it exists for explicit pruning only.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE snapshot_id = ?`, id)
	return err
}
