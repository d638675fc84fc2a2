package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// SaveEdge upserts a single typed edge (§4.5).
func (s *Store) SaveEdge(ctx context.Context, e model.ChunkEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEdgeLocked(ctx, s.db, e)
}

// SaveEdges upserts a batch of edges in one transaction.
func (s *Store) SaveEdges(ctx context.Context, edges []model.ChunkEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, e := range edges {
		if err := s.saveEdgeLocked(ctx, tx, e); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) saveEdgeLocked(ctx context.Context, ex execer, e model.ChunkEdge) error {
	if e.SourceID == "" || e.TargetID == "" {
		return model.NewError(model.ErrMalformedInput, "edge source and target ids must not be empty")
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}
	weight := e.Weight
	if weight == 0 {
		weight = 1.0
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, edge_type, weight, metadata)
		VALUES (?,?,?,?,?)
		ON CONFLICT(source_id, target_id, edge_type) DO UPDATE SET
			weight=excluded.weight, metadata=excluded.metadata
	`, e.SourceID, e.TargetID, string(e.EdgeType), weight, string(metaJSON))
	if err != nil {
		return fmt.Errorf("save edge: %w", err)
	}
	return nil
}

func scanEdgeRows(rows *sql.Rows) ([]model.ChunkEdge, error) {
	var out []model.ChunkEdge
	for rows.Next() {
		var e model.ChunkEdge
		var edgeType, metaJSON string
		if err := rows.Scan(&e.SourceID, &e.TargetID, &edgeType, &e.Weight, &metaJSON); err != nil {
			return nil, err
		}
		e.EdgeType = model.EdgeType(edgeType)
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEdgesFrom reads outgoing edges from a chunk id, optionally filtered by
// edge type (nil/empty = all types).
func (s *Store) GetEdgesFrom(ctx context.Context, sourceID string, types []model.EdgeType) ([]model.ChunkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT source_id, target_id, edge_type, weight, metadata FROM edges WHERE source_id = ?`
	args := []any{sourceID}
	if len(types) > 0 {
		query += ` AND edge_type IN (` + placeholdersFor(types) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get edges from: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

// GetEdgesTo reads incoming edges to a chunk id, optionally filtered by
// edge type.
func (s *Store) GetEdgesTo(ctx context.Context, targetID string, types []model.EdgeType) ([]model.ChunkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT source_id, target_id, edge_type, weight, metadata FROM edges WHERE target_id = ?`
	args := []any{targetID}
	if len(types) > 0 {
		query += ` AND edge_type IN (` + placeholdersFor(types) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get edges to: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

// GetEdgesAmong returns every edge whose source and target are both in ids,
// used to induce the subgraph over a retrieved chunk set (§4.8 P5).
func (s *Store) GetEdgesAmong(ctx context.Context, ids []string) ([]model.ChunkEdge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ph := placeholdersForStrings(ids)
	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT source_id, target_id, edge_type, weight, metadata FROM edges
		WHERE source_id IN (` + ph + `) AND target_id IN (` + ph + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get edges among: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

func placeholdersFor(types []model.EdgeType) string {
	ph := make([]string, len(types))
	for i := range types {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

func placeholdersForStrings(ids []string) string {
	ph := make([]string, len(ids))
	for i := range ids {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

// DeleteEdge removes a single typed edge.
func (s *Store) DeleteEdge(ctx context.Context, sourceID, targetID string, edgeType model.EdgeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM edges WHERE source_id = ? AND target_id = ? AND edge_type = ?`,
		sourceID, targetID, string(edgeType))
	return err
}
