package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/rules"
)

const ruleColumns = `rule_id, rule_text, category, status, source_chunk_id, source_file,
	source_symbol, source_line_start, source_line_end, interpretation_context,
	confidence, confirmed_by, confirmed_at, human_correction, rejection_reason,
	tags, created_at, updated_at`

// SaveRule upserts a business rule and mirrors it into a BUSINESS_RULE chunk
// (§3.1/§4.9: "Mirrored into a chunk of type BUSINESS_RULE on save" — I6
// requires this on every save, not just confirm/correct). Lifecycle
// transitions are enforced by the caller (internal/kg/rules); this layer
// just persists. The VALIDATES edge, which only applies to CONFIRMED/
// CORRECTED rules, stays the caller's responsibility.
func (s *Store) SaveRule(ctx context.Context, r model.BusinessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	var confirmedAt *int64
	if r.ConfirmedAt != nil {
		u := r.ConfirmedAt.Unix()
		confirmedAt = &u
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO business_rules (
			rule_id, rule_text, category, status, source_chunk_id, source_file,
			source_symbol, source_line_start, source_line_end, interpretation_context,
			confidence, confirmed_by, confirmed_at, human_correction, rejection_reason,
			tags, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(rule_id) DO UPDATE SET
			rule_text=excluded.rule_text, category=excluded.category, status=excluded.status,
			source_chunk_id=excluded.source_chunk_id, source_file=excluded.source_file,
			source_symbol=excluded.source_symbol, source_line_start=excluded.source_line_start,
			source_line_end=excluded.source_line_end, interpretation_context=excluded.interpretation_context,
			confidence=excluded.confidence, confirmed_by=excluded.confirmed_by,
			confirmed_at=excluded.confirmed_at, human_correction=excluded.human_correction,
			rejection_reason=excluded.rejection_reason, tags=excluded.tags, updated_at=excluded.updated_at
	`,
		r.ID, r.Text, string(r.Category), string(r.Status), r.SourceChunkID, r.SourceFile,
		r.SourceSymbol, r.SourceLineStart, r.SourceLineEnd, r.InterpretationContext,
		r.Confidence, r.ConfirmedBy, confirmedAt, r.HumanCorrection, r.RejectionReason,
		string(tagsJSON), createdAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	if err := s.saveChunkLocked(ctx, s.db, rules.ToChunk(r)); err != nil {
		return fmt.Errorf("save rule chunk: %w", err)
	}
	return nil
}

func scanRule(row interface{ Scan(dest ...any) error }) (model.BusinessRule, error) {
	var r model.BusinessRule
	var category, status, tagsJSON string
	var confirmedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&r.ID, &r.Text, &category, &status, &r.SourceChunkID, &r.SourceFile,
		&r.SourceSymbol, &r.SourceLineStart, &r.SourceLineEnd, &r.InterpretationContext,
		&r.Confidence, &r.ConfirmedBy, &confirmedAt, &r.HumanCorrection, &r.RejectionReason,
		&tagsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Category = model.RuleCategory(category)
	r.Status = model.RuleStatus(status)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if confirmedAt.Valid {
		t := time.Unix(confirmedAt.Int64, 0).UTC()
		r.ConfirmedAt = &t
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &r.Tags)
	}
	return r, nil
}

// GetRule reads a single business rule by id.
func (s *Store) GetRule(ctx context.Context, id string) (*model.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM business_rules WHERE rule_id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &r, nil
}

// GetRulesByStatus lists business rules in a given lifecycle state.
func (s *Store) GetRulesByStatus(ctx context.Context, status model.RuleStatus) ([]model.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM business_rules WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("get rules by status: %w", err)
	}
	defer rows.Close()
	var out []model.BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRulesByFile lists business rules interpreted from a given source file.
func (s *Store) GetRulesByFile(ctx context.Context, path string) ([]model.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM business_rules WHERE source_file = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("get rules by file: %w", err)
	}
	defer rows.Close()
	var out []model.BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRulesBySourceChunk removes the PROPOSED rules whose source chunk was
// deleted by a rebuild; rules in any other status are kept (§4.9 — rules
// dangle rather than auto-confirm after re-derivation).
func (s *Store) DeleteRulesBySourceChunk(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM business_rules WHERE source_chunk_id = ? AND status = ?`,
		chunkID, string(model.RuleProposed))
	return err
}
