package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// SaveChunk upserts a single chunk, updating UpdatedAt (§4.4).
func (s *Store) SaveChunk(ctx context.Context, c model.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveChunkLocked(ctx, s.db, c)
}

// SaveChunks upserts a batch of chunks inside a single transaction and
// rebuilds the FTS index after commit (§4.4).
func (s *Store) SaveChunks(ctx context.Context, cs []model.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, c := range cs {
		if err := s.saveChunkLocked(ctx, tx, c); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return s.RebuildFTS()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) saveChunkLocked(ctx context.Context, ex execer, c model.KnowledgeChunk) error {
	if strings.TrimSpace(c.ID) == "" {
		return model.NewError(model.ErrMalformedInput, "chunk id must not be empty")
	}

	now := time.Now()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var existingCreated int64
	err := ex.QueryRowContext(ctx, `SELECT created_at FROM chunks WHERE id = ?`, c.ID).Scan(&existingCreated)
	if err == nil {
		createdAt = time.Unix(existingCreated, 0).UTC()
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("check existing chunk: %w", err)
	}

	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	extraJSON, err := json.Marshal(c.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO chunks (
			id, chunk_type, content, content_compressed, token_count, token_count_compressed,
			file_path, line_start, line_end, symbol_name, signature, docstring, feature,
			source, confidence, tags, extra, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			chunk_type=excluded.chunk_type, content=excluded.content,
			content_compressed=excluded.content_compressed, token_count=excluded.token_count,
			token_count_compressed=excluded.token_count_compressed, file_path=excluded.file_path,
			line_start=excluded.line_start, line_end=excluded.line_end, symbol_name=excluded.symbol_name,
			signature=excluded.signature, docstring=excluded.docstring, feature=excluded.feature,
			source=excluded.source, confidence=excluded.confidence, tags=excluded.tags,
			extra=excluded.extra, updated_at=excluded.updated_at
	`,
		c.ID, string(c.ChunkType), c.Content, c.ContentCompressed, c.TokenCount, c.TokenCountCompressed,
		c.FilePath, c.LineStart, c.LineEnd, c.SymbolName, c.Signature, c.Docstring, c.Feature,
		string(c.Source), c.Confidence, string(tagsJSON), string(extraJSON), createdAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save chunk: %w", err)
	}
	return nil
}

const chunkColumns = `id, chunk_type, content, content_compressed, token_count, token_count_compressed,
	file_path, line_start, line_end, symbol_name, signature, docstring, feature,
	source, confidence, tags, extra, created_at, updated_at`

func scanChunk(row interface{ Scan(dest ...any) error }) (model.KnowledgeChunk, error) {
	var c model.KnowledgeChunk
	var chunkType, source, tagsJSON, extraJSON string
	var createdAt, updatedAt int64
	err := row.Scan(
		&c.ID, &chunkType, &c.Content, &c.ContentCompressed, &c.TokenCount, &c.TokenCountCompressed,
		&c.FilePath, &c.LineStart, &c.LineEnd, &c.SymbolName, &c.Signature, &c.Docstring, &c.Feature,
		&source, &c.Confidence, &tagsJSON, &extraJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, err
	}
	c.ChunkType = model.ChunkType(chunkType)
	c.Source = model.Source(source)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
	}
	if extraJSON != "" {
		_ = json.Unmarshal([]byte(extraJSON), &c.Extra)
	}
	return c, nil
}

// GetChunk reads a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return &c, nil
}

// GetChunks reads multiple chunks by id, skipping ids that don't exist.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]model.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows *sql.Rows) ([]model.KnowledgeChunk, error) {
	var out []model.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunksByType reads all chunks of a given type.
func (s *Store) GetChunksByType(ctx context.Context, t model.ChunkType) ([]model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE chunk_type = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("get chunks by type: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// GetChunksByFile reads all chunks for a file path, ordered by LineStart
// ascending, per the storage contract's stable ordering rule (§4.4).
func (s *Store) GetChunksByFile(ctx context.Context, path string) ([]model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE file_path = ? ORDER BY line_start ASC`, path)
	if err != nil {
		return nil, fmt.Errorf("get chunks by file: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// GetChunksByFeature reads all chunks tagged with the given feature bucket.
func (s *Store) GetChunksByFeature(ctx context.Context, feature string) ([]model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE feature = ?`, feature)
	if err != nil {
		return nil, fmt.Errorf("get chunks by feature: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// DeleteChunksByFile cascades: removes all chunks with that file_path and
// every edge touching any removed id (§4.4, I1, P3).
func (s *Store) DeleteChunksByFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("select chunk ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
			return fmt.Errorf("cascade delete edges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return s.RebuildFTS()
}

// ClearAll destructively removes every chunk, edge, rule, and snapshot, then
// rebuilds the FTS index.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{"chunks", "edges", "business_rules", "snapshots"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return s.RebuildFTS()
}

// ClearChunksByType removes all chunks of a given type (and their edges).
func (s *Store) ClearChunksByType(ctx context.Context, t model.ChunkType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE chunk_type = ?`, string(t))
	if err != nil {
		return fmt.Errorf("select chunk ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_type = ?`, string(t)); err != nil {
		return fmt.Errorf("clear chunks by type: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
			return fmt.Errorf("cascade delete edges: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return s.RebuildFTS()
}

// SearchResult pairs a chunk with its (already-inverted, higher-is-better)
// relevance score.
type SearchResult struct {
	Chunk model.KnowledgeChunk
	Score float64
}

// SearchContent runs a BM25 full-text search over chunk content and symbol
// names. An empty or whitespace-only query returns an empty result without
// invoking FTS MATCH, per the storage contract (§4.4, open question §9).
func (s *Store) SearchContent(ctx context.Context, query string, types []model.ChunkType, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ftsQuery := parseFTS5Query(query)
	sqlQuery := `
		SELECT ` + prefixColumns("c") + `, fts.rank AS score
		FROM chunks_fts fts
		JOIN chunks c ON fts.id = c.id
		WHERE chunks_fts MATCH ?`
	args := []any{ftsQuery}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		sqlQuery += ` AND c.chunk_type IN (` + strings.Join(placeholders, ",") + `)`
	}
	sqlQuery += ` ORDER BY fts.rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var c model.KnowledgeChunk
		var chunkType, source, tagsJSON, extraJSON string
		var createdAt, updatedAt int64
		var rank float64
		if err := rows.Scan(
			&c.ID, &chunkType, &c.Content, &c.ContentCompressed, &c.TokenCount, &c.TokenCountCompressed,
			&c.FilePath, &c.LineStart, &c.LineEnd, &c.SymbolName, &c.Signature, &c.Docstring, &c.Feature,
			&source, &c.Confidence, &tagsJSON, &extraJSON, &createdAt, &updatedAt, &rank,
		); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		c.ChunkType = model.ChunkType(chunkType)
		c.Source = model.Source(source)
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
		}
		if extraJSON != "" {
			_ = json.Unmarshal([]byte(extraJSON), &c.Extra)
		}
		// FTS rank is negative (lower is better); caller-facing score is inverted (§4.4).
		results = append(results, SearchResult{Chunk: c, Score: -rank})
	}
	return results, rows.Err()
}

func prefixColumns(alias string) string {
	cols := strings.Split(strings.ReplaceAll(chunkColumns, "\n", ""), ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// SearchSymbol finds chunks by symbol name, exact or substring.
func (s *Store) SearchSymbol(ctx context.Context, name string, exact bool) ([]model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if exact {
		rows, err = s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE symbol_name = ?`, name)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE symbol_name LIKE ?`, "%"+name+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("search symbol: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// Stats summarizes the store's contents (§4.4).
type Stats struct {
	CountsByType  map[model.ChunkType]int
	NeedsRebuild  bool
}

// GetStats returns per-type chunk counts and whether a rebuild is due
// (last_file_change > last_build, per graph_metadata).
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{CountsByType: map[model.ChunkType]int{}}
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_type, COUNT(*) FROM chunks GROUP BY chunk_type`)
	if err != nil {
		return stats, fmt.Errorf("get stats: %w", err)
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.CountsByType[model.ChunkType(t)] = n
	}
	rows.Close()

	lastBuild, _ := s.getMetadataLocked(ctx, "last_build")
	lastChange, _ := s.getMetadataLocked(ctx, "last_file_change")
	stats.NeedsRebuild = lastChange != "" && lastChange > lastBuild
	return stats, nil
}

// SetMetadata upserts a key in graph_metadata (e.g. "last_build").
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMetadata reads a key from graph_metadata; "" if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMetadataLocked(ctx, key)
}

func (s *Store) getMetadataLocked(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM graph_metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}
