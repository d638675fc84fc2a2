// Package store provides the knowledge graph's durable relational storage
// (spec §4.4): chunks, typed edges, metadata, business rules, and snapshots,
// with a SQLite FTS5 virtual table supporting BM25-ranked full-text search.
//
// Grounded on internal/vectorstore/sqlite (store.go, fts5.go): same driver,
// same connection-pooling rule for in-memory databases, same BM25 query
// construction approach, repurposed from a document/vector schema onto the
// chunk/edge schema of this package.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store is the knowledge graph's SQLite-backed persistence layer. Per §5,
// only one builder (writer) runs at a time; mu enforces that a writer is
// serialized relative to any running FTS index rebuild, while readers may
// proceed concurrently.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates (or attaches to) a SQLite database at path and ensures the
// schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// As in the teacher's vectorstore: a single connection for in-memory
	// databases so all callers share the same instance.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for advanced callers (mirrors the
// teacher's storage.Backend.DB() escape hatch); prefer the typed methods.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		chunk_type TEXT NOT NULL,
		content TEXT NOT NULL,
		content_compressed TEXT,
		token_count INTEGER NOT NULL DEFAULT 0,
		token_count_compressed INTEGER NOT NULL DEFAULT 0,
		file_path TEXT,
		line_start INTEGER,
		line_end INTEGER,
		symbol_name TEXT,
		signature TEXT,
		docstring TEXT,
		feature TEXT,
		source TEXT NOT NULL DEFAULT 'auto',
		confidence REAL NOT NULL DEFAULT 1.0,
		tags TEXT,
		extra TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
	CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(chunk_type);
	CREATE INDEX IF NOT EXISTS idx_chunks_symbol ON chunks(symbol_name);
	CREATE INDEX IF NOT EXISTS idx_chunks_feature ON chunks(feature);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		id UNINDEXED,
		content,
		symbol_name,
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(id, content, symbol_name) VALUES (new.id, new.content, new.symbol_name);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		DELETE FROM chunks_fts WHERE id = old.id;
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		UPDATE chunks_fts SET content = new.content, symbol_name = new.symbol_name WHERE id = old.id;
	END;

	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		metadata TEXT,
		PRIMARY KEY (source_id, target_id, edge_type)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, edge_type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, edge_type);

	CREATE TABLE IF NOT EXISTS graph_metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS business_rules (
		rule_id TEXT PRIMARY KEY,
		rule_text TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		source_chunk_id TEXT NOT NULL,
		source_file TEXT NOT NULL,
		source_symbol TEXT,
		source_line_start INTEGER,
		source_line_end INTEGER,
		interpretation_context TEXT,
		confidence REAL NOT NULL DEFAULT 0.6,
		confirmed_by TEXT,
		confirmed_at INTEGER,
		human_correction TEXT,
		rejection_reason TEXT,
		tags TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL DEFAULT '',
		snapshot_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		files TEXT NOT NULL,
		git_commit TEXT,
		git_branch TEXT,
		git_dirty INTEGER NOT NULL DEFAULT 0,
		task_id TEXT,
		task_goal TEXT,
		created_at INTEGER NOT NULL,
		created_by TEXT,
		tags TEXT,
		previous_snapshot_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_project_time ON snapshots(project_path, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RebuildFTS rebuilds the FTS5 index, recovering from rowid gaps left by
// batched INSERT OR REPLACE runs (§4.4, §5).
func (s *Store) RebuildFTS() error {
	_, err := s.db.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild')`)
	return err
}
