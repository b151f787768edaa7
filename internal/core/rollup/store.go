// Package rollup persists session metadata and precomputed daily
// aggregates in SQLite, so analytical queries and search prefilters
// never need to re-read transcript files.
package rollup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection. One writer at a time; reads may
// run concurrently thanks to WAL.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the rollup database at dbPath and
// bootstraps the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
	-- One row per scanned file, used to skip unchanged files.
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		size INTEGER NOT NULL,
		mtime INTEGER NOT NULL,
		scanned_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);

	-- Durable mirror of session headers.
	CREATE TABLE IF NOT EXISTS session_meta (
		session_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		file_path TEXT NOT NULL,
		model TEXT,
		repo_name TEXT,
		cwd TEXT,
		title TEXT,
		start_ts INTEGER NOT NULL DEFAULT 0,
		end_ts INTEGER NOT NULL DEFAULT 0,
		file_mtime INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		event_count INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL DEFAULT 0,
		tool_call_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_session_meta_source ON session_meta(source);
	CREATE INDEX IF NOT EXISTS idx_session_meta_model ON session_meta(model);
	CREATE INDEX IF NOT EXISTS idx_session_meta_repo ON session_meta(repo_name);
	CREATE INDEX IF NOT EXISTS idx_session_meta_end ON session_meta(end_ts);

	-- Per-session per-calendar-day activity splits. Model is
	-- denormalized from the session so rollups can group by it.
	CREATE TABLE IF NOT EXISTS session_days (
		session_id TEXT NOT NULL,
		day TEXT NOT NULL,
		source TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		tool_call_count INTEGER NOT NULL DEFAULT 0,
		duration_secs REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_session_days_day ON session_days(day, source, model);

	-- Daily aggregates, recomputed from session_days per affected
	-- (day, source, model) inside each file's transaction.
	CREATE TABLE IF NOT EXISTS rollups_daily (
		day TEXT NOT NULL,
		source TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		session_count INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL DEFAULT 0,
		tool_call_count INTEGER NOT NULL DEFAULT 0,
		duration_secs REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (day, source, model)
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}
	return s.migrate()
}

// migrate upgrades databases created before the per-model rollup
// columns existed. The day tables are derived data, so the upgrade
// drops them and clears the file-scan cache; the next index pass
// rebuilds everything.
func (s *Store) migrate() error {
	var hasModel int
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('rollups_daily') WHERE name = 'model'`,
	).Scan(&hasModel)
	if err != nil {
		return err
	}
	if hasModel > 0 {
		return nil
	}
	var hasCounts int
	err = s.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('session_meta') WHERE name = 'message_count'`,
	).Scan(&hasCounts)
	if err != nil {
		return err
	}
	stmts := []string{
		`DROP TABLE IF EXISTS session_days`,
		`DROP TABLE IF EXISTS rollups_daily`,
		`DELETE FROM files`,
	}
	if hasCounts == 0 {
		stmts = append(stmts,
			`ALTER TABLE session_meta ADD COLUMN message_count INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE session_meta ADD COLUMN tool_call_count INTEGER NOT NULL DEFAULT 0`)
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return s.initSchema()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
