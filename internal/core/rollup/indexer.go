package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retsubhtym/agent-sessions-sub002/internal/logging"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

var ixlog = logging.ForComponent(logging.CompIndexer)

// Indexer feeds parsed sessions into the store. Parsing runs on a
// bounded worker group; all writes go through a single goroutine so
// the store only ever sees one writer.
type Indexer struct {
	store     *Store
	hotWindow time.Duration
	workers   int

	now func() time.Time // overridable in tests
}

func NewIndexer(store *Store, hotWindow time.Duration, workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	return &Indexer{
		store:     store,
		hotWindow: hotWindow,
		workers:   workers,
		now:       time.Now,
	}
}

// IndexStats summarizes one indexing pass.
type IndexStats struct {
	Candidates int
	Skipped    int // hot window or unchanged since last scan
	Indexed    int
	Failed     int
	Purged     int // sources wiped by the identifier migration guard
}

// Index processes the candidate files for one pass. Candidates are
// lightweight sessions from discovery. One file's failure never
// aborts the batch; failures are logged and counted.
func (ix *Indexer) Index(ctx context.Context, candidates []transcript.Session) (IndexStats, error) {
	stats := IndexStats{Candidates: len(candidates)}

	sources := make(map[transcript.Source]bool)
	for i := range candidates {
		sources[candidates[i].Source] = true
	}
	for src := range sources {
		purged, err := ix.store.purgeNonCanonical(src)
		if err != nil {
			return stats, fmt.Errorf("migration guard for %s: %w", src, err)
		}
		if purged {
			stats.Purged++
			ixlog.Warn("purged rows with non-canonical session ids, reindexing source",
				slog.String("source", string(src)))
		}
	}

	var todo []transcript.Session
	cutoff := ix.now().Add(-ix.hotWindow)
	for i := range candidates {
		c := candidates[i]
		if ix.hotWindow > 0 && c.FileModTime.After(cutoff) {
			stats.Skipped++
			continue
		}
		unchanged, err := ix.store.fileUnchanged(c.FilePath, c.FileSize, c.FileModTime)
		if err != nil {
			// A broken lookup just means we cannot prove the file is
			// unchanged. Reindex it instead of failing the pass.
			ixlog.Warn("file scan lookup failed",
				slog.String("path", c.FilePath),
				slog.String("error", err.Error()))
			unchanged = false
		}
		if unchanged {
			stats.Skipped++
			continue
		}
		todo = append(todo, c)
	}

	parsed := make(chan *transcript.Session, ix.workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	go func() {
		for i := range todo {
			c := todo[i]
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case parsed <- transcript.ParseFile(c.FilePath, c.Source):
					return nil
				}
			})
		}
		g.Wait()
		close(parsed)
	}()

	for sess := range parsed {
		if err := ix.store.indexOne(sess, ix.now()); err != nil {
			stats.Failed++
			ixlog.Warn("index failed, continuing",
				slog.String("path", sess.FilePath),
				slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
	}
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// fileUnchanged reports whether path was already scanned at this
// exact size and mtime.
func (s *Store) fileUnchanged(path string, size int64, mtime time.Time) (bool, error) {
	var gotSize, gotMtime int64
	err := s.conn.QueryRow(
		`SELECT size, mtime FROM files WHERE path = ?`, path,
	).Scan(&gotSize, &gotMtime)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return gotSize == size && gotMtime == mtime.Unix(), nil
}

// purgeNonCanonical wipes every row for source if any of its session
// identifiers does not match the canonical hex shape. Returns true
// when a purge happened.
func (s *Store) purgeNonCanonical(source transcript.Source) (bool, error) {
	rows, err := s.conn.Query(
		`SELECT session_id FROM session_meta WHERE source = ?`, source)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	stale := false
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return false, err
		}
		if !transcript.IsCanonicalID(id) {
			stale = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	rows.Close()
	if !stale {
		return false, nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM session_days WHERE source = ?`,
		`DELETE FROM rollups_daily WHERE source = ?`,
		`DELETE FROM session_meta WHERE source = ?`,
		`DELETE FROM files WHERE source = ?`,
	} {
		if _, err := tx.Exec(stmt, source); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// indexOne commits one parsed session atomically: file-scan row,
// session metadata, day splits, then the daily rollups for every
// affected (day, source).
func (s *Store) indexOne(sess *transcript.Session, now time.Time) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO files (path, source, size, mtime, scanned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			size = excluded.size,
			mtime = excluded.mtime,
			scanned_at = excluded.scanned_at
	`, sess.FilePath, sess.Source, sess.FileSize, sess.FileModTime.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}

	messages, toolCalls := countMessages(sess)
	_, err = tx.Exec(`
		INSERT INTO session_meta (session_id, source, file_path, model,
			repo_name, cwd, title, start_ts, end_ts, file_mtime,
			file_size, event_count, message_count, tool_call_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			source = excluded.source,
			file_path = excluded.file_path,
			model = excluded.model,
			repo_name = excluded.repo_name,
			cwd = excluded.cwd,
			title = excluded.title,
			start_ts = excluded.start_ts,
			end_ts = excluded.end_ts,
			file_mtime = excluded.file_mtime,
			file_size = excluded.file_size,
			event_count = excluded.event_count,
			message_count = excluded.message_count,
			tool_call_count = excluded.tool_call_count
	`, sess.ID, sess.Source, sess.FilePath, sess.Model, sess.RepoName,
		sess.CWD, sess.Title, unixOrZero(sess.StartTime), unixOrZero(sess.EndTime),
		sess.FileModTime.Unix(), sess.FileSize, sess.EventCount, messages, toolCalls)
	if err != nil {
		return fmt.Errorf("upsert session meta: %w", err)
	}

	// The affected set carries (day, model) pairs: old rows may
	// belong to a different model than this parse reports.
	type dayModel struct{ day, model string }
	affected := make(map[dayModel]bool)
	oldDays, err := tx.Query(
		`SELECT day, model FROM session_days WHERE session_id = ?`, sess.ID)
	if err != nil {
		return fmt.Errorf("load old days: %w", err)
	}
	for oldDays.Next() {
		var dm dayModel
		if err := oldDays.Scan(&dm.day, &dm.model); err != nil {
			oldDays.Close()
			return err
		}
		affected[dm] = true
	}
	if err := oldDays.Err(); err != nil {
		oldDays.Close()
		return err
	}
	oldDays.Close()

	if _, err := tx.Exec(
		`DELETE FROM session_days WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear day rows: %w", err)
	}
	for _, split := range daySplits(sess) {
		affected[dayModel{split.Day, sess.Model}] = true
		_, err = tx.Exec(`
			INSERT INTO session_days (session_id, day, source, model,
				message_count, tool_call_count, duration_secs)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, split.Day, sess.Source, sess.Model, split.Messages,
			split.ToolCalls, split.Duration.Seconds())
		if err != nil {
			return fmt.Errorf("insert day row: %w", err)
		}
	}

	for dm := range affected {
		if err := recomputeDay(tx, dm.day, sess.Source, dm.model); err != nil {
			return fmt.Errorf("recompute rollup %s: %w", dm.day, err)
		}
	}
	return tx.Commit()
}

// recomputeDay re-aggregates session_days into rollups_daily for one
// (day, source, model). A cell with no remaining sessions loses its
// row.
func recomputeDay(tx *sql.Tx, day string, source transcript.Source, model string) error {
	var sessions, messages, toolCalls int
	var duration float64
	err := tx.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(message_count), 0),
			COALESCE(SUM(tool_call_count), 0), COALESCE(SUM(duration_secs), 0)
		FROM session_days WHERE day = ? AND source = ? AND model = ?
	`, day, source, model).Scan(&sessions, &messages, &toolCalls, &duration)
	if err != nil {
		return err
	}

	if sessions == 0 {
		_, err = tx.Exec(
			`DELETE FROM rollups_daily WHERE day = ? AND source = ? AND model = ?`,
			day, source, model)
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO rollups_daily (day, source, model, session_count,
			message_count, tool_call_count, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, source, model) DO UPDATE SET
			session_count = excluded.session_count,
			message_count = excluded.message_count,
			tool_call_count = excluded.tool_call_count,
			duration_secs = excluded.duration_secs
	`, day, source, model, sessions, messages, toolCalls, duration)
	return err
}
