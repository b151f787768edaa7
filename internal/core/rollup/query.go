package rollup

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

// PrefilterQuery narrows search candidates purely in SQL.
type PrefilterQuery struct {
	Sources []transcript.Source
	Model   string    // exact match when set
	RepoSub string    // case-insensitive substring when set
	Since   time.Time // inclusive lower bound when set
	Until   time.Time // inclusive upper bound when set
}

// Prefilter returns the session IDs matching q without touching any
// file. Date bounds apply to the session end time, falling back to
// start time, then file mtime, mirroring the in-memory filter.
func (s *Store) Prefilter(q PrefilterQuery) ([]string, error) {
	var conds []string
	var args []any

	if len(q.Sources) > 0 {
		placeholders := make([]string, len(q.Sources))
		for i, src := range q.Sources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		conds = append(conds, "source IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, q.Model)
	}
	if q.RepoSub != "" {
		conds = append(conds, "repo_name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(q.RepoSub)+"%")
	}
	effective := "COALESCE(NULLIF(end_ts, 0), NULLIF(start_ts, 0), file_mtime)"
	if !q.Since.IsZero() {
		conds = append(conds, effective+" >= ?")
		args = append(args, q.Since.Unix())
	}
	if !q.Until.IsZero() {
		conds = append(conds, effective+" <= ?")
		args = append(args, q.Until.Unix())
	}

	query := "SELECT session_id FROM session_meta"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("prefilter: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RollupRow is one day's aggregate for one (source, model) pair.
type RollupRow struct {
	Day       string
	Source    transcript.Source
	Model     string
	Sessions  int
	Messages  int
	ToolCalls int
	Duration  time.Duration
}

// DailyRollups returns aggregates between the given days inclusive,
// newest day first. Empty day strings leave that bound open; an
// empty source list means all sources.
func (s *Store) DailyRollups(fromDay, toDay string, sources []transcript.Source) ([]RollupRow, error) {
	var conds []string
	var args []any
	if fromDay != "" {
		conds = append(conds, "day >= ?")
		args = append(args, fromDay)
	}
	if toDay != "" {
		conds = append(conds, "day <= ?")
		args = append(args, toDay)
	}
	if len(sources) > 0 {
		placeholders := make([]string, len(sources))
		for i, src := range sources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		conds = append(conds, "source IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT day, source, model, session_count, message_count, tool_call_count, duration_secs
		FROM rollups_daily`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY day DESC, source ASC, model ASC"

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily rollups: %w", err)
	}
	defer rows.Close()

	var out []RollupRow
	for rows.Next() {
		var r RollupRow
		var secs float64
		if err := rows.Scan(&r.Day, &r.Source, &r.Model, &r.Sessions, &r.Messages, &r.ToolCalls, &secs); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(secs * float64(time.Second))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Totals summarizes the whole store for the stats command.
type Totals struct {
	Sessions   int
	Events     int
	Files      int
	FileBytes  int64
	ActiveDays int
	Duration   time.Duration
}

func (s *Store) Totals() (Totals, error) {
	var t Totals
	err := s.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(event_count), 0), COALESCE(SUM(file_size), 0)
		FROM session_meta
	`).Scan(&t.Sessions, &t.Events, &t.FileBytes)
	if err != nil {
		return t, fmt.Errorf("totals: %w", err)
	}
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&t.Files); err != nil {
		return t, err
	}
	var secs float64
	err = s.conn.QueryRow(`
		SELECT COUNT(DISTINCT day), COALESCE(SUM(duration_secs), 0) FROM session_days
	`).Scan(&t.ActiveDays, &secs)
	if err != nil {
		return t, err
	}
	t.Duration = time.Duration(secs * float64(time.Second))
	return t, nil
}

// SessionMeta is the stored header for one session.
type SessionMeta struct {
	ID         string
	Source     transcript.Source
	FilePath   string
	Model      string
	RepoName   string
	CWD        string
	Title      string
	StartTime  time.Time
	EndTime    time.Time
	EventCount int
	Messages   int
	ToolCalls  int
	FileSize   int64
}

// Sessions returns stored session headers, newest first, up to
// limit (0 means no limit).
func (s *Store) Sessions(limit int) ([]SessionMeta, error) {
	query := `SELECT session_id, source, file_path, model, repo_name, cwd,
			title, start_ts, end_ts, event_count, message_count,
			tool_call_count, file_size
		FROM session_meta
		ORDER BY COALESCE(NULLIF(end_ts, 0), NULLIF(start_ts, 0), file_mtime) DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var start, end int64
		var model, repo, cwd, title sql.NullString
		err := rows.Scan(&m.ID, &m.Source, &m.FilePath, &model, &repo, &cwd,
			&title, &start, &end, &m.EventCount, &m.Messages,
			&m.ToolCalls, &m.FileSize)
		if err != nil {
			return nil, err
		}
		m.Model, m.RepoName, m.CWD, m.Title = model.String, repo.String, cwd.String, title.String
		m.StartTime, m.EndTime = timeOrZero(start), timeOrZero(end)
		out = append(out, m)
	}
	return out, rows.Err()
}
