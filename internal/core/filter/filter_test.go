package filter

import (
	"testing"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/cache"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

func sessionWith(events ...transcript.Event) *transcript.Session {
	return &transcript.Session{
		ID:        "s1",
		Source:    transcript.SourceClaude,
		StartTime: time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 8, 10, 13, 0, 0, 0, time.UTC),
		Model:     "claude-sonnet-4",
		RepoName:  "agent-sessions",
		FilePath:  "/home/u/.claude/projects/p/abc.jsonl",
		Events:    events,
	}
}

func TestParseQueryTokens(t *testing.T) {
	q := ParseQuery("fix the repo:myproj bug path:src/db")
	if q.Repo != "myproj" {
		t.Errorf("Repo = %q, want myproj", q.Repo)
	}
	if q.Path != "src/db" {
		t.Errorf("Path = %q, want src/db", q.Path)
	}
	if q.Text != "fix the bug" {
		t.Errorf("Text = %q, want %q", q.Text, "fix the bug")
	}
}

func TestParseQueryPlainText(t *testing.T) {
	q := ParseQuery("  hello   world  ")
	if q.Text != "hello world" {
		t.Errorf("Text = %q, want %q", q.Text, "hello world")
	}
	if !ParseQuery("").Empty() {
		t.Error("empty string should parse to empty query")
	}
}

func TestSourceFilter(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith()
	if !e.Matches(sess, Query{Sources: []transcript.Source{transcript.SourceClaude}}) {
		t.Error("matching source rejected")
	}
	if e.Matches(sess, Query{Sources: []transcript.Source{transcript.SourceCodex}}) {
		t.Error("non-matching source accepted")
	}
	if !e.Matches(sess, Query{}) {
		t.Error("empty sources should match all")
	}
}

func TestDateRangeUsesEndThenStartThenMtime(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith()
	mid := time.Date(2026, 8, 10, 12, 30, 0, 0, time.UTC)

	// End time 13:00 is after since=12:30.
	if !e.Matches(sess, Query{Since: mid}) {
		t.Error("session ending after since rejected")
	}
	if e.Matches(sess, Query{Until: mid}) {
		t.Error("session ending after until accepted")
	}

	// No end time: fall back to start.
	sess.EndTime = time.Time{}
	if e.Matches(sess, Query{Since: mid}) {
		t.Error("start time 12:00 before since=12:30 should reject")
	}

	// No times at all: fall back to file mtime.
	sess.StartTime = time.Time{}
	sess.FileModTime = mid.Add(time.Hour)
	if !e.Matches(sess, Query{Since: mid}) {
		t.Error("mtime after since should match")
	}
}

func TestModelExactMatch(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith()
	if !e.Matches(sess, Query{Model: "claude-sonnet-4"}) {
		t.Error("exact model rejected")
	}
	if e.Matches(sess, Query{Model: "claude"}) {
		t.Error("model prefix should not match, equality is exact")
	}
}

func TestRepoAndPathSubstrings(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith()
	if !e.Matches(sess, Query{Repo: "Agent-SESS"}) {
		t.Error("case-insensitive repo substring rejected")
	}
	if !e.Matches(sess, Query{Path: "projects/p"}) {
		t.Error("path substring rejected")
	}
	if e.Matches(sess, Query{Repo: "otherrepo"}) {
		t.Error("non-matching repo accepted")
	}
}

func TestKindPresence(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith(
		transcript.Event{Kind: transcript.KindUser, Text: "hello"},
		transcript.Event{Kind: transcript.KindToolCall, ToolName: "bash"},
	)
	if !e.Matches(sess, Query{Kinds: []transcript.Kind{transcript.KindToolCall}}) {
		t.Error("present kind rejected")
	}
	if e.Matches(sess, Query{Kinds: []transcript.Kind{transcript.KindError}}) {
		t.Error("absent kind accepted")
	}
}

func TestFreeTextAcrossFields(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith(
		transcript.Event{Kind: transcript.KindUser, Text: "please FIX the parser"},
		transcript.Event{Kind: transcript.KindToolCall, ToolInput: `{"cmd":"grep timeout"}`},
		transcript.Event{Kind: transcript.KindToolResult, ToolOutput: "3 files changed"},
	)
	for _, needle := range []string{"fix the", "grep TIMEOUT", "files changed"} {
		if !e.Matches(sess, Query{Text: needle}) {
			t.Errorf("Matches(%q) = false, want true", needle)
		}
	}
	if e.Matches(sess, Query{Text: "nonexistent needle"}) {
		t.Error("missing text accepted")
	}
}

func TestFreeTextFallsBackToRawJSON(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith(transcript.Event{
		Kind:    transcript.KindMeta,
		RawJSON: `{"unmapped_field":"zanzibar"}`,
	})
	if !e.Matches(sess, Query{Text: "zanzibar"}) {
		t.Error("raw JSON fallback did not match")
	}
}

func TestCachedTextKeepsRawJSONFields(t *testing.T) {
	texts := cache.New(8)
	e := NewEngine(texts)
	sess := sessionWith(transcript.Event{
		Kind:    transcript.KindUser,
		Text:    "ordinary message",
		RawJSON: `{"type":"user","content":"ordinary message","unmapped_field":"zanzibar"}`,
	})

	// Warm the cache with a miss, then drop the events so only the
	// cached text can answer.
	if e.Matches(sess, Query{Text: "no such needle"}) {
		t.Fatal("needle should not match")
	}
	sess.Events = nil

	if !e.Matches(sess, Query{Text: "ordinary message"}) {
		t.Error("cached text lost mapped fields")
	}
	if !e.Matches(sess, Query{Text: "zanzibar"}) {
		t.Error("cached text lost raw-only fields")
	}
}

func TestTitleMatches(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith()
	sess.Title = "Refactor billing pipeline"
	if !e.Matches(sess, Query{Text: "billing"}) {
		t.Error("title text rejected")
	}
}

func TestCacheConsulted(t *testing.T) {
	texts := cache.New(8)
	e := NewEngine(texts)
	sess := sessionWith(transcript.Event{Kind: transcript.KindUser, Text: "alpha"})

	// Full scan with no match caches the text.
	if e.Matches(sess, Query{Text: "beta"}) {
		t.Fatal("beta should not match")
	}
	if _, ok := texts.Get(sess.ID); !ok {
		t.Fatal("searchable text not cached after full scan")
	}

	// Drop events; the cached text still answers.
	sess.Events = nil
	if !e.Matches(sess, Query{Text: "alpha"}) {
		t.Error("cached text not consulted for lightweight session")
	}
}

func TestShortCircuitSkipsTextForWrongSource(t *testing.T) {
	e := NewEngine(nil)
	sess := sessionWith(transcript.Event{Kind: transcript.KindUser, Text: "needle"})
	q := Query{
		Sources: []transcript.Source{transcript.SourceGemini},
		Text:    "needle",
	}
	if e.Matches(sess, q) {
		t.Error("wrong source must reject regardless of text")
	}
}
