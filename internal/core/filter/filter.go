// Package filter implements the pure match predicate used by search.
// It performs no I/O; hydration and caching are the caller's problem.
package filter

import (
	"strings"
	"time"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/cache"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

// Query is the structured form of a search request.
type Query struct {
	// Text is the free-text needle after repo:/path: extraction,
	// matched case-insensitively.
	Text string

	// Repo and Path are substring filters against the session's repo
	// name and file path. Populated from repo:/path: tokens or set
	// directly.
	Repo string
	Path string

	// Sources limits matching to the named sources. Empty means all.
	Sources []transcript.Source

	// Since/Until bound the session's effective time. Zero values
	// leave the corresponding side open.
	Since time.Time
	Until time.Time

	// Model, when set, must equal the session model exactly.
	Model string

	// Kinds, when non-empty, requires at least one event of one of
	// these kinds.
	Kinds []transcript.Kind
}

// ParseQuery splits repo: and path: tokens out of a raw query string.
// Everything else is rejoined into the free-text needle.
func ParseQuery(raw string) Query {
	var q Query
	var textParts []string
	for _, tok := range strings.Fields(raw) {
		switch {
		case strings.HasPrefix(tok, "repo:"):
			q.Repo = strings.TrimPrefix(tok, "repo:")
		case strings.HasPrefix(tok, "path:"):
			q.Path = strings.TrimPrefix(tok, "path:")
		default:
			textParts = append(textParts, tok)
		}
	}
	q.Text = strings.Join(textParts, " ")
	return q
}

// Empty reports whether the query matches every session.
func (q Query) Empty() bool {
	return q.Text == "" && q.Repo == "" && q.Path == "" &&
		len(q.Sources) == 0 && q.Since.IsZero() && q.Until.IsZero() &&
		q.Model == "" && len(q.Kinds) == 0
}

// Engine evaluates sessions against queries. The optional text cache
// avoids re-deriving searchable text for hydrated sessions.
type Engine struct {
	texts *cache.TextCache
}

func NewEngine(texts *cache.TextCache) *Engine {
	return &Engine{texts: texts}
}

// Matches reports whether sess satisfies q. Checks run cheapest
// first and short-circuit on the first failure. A lightweight
// session can fail the free-text check simply because its events are
// not loaded; hydrate before calling when text matters.
func (e *Engine) Matches(sess *transcript.Session, q Query) bool {
	if len(q.Sources) > 0 && !containsSource(q.Sources, sess.Source) {
		return false
	}
	if !q.Since.IsZero() || !q.Until.IsZero() {
		ts := effectiveTime(sess)
		if !q.Since.IsZero() && ts.Before(q.Since) {
			return false
		}
		if !q.Until.IsZero() && ts.After(q.Until) {
			return false
		}
	}
	if q.Model != "" && sess.Model != q.Model {
		return false
	}
	if q.Repo != "" && !containsFold(sess.RepoName, q.Repo) {
		return false
	}
	if q.Path != "" && !containsFold(sess.FilePath, q.Path) {
		return false
	}
	if len(q.Kinds) > 0 && !hasAnyKind(sess, q.Kinds) {
		return false
	}
	if q.Text != "" && !e.matchesText(sess, q.Text) {
		return false
	}
	return true
}

// effectiveTime prefers the session end, then start, then the file
// modification time.
func effectiveTime(sess *transcript.Session) time.Time {
	if !sess.EndTime.IsZero() {
		return sess.EndTime
	}
	if !sess.StartTime.IsZero() {
		return sess.StartTime
	}
	return sess.FileModTime
}

func (e *Engine) matchesText(sess *transcript.Session, needle string) bool {
	needle = strings.ToLower(needle)

	if containsFold(sess.Title, needle) {
		return true
	}
	if e.texts != nil {
		if text, ok := e.texts.Get(sess.ID); ok {
			return strings.Contains(text, needle)
		}
	}

	var b strings.Builder
	matched := false
	for i := range sess.Events {
		ev := &sess.Events[i]
		if !matched && containsFold(ev.SearchableText(), needle) {
			if e.texts == nil {
				return true
			}
			matched = true
		}
		if e.texts != nil {
			b.WriteString(strings.ToLower(ev.SearchableText()))
			b.WriteByte('\n')
		}
	}
	// Raw JSON is the fallback for fields the normalizer did not map.
	// It feeds the cached text too, so warm lookups keep matching
	// fields that only exist in the raw line.
	for i := range sess.Events {
		raw := sess.Events[i].RawJSON
		if !matched && containsFold(raw, needle) {
			if e.texts == nil {
				return true
			}
			matched = true
		}
		if e.texts != nil {
			b.WriteString(strings.ToLower(raw))
			b.WriteByte('\n')
		}
	}
	e.rememberText(sess, &b)
	return matched
}

// rememberText stores the accumulated searchable text for hydrated
// sessions.
func (e *Engine) rememberText(sess *transcript.Session, b *strings.Builder) {
	if e.texts == nil || sess.Lightweight() {
		return
	}
	e.texts.Put(sess.ID, b.String())
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsSource(sources []transcript.Source, s transcript.Source) bool {
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}

func hasAnyKind(sess *transcript.Session, kinds []transcript.Kind) bool {
	for i := range sess.Events {
		for _, k := range kinds {
			if sess.Events[i].Kind == k {
				return true
			}
		}
	}
	return false
}
