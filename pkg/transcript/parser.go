package transcript

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// readChunkSize is how much of the file is pulled in per read. Only
// the current partial line is ever buffered beyond this.
const readChunkSize = 256 * 1024

// Discover builds a lightweight session from a stat call alone. The
// file is not opened; events stay empty until hydration.
func Discover(path string, source Source) (Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Session{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Session{
		ID:          SessionIDForPath(path),
		Source:      source,
		FilePath:    path,
		FileSize:    info.Size(),
		FileModTime: info.ModTime(),
	}, nil
}

// ParseFile fully parses a session file. It never returns an error:
// an unreadable file yields a session containing exactly one synthetic
// error event, and a malformed line becomes an opaque meta event. One
// corrupt input must never abort a scan of many files.
func ParseFile(path string, source Source) *Session {
	sess := &Session{
		ID:       SessionIDForPath(path),
		Source:   source,
		FilePath: path,
	}

	file, err := os.Open(path)
	if err != nil {
		sess.Events = []Event{errorEvent(sess.ID, err)}
		sess.EventCount = 1
		return sess
	}
	defer func() { _ = file.Close() }()

	if info, serr := file.Stat(); serr == nil {
		sess.FileSize = info.Size()
		sess.FileModTime = info.ModTime()
	}

	seq := 0
	perr := forEachLine(file, func(line []byte) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return
		}
		ev := normalizeLine(line, sess.ID, seq)
		seq++
		sess.Events = append(sess.Events, ev)
		absorbSessionFields(sess, line, &ev)
	})
	if perr != nil {
		// Mid-file read failure: keep what parsed, record the rest.
		sess.Events = append(sess.Events, errorEvent(sess.ID, perr))
	}

	sess.EventCount = len(sess.Events)
	finalizeTimes(sess)
	return sess
}

// Hydrate re-parses a lightweight session's file in place. The
// identifier is stable, so re-parsing an unchanged file yields an
// identical record.
func Hydrate(sess *Session) *Session {
	full := ParseFile(sess.FilePath, sess.Source)
	if full.Title == "" {
		full.Title = sess.Title
	}
	return full
}

func errorEvent(sessionID string, err error) Event {
	return Event{
		ID:      sessionID + ":error",
		Kind:    KindError,
		Text:    err.Error(),
		RawJSON: "",
	}
}

// forEachLine streams the reader in fixed-size chunks, splitting on
// newline boundaries. A trailing unterminated line at EOF is still
// emitted. Only the current partial line is held between chunks.
func forEachLine(r io.Reader, fn func(line []byte)) error {
	chunk := make([]byte, readChunkSize)
	var partial []byte

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			for {
				idx := bytes.IndexByte(data, '\n')
				if idx < 0 {
					partial = append(partial, data...)
					break
				}
				if len(partial) > 0 {
					partial = append(partial, data[:idx]...)
					fn(partial)
					partial = partial[:0]
				} else {
					fn(data[:idx])
				}
				data = data[idx+1:]
			}
		}
		if err == io.EOF {
			if len(partial) > 0 {
				fn(partial)
			}
			return nil
		}
		if err != nil {
			if len(partial) > 0 {
				fn(partial)
			}
			return err
		}
	}
}

// absorbSessionFields promotes per-line metadata to the session the
// first time it appears: model, cwd, and a title from either an
// explicit summary line or the first user message.
func absorbSessionFields(sess *Session, line []byte, ev *Event) {
	doc := gjson.ParseBytes(line)

	if sess.Model == "" {
		sess.Model = firstString(doc, modelKeys)
	}
	if sess.CWD == "" {
		sess.CWD = firstString(doc, cwdKeys)
		if sess.CWD != "" {
			sess.RepoName = repoNameFromCWD(sess.CWD)
		}
	}
	if sess.Title == "" {
		if summary := doc.Get("summary").String(); summary != "" {
			sess.Title = summary
		} else if ev.Kind == KindUser && ev.Text != "" && !ev.IsDelta {
			sess.Title = truncateTitle(ev.Text)
		}
	}
}

func truncateTitle(s string) string {
	const max = 120
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so multi-byte titles stay valid UTF-8.
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// finalizeTimes sets session start/end to the min/max event
// timestamps, falling back to the file modification time when no
// event carries one.
func finalizeTimes(sess *Session) {
	var start, end time.Time
	for i := range sess.Events {
		ts := sess.Events[i].Timestamp
		if ts.IsZero() {
			continue
		}
		if start.IsZero() || ts.Before(start) {
			start = ts
		}
		if end.IsZero() || ts.After(end) {
			end = ts
		}
	}
	if start.IsZero() {
		start = sess.FileModTime
	}
	if end.IsZero() {
		end = sess.FileModTime
	}
	sess.StartTime = start
	sess.EndTime = end
}
