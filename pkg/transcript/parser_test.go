package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func writeTempSession(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	content := `{"type":"user","timestamp":"2024-03-01T09:00:00Z","message":{"role":"user","content":"hello world"}}
{"type":"assistant","timestamp":"2024-03-01T09:01:00Z","message":{"role":"assistant","model":"claude-sonnet-4","content":[{"type":"text","text":"hi there"}]}}
`
	path := writeTempSession(t, "session.jsonl", content)

	sess := ParseFile(path, SourceClaude)
	if sess == nil {
		t.Fatal("ParseFile() returned nil")
	}
	if len(sess.Events) != 2 {
		t.Fatalf("event count = %d, want 2", len(sess.Events))
	}
	if sess.Events[0].Kind != KindUser {
		t.Errorf("first event kind = %v, want user", sess.Events[0].Kind)
	}
	if sess.Events[1].Kind != KindAssistant {
		t.Errorf("second event kind = %v, want assistant", sess.Events[1].Kind)
	}
	if sess.Model != "claude-sonnet-4" {
		t.Errorf("Model = %q, want claude-sonnet-4", sess.Model)
	}
	if sess.Title != "hello world" {
		t.Errorf("Title = %q, want first user message", sess.Title)
	}

	wantStart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC)
	if !sess.StartTime.Equal(wantStart) || !sess.EndTime.Equal(wantEnd) {
		t.Errorf("span = [%v, %v], want [%v, %v]", sess.StartTime, sess.EndTime, wantStart, wantEnd)
	}
}

func TestParseFile_UnreadableYieldsErrorEvent(t *testing.T) {
	sess := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"), SourceCodex)
	if sess == nil {
		t.Fatal("ParseFile() returned nil for missing file")
	}
	if len(sess.Events) != 1 {
		t.Fatalf("event count = %d, want exactly 1", len(sess.Events))
	}
	if sess.Events[0].Kind != KindError {
		t.Errorf("event kind = %v, want error", sess.Events[0].Kind)
	}
}

func TestParseFile_NoReadPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	path := writeTempSession(t, "locked.jsonl", `{"role":"user","text":"secret"}`)
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatal(err)
	}

	sess := ParseFile(path, SourceClaude)
	if sess == nil {
		t.Fatal("ParseFile() returned nil")
	}
	if len(sess.Events) != 1 || sess.Events[0].Kind != KindError {
		t.Errorf("want exactly one error event, got %d events", len(sess.Events))
	}
}

func TestParseFile_MalformedLineDoesNotAbort(t *testing.T) {
	content := `{"role":"user","text":"before"}
this is not json at all
{"role":"assistant","content":"after"}`
	path := writeTempSession(t, "mixed.jsonl", content)

	sess := ParseFile(path, SourceClaude)
	if len(sess.Events) != 3 {
		t.Fatalf("event count = %d, want 3", len(sess.Events))
	}
	if sess.Events[1].Kind != KindMeta {
		t.Errorf("malformed line kind = %v, want meta", sess.Events[1].Kind)
	}
	if sess.Events[1].RawJSON != "this is not json at all" {
		t.Errorf("malformed line raw = %q, want preserved", sess.Events[1].RawJSON)
	}
	if sess.Events[2].Kind != KindAssistant {
		t.Errorf("parsing did not continue past malformed line")
	}
}

func TestParseFile_TrailingUnterminatedLine(t *testing.T) {
	content := `{"role":"user","text":"one"}
{"role":"assistant","content":"two"}` // no trailing newline
	path := writeTempSession(t, "trailing.jsonl", content)

	sess := ParseFile(path, SourceClaude)
	if len(sess.Events) != 2 {
		t.Fatalf("event count = %d, want 2 (trailing line emitted)", len(sess.Events))
	}
}

func TestParseFile_Idempotent(t *testing.T) {
	path := writeTempSession(t, "stable.jsonl",
		`{"role":"user","timestamp":1700000000,"text":"same"}`)

	a := ParseFile(path, SourceGemini)
	b := ParseFile(path, SourceGemini)

	if a.ID != b.ID {
		t.Errorf("ID changed across re-parse: %s vs %s", a.ID, b.ID)
	}
	if len(a.Events) != len(b.Events) {
		t.Errorf("event counts differ: %d vs %d", len(a.Events), len(b.Events))
	}
	if !a.StartTime.Equal(b.StartTime) || !a.EndTime.Equal(b.EndTime) {
		t.Errorf("spans differ across re-parse")
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := truncateTitle("short title"); got != "short title" {
		t.Errorf("truncateTitle = %q, want unchanged", got)
	}
	if got := truncateTitle("first line\nsecond line"); got != "first line" {
		t.Errorf("truncateTitle = %q, want first line only", got)
	}

	long := strings.Repeat("x", 200)
	got := truncateTitle(long)
	if len(got) != 120 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateTitle(len 200) = %q (len %d)", got, len(got))
	}

	// A 2-byte rune straddling the cut must not be split.
	multi := strings.Repeat("é", 200)
	got = truncateTitle(multi)
	if !utf8.ValidString(got) {
		t.Errorf("truncated multibyte title is invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") || strings.ContainsRune(got, utf8.RuneError) {
		t.Errorf("truncateTitle multibyte = %q", got)
	}
}

func TestParseFile_NoTimestampsFallsBackToMtime(t *testing.T) {
	path := writeTempSession(t, "untimed.jsonl", `{"role":"user","text":"hi"}`)

	sess := ParseFile(path, SourceClaude)
	if sess.StartTime.IsZero() || sess.EndTime.IsZero() {
		t.Error("expected mtime fallback for start/end, got zero times")
	}
	if !sess.StartTime.Equal(sess.FileModTime) {
		t.Errorf("StartTime = %v, want file mtime %v", sess.StartTime, sess.FileModTime)
	}
}

func TestDiscover(t *testing.T) {
	path := writeTempSession(t, "light.jsonl", strings.Repeat("x", 100))

	sess, err := Discover(path, SourceCodex)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !sess.Lightweight() {
		t.Error("discovered session should be lightweight")
	}
	if sess.FileSize != 100 {
		t.Errorf("FileSize = %d, want 100", sess.FileSize)
	}
	if sess.ID != SessionIDForPath(path) {
		t.Errorf("ID = %s, want path digest", sess.ID)
	}
}

func TestSessionIDForPath(t *testing.T) {
	id := SessionIDForPath("/home/u/.claude/projects/p/s.jsonl")
	if len(id) != 32 {
		t.Errorf("id length = %d, want 32", len(id))
	}
	if !IsCanonicalID(id) {
		t.Errorf("id %q should be canonical", id)
	}
	if IsCanonicalID("some-legacy-uuid-0000") {
		t.Error("legacy shape should not be canonical")
	}
	if id != SessionIDForPath("/home/u/.claude/projects/p/s.jsonl") {
		t.Error("id not stable for same path")
	}
}

func TestForEachLine_LongLine(t *testing.T) {
	// A single line larger than the read chunk must still come
	// through intact via the partial-line buffer.
	big := strings.Repeat("a", readChunkSize+4096)
	path := writeTempSession(t, "big.jsonl", big+"\n"+`{"role":"user","text":"tail"}`)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []int
	if err := forEachLine(f, func(line []byte) {
		lines = append(lines, len(line))
	}); err != nil {
		t.Fatalf("forEachLine() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if lines[0] != len(big) {
		t.Errorf("first line length = %d, want %d", lines[0], len(big))
	}
}
