package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"time"
)

// Source identifies which agent CLI produced a session file.
type Source string

const (
	SourceClaude Source = "claude"
	SourceCodex  Source = "codex"
	SourceGemini Source = "gemini"
)

// AllSources lists every known source in a stable order.
var AllSources = []Source{SourceClaude, SourceCodex, SourceGemini}

// Session is one agent conversation, backed by a single file on disk.
// A session is "lightweight" until hydrated: metadata only, no events.
// The ID is derived from the file path and never changes across
// re-parses of the same file.
type Session struct {
	ID          string
	Source      Source
	StartTime   time.Time
	EndTime     time.Time
	Model       string
	FilePath    string
	FileSize    int64
	FileModTime time.Time
	EventCount  int
	Events      []Event
	CWD         string
	RepoName    string
	Title       string
}

// Lightweight reports whether the session still needs hydration.
func (s *Session) Lightweight() bool {
	return len(s.Events) == 0
}

var canonicalIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// SessionIDForPath derives the stable session identifier for a file
// path: the first 16 bytes of its SHA-256 digest as lowercase hex.
func SessionIDForPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}

// IsCanonicalID reports whether id has the canonical fixed-length
// lowercase hex shape. Anything else is a legacy identifier and
// triggers a purge-and-rebuild in the rollup store.
func IsCanonicalID(id string) bool {
	return canonicalIDPattern.MatchString(id)
}

// repoNameFromCWD extracts a repository-ish name from a working
// directory path. Best effort; empty cwd yields empty name.
func repoNameFromCWD(cwd string) string {
	if cwd == "" || cwd == "/" {
		return ""
	}
	return filepath.Base(filepath.Clean(cwd))
}
