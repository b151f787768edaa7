// Package discover performs the stat-only scan that turns per-tool
// session directories into lightweight sessions. It never opens a
// file; hydration happens elsewhere.
package discover

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/retsubhtym/agent-sessions-sub002/internal/logging"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

var log = logging.ForComponent(logging.CompParser)

// Scanner enumerates session files for each configured source root.
type Scanner struct {
	ClaudeRoots []string
	CodexRoots  []string
	GeminiRoots []string
}

// SessionFiles returns one lightweight session per discovered file
// for the given source. Unreadable directories are skipped silently;
// discovery of many files never fails because of one bad entry.
func (s *Scanner) SessionFiles(source transcript.Source) []transcript.Session {
	var paths []string
	switch source {
	case transcript.SourceClaude:
		for _, root := range s.ClaudeRoots {
			paths = append(paths, claudeFiles(root)...)
		}
	case transcript.SourceCodex:
		for _, root := range s.CodexRoots {
			paths = append(paths, codexFiles(root)...)
		}
	case transcript.SourceGemini:
		for _, root := range s.GeminiRoots {
			paths = append(paths, geminiFiles(root)...)
		}
	}
	sort.Strings(paths)

	sessions := make([]transcript.Session, 0, len(paths))
	for _, p := range paths {
		sess, err := transcript.Discover(p, source)
		if err != nil {
			log.Debug("discover stat failed",
				slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions
}

// All returns lightweight sessions for every source.
func (s *Scanner) All() []transcript.Session {
	var out []transcript.Session
	for _, src := range transcript.AllSources {
		out = append(out, s.SessionFiles(src)...)
	}
	return out
}

// Claude layout: <root>/<project-dir>/<session>.jsonl. Subagent
// transcripts (agent-*.jsonl) are indexed like any other session.
func claudeFiles(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projDir := filepath.Join(root, entry.Name())
		sessionFiles, err := os.ReadDir(projDir)
		if err != nil {
			continue
		}
		for _, sf := range sessionFiles {
			if sf.IsDir() || !strings.HasSuffix(sf.Name(), ".jsonl") {
				continue
			}
			files = append(files, filepath.Join(projDir, sf.Name()))
		}
	}
	return files
}

// Codex layout: <root>/<year>/<month>/<day>/<file>.jsonl.
func codexFiles(root string) []string {
	var files []string
	for _, year := range digitDirs(root) {
		for _, month := range digitDirs(year) {
			for _, day := range digitDirs(month) {
				entries, err := os.ReadDir(day)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
						continue
					}
					files = append(files, filepath.Join(day, e.Name()))
				}
			}
		}
	}
	return files
}

// Gemini layout: <root>/tmp/<dir>/chats/session-*.json.
func geminiFiles(root string) []string {
	tmpDir := filepath.Join(root, "tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		chatsDir := filepath.Join(tmpDir, entry.Name(), "chats")
		chats, err := os.ReadDir(chatsDir)
		if err != nil {
			continue
		}
		for _, c := range chats {
			name := c.Name()
			if c.IsDir() || !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".json") {
				continue
			}
			files = append(files, filepath.Join(chatsDir, name))
		}
	}
	return files
}

func digitDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !isDigits(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
