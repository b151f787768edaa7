// Package registry holds the in-memory session table shared by the
// indexer, the search coordinator and the CLI views.
package registry

import (
	"sort"
	"sync"

	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

// Registry is a concurrency-safe map of session ID to session. A
// session stored here may be lightweight (header only) or hydrated;
// Put always replaces the previous entry wholesale.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*transcript.Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*transcript.Session)}
}

func (r *Registry) Put(sess *transcript.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
}

func (r *Registry) Get(id string) (*transcript.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions sorted by descending start
// time, newest first. The slice is fresh but the pointers are shared;
// callers treat sessions as immutable once stored.
func (r *Registry) Snapshot() []*transcript.Session {
	r.mu.RLock()
	out := make([]*transcript.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
